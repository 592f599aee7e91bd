package clvisitors

import (
	"context"
	"errors"
	"fmt"
	"haultrack/internal/models/clmetrics"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const maxPathLength = 2048

// Recorder enregistre les pages vues et leur durée de lecture
type Recorder struct {
	db       *gorm.DB
	resolver *Resolver
	now      func() time.Time
}

func NewRecorder(db *gorm.DB, resolver *Resolver) *Recorder {
	return &Recorder{
		db:       db,
		resolver: resolver,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// ValidatePath accepte un chemin absolu sans caractère de contrôle
func ValidatePath(path string) error {
	if path == "" || !strings.HasPrefix(path, "/") || len(path) > maxPathLength {
		return ErrInvalidPath
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return ErrInvalidPath
		}
	}
	return nil
}

// RecordView ouvre une page vue et repousse last_seen du visiteur dans la même transaction
func (r *Recorder) RecordView(ctx context.Context, visitorID, path, title string) (*PageView, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	now := r.now()

	view := &PageView{
		VisitorID: visitorID,
		Path:      path,
		Title:     truncate(title, 512),
		Timestamp: now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Visitor{}).
			Where("id = ?", visitorID).
			Update("last_seen", gorm.Expr("CASE WHEN last_seen < ? THEN ? ELSE last_seen END", now, now))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&Visitor{}).Where("id = ?", visitorID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrVisitorNotFound
			}
		}
		return tx.Create(view).Error
	})
	if err != nil {
		if errors.Is(err, ErrVisitorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("recording page view: %w", err)
	}

	clmetrics.PageViewsRecorded.Inc()
	log.Debug().Str("visitor_id", visitorID).Str("path", path).Uint64("page_view_id", view.ID).Msg("page view recorded")
	return view, nil
}

// RecordViewForSession résout la session avant d'enregistrer la page,
// la balise de page peut arriver avant celle de la visite
func (r *Recorder) RecordViewForSession(ctx context.Context, sessionID string, meta ArrivalMetadata, path, title string) (*PageView, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	visitor, _, err := r.resolver.Resolve(ctx, sessionID, meta)
	if err != nil {
		return nil, err
	}
	return r.RecordView(ctx, visitor.ID, path, title)
}

// CloseView fixe la durée d'une page vue une seule fois.
// Une seconde fermeture n'a aucun effet et n'est pas une erreur.
// Le booléen indique si cet appel a fixé la durée.
func (r *Recorder) CloseView(ctx context.Context, visitorID string, pageViewID uint64, durationSeconds int) (bool, error) {
	if durationSeconds < 0 {
		return false, ErrInvalidDuration
	}

	db := r.db.WithContext(ctx)
	result := db.Model(&PageView{}).
		Where("id = ? AND visitor_id = ? AND duration IS NULL", pageViewID, visitorID).
		Update("duration", durationSeconds)
	if result.Error != nil {
		return false, fmt.Errorf("closing page view: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		clmetrics.PageViewsClosed.WithLabelValues("closed").Inc()
		return true, nil
	}

	var count int64
	if err := db.Model(&PageView{}).Where("id = ? AND visitor_id = ?", pageViewID, visitorID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("closing page view: %w", err)
	}
	if count == 0 {
		clmetrics.PageViewsClosed.WithLabelValues("unknown").Inc()
		return false, ErrPageViewNotFound
	}
	clmetrics.PageViewsClosed.WithLabelValues("duplicate").Inc()
	return false, nil
}

// CloseViewForSession ferme une page vue à partir du jeton de session
func (r *Recorder) CloseViewForSession(ctx context.Context, sessionID string, pageViewID uint64, durationSeconds int) (bool, error) {
	if durationSeconds < 0 {
		return false, ErrInvalidDuration
	}
	visitor, err := r.resolver.FindBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrVisitorNotFound) {
			clmetrics.PageViewsClosed.WithLabelValues("unknown").Inc()
			return false, ErrPageViewNotFound
		}
		return false, err
	}
	return r.CloseView(ctx, visitor.ID, pageViewID, durationSeconds)
}

// ListViews retourne les pages d'un visiteur dans l'ordre chronologique
func (r *Recorder) ListViews(ctx context.Context, visitorID string) ([]PageView, error) {
	var views []PageView
	err := r.db.WithContext(ctx).
		Where("visitor_id = ?", visitorID).
		Order("timestamp ASC, id ASC").
		Find(&views).Error
	return views, err
}
