package clvisitors

import (
	"context"
	"errors"
	"fmt"
	"haultrack/internal/models/clclassifier"
	"haultrack/internal/models/clmetrics"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArrivalMetadata est ce que le navigateur envoie à la première visite
type ArrivalMetadata struct {
	IPAddress   string
	UserAgent   string
	Referrer    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	Language    string
	Fingerprint string
	// Timestamp vaut l'horloge du resolver si nul
	Timestamp time.Time
}

// Classifier est satisfait par *clclassifier.Classifier
type Classifier interface {
	Classify(ctx context.Context, in clclassifier.Input) clclassifier.Result
}

// Resolver associe un jeton de session à un Visitor durable.
// La création est un upsert sur l'index unique session_id : aucun verrou
// applicatif, plusieurs processus peuvent traiter la même session.
type Resolver struct {
	db         *gorm.DB
	classifier Classifier
	now        func() time.Time

	// OnCreated est appelé après la création d'un visiteur (évaluation des alertes à l'ingestion)
	OnCreated func(v *Visitor)
}

func NewResolver(db *gorm.DB, classifier Classifier) *Resolver {
	return &Resolver{
		db:         db,
		classifier: classifier,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock remplace l'horloge (tests)
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Resolve retourne le visiteur de la session, créé si besoin.
// Le booléen indique si cet appel a créé la ligne.
func (r *Resolver) Resolve(ctx context.Context, sessionID string, meta ArrivalMetadata) (*Visitor, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, false, ErrMissingSession
	}
	now := meta.Timestamp
	if now.IsZero() {
		now = r.now()
	}
	now = now.UTC()

	visitor, err := r.touch(ctx, sessionID, now)
	if err == nil {
		clmetrics.VisitsTracked.WithLabelValues("existing").Inc()
		return visitor, false, nil
	}
	if !errors.Is(err, ErrVisitorNotFound) {
		return nil, false, err
	}

	visitor = r.newVisitor(ctx, sessionID, meta, now)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoNothing: true,
		}).
		Create(visitor)
	if result.Error != nil {
		return nil, false, fmt.Errorf("creating visitor: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// course perdue : une autre requête a inséré la session entre-temps
		log.Debug().Str("session_id", sessionID).Msg("visitor insert lost race, merging timestamps")
		visitor, err = r.touch(ctx, sessionID, now)
		if err != nil {
			return nil, false, err
		}
		clmetrics.VisitsTracked.WithLabelValues("existing").Inc()
		return visitor, false, nil
	}

	clmetrics.VisitsTracked.WithLabelValues("created").Inc()
	if visitor.IsCompetitor {
		clmetrics.CompetitorVisits.WithLabelValues(visitor.ThreatLevel).Inc()
	}
	log.Info().
		Str("visitor_id", visitor.ID).
		Str("device", visitor.Device).
		Bool("competitor", visitor.IsCompetitor).
		Bool("vpn", visitor.IsVPN).
		Int("fraud_score", visitor.FraudScore).
		Msg("visitor created")

	if r.OnCreated != nil {
		r.OnCreated(visitor)
	}
	return visitor, true, nil
}

func (r *Resolver) newVisitor(ctx context.Context, sessionID string, meta ArrivalMetadata, now time.Time) *Visitor {
	v := &Visitor{
		SessionID:   sessionID,
		IPAddress:   meta.IPAddress,
		UserAgent:   truncate(meta.UserAgent, 512),
		Language:    truncate(meta.Language, 16),
		Referrer:    truncate(meta.Referrer, 1024),
		UTMSource:   truncate(meta.UTMSource, 255),
		UTMMedium:   truncate(meta.UTMMedium, 255),
		UTMCampaign: truncate(meta.UTMCampaign, 255),
		Fingerprint: truncate(meta.Fingerprint, 128),
		Device:      string(clclassifier.DeviceDesktop),
		FirstSeen:   now,
		LastSeen:    now,
	}
	if v.Referrer == "" {
		v.Referrer = "Direct"
	}

	if r.classifier == nil {
		return v
	}
	res := r.classifier.Classify(ctx, clclassifier.Input{
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Referrer:  meta.Referrer,
	})
	v.Device = string(res.Device)
	v.ReferrerDomain = res.ReferrerDomain
	v.IsCompetitor = res.IsCompetitor
	v.CompanyName = res.CompanyName
	v.CompanyDomain = res.CompanyDomain
	v.ThreatLevel = res.ThreatLevel
	v.IsVPN = res.IsVPN
	v.IsProxy = res.IsProxy
	v.FraudScore = res.FraudScore
	v.City = res.City
	v.State = res.State
	return v
}

// touch étend [first_seen, last_seen] pour inclure at, sans toucher à la classification
func (r *Resolver) touch(ctx context.Context, sessionID string, at time.Time) (*Visitor, error) {
	db := r.db.WithContext(ctx)

	var visitor Visitor
	err := db.Where("session_id = ?", sessionID).First(&visitor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVisitorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading visitor: %w", err)
	}

	if !at.Before(visitor.FirstSeen) && !at.After(visitor.LastSeen) {
		return &visitor, nil
	}

	err = db.Model(&Visitor{}).
		Where("id = ?", visitor.ID).
		Updates(map[string]any{
			"first_seen": gorm.Expr("CASE WHEN first_seen > ? THEN ? ELSE first_seen END", at, at),
			"last_seen":  gorm.Expr("CASE WHEN last_seen < ? THEN ? ELSE last_seen END", at, at),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("updating visitor timestamps: %w", err)
	}

	if err := db.First(&visitor, "id = ?", visitor.ID).Error; err != nil {
		return nil, fmt.Errorf("reloading visitor: %w", err)
	}
	return &visitor, nil
}

func (r *Resolver) FindBySession(ctx context.Context, sessionID string) (*Visitor, error) {
	var visitor Visitor
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&visitor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVisitorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &visitor, nil
}

func (r *Resolver) Get(ctx context.Context, id string) (*Visitor, error) {
	var visitor Visitor
	err := r.db.WithContext(ctx).First(&visitor, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVisitorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &visitor, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
