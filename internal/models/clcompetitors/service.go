package clcompetitors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service gère les plages concurrentes en base et garde le Matcher à jour
type Service struct {
	db      *gorm.DB
	matcher *Matcher
}

func NewService(db *gorm.DB) *Service {
	return &Service{
		db:      db,
		matcher: NewMatcher(nil),
	}
}

func (s *Service) Matcher() *Matcher {
	return s.matcher
}

// Reload relit toutes les plages et reconstruit le Matcher
func (s *Service) Reload(ctx context.Context) error {
	var records []CompetitorIP
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&records).Error; err != nil {
		return fmt.Errorf("loading competitor ranges: %w", err)
	}
	before := s.matcher.Len()
	s.matcher.Load(records)
	if s.matcher.Len() != before {
		log.Info().Int("ranges", s.matcher.Len()).Msg("competitor ranges loaded")
	} else {
		log.Debug().Int("ranges", s.matcher.Len()).Msg("competitor ranges reloaded")
	}
	return nil
}

// ScheduleReload relit périodiquement les plages : une plage ajoutée par
// une autre instance s'applique ici au plus tard au tick suivant
func (s *Service) ScheduleReload(c *cron.Cron, spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = "@every 1m"
	}
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Reload(ctx); err != nil {
			log.Warn().Err(err).Msg("competitor ranges reload failed, keeping previous ranges")
		}
	})
}

func (s *Service) List(ctx context.Context) ([]CompetitorIP, error) {
	var records []CompetitorIP
	err := s.db.WithContext(ctx).Order("company_name ASC, id ASC").Find(&records).Error
	return records, err
}

func (s *Service) Create(ctx context.Context, record *CompetitorIP) error {
	record.ID = 0
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("creating competitor range: %w", err)
	}
	return s.Reload(ctx)
}

// CompetitorUpdate ne contient que les champs à modifier
type CompetitorUpdate struct {
	CompanyName *string      `json:"company_name"`
	IPRange     *string      `json:"ip_range"`
	Domain      *string      `json:"domain"`
	ThreatLevel *ThreatLevel `json:"threat_level"`
}

// Update modifie une plage en gardant son id, puis reconstruit le Matcher
func (s *Service) Update(ctx context.Context, id uint, upd CompetitorUpdate) (*CompetitorIP, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.CompanyName != nil {
		record.CompanyName = *upd.CompanyName
	}
	if upd.IPRange != nil {
		record.IPRange = *upd.IPRange
	}
	if upd.Domain != nil {
		record.Domain = *upd.Domain
	}
	if upd.ThreatLevel != nil {
		record.ThreatLevel = *upd.ThreatLevel
	}
	if strings.TrimSpace(record.CompanyName) == "" {
		return nil, fmt.Errorf("%w: company_name is required", ErrInvalidCompetitor)
	}

	if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
		return nil, fmt.Errorf("updating competitor range: %w", err)
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&CompetitorIP{}, id)
	if result.Error != nil {
		return fmt.Errorf("deleting competitor range: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCompetitorNotFound
	}
	return s.Reload(ctx)
}

func (s *Service) Get(ctx context.Context, id uint) (*CompetitorIP, error) {
	var record CompetitorIP
	err := s.db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCompetitorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
