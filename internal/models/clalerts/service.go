package clalerts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Service gère la configuration des règles et la lecture des alertes
type Service struct {
	db      *gorm.DB
	metrics MetricSource
}

func NewService(db *gorm.DB, metrics MetricSource) *Service {
	return &Service{db: db, metrics: metrics}
}

func (s *Service) hasMetric(name string) bool {
	if s.metrics == nil {
		return name != ""
	}
	return s.metrics.HasMetric(name)
}

func (s *Service) CreateRule(ctx context.Context, rule *AlertRule) error {
	rule.ID = 0
	rule.InBreach = false
	rule.LastValue = 0
	rule.LastEvaluatedAt = nil
	rule.Metric = strings.TrimSpace(rule.Metric)
	if rule.Status == "" {
		rule.Status = StatusActive
	}
	if rule.Severity == "" {
		rule.Severity = SeverityMedium
	}
	if rule.WindowSeconds == 0 {
		rule.WindowSeconds = DefaultWindowSeconds
	}
	rule.ChannelList = normalizeChannels(rule.ChannelList)
	if err := rule.Validate(s.hasMetric); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("creating alert rule: %w", err)
	}
	return nil
}

func (s *Service) ListRules(ctx context.Context) ([]AlertRule, error) {
	var rules []AlertRule
	err := s.db.WithContext(ctx).Order("id ASC").Find(&rules).Error
	return rules, err
}

func (s *Service) GetRule(ctx context.Context, id uint) (*AlertRule, error) {
	var rule AlertRule
	err := s.db.WithContext(ctx).First(&rule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// RuleUpdate ne contient que les champs à modifier
type RuleUpdate struct {
	Name          *string     `json:"name"`
	Metric        *string     `json:"metric"`
	Comparator    *Comparator `json:"comparator"`
	Threshold     *float64    `json:"threshold"`
	WindowSeconds *int        `json:"window_seconds"`
	Severity      *Severity   `json:"severity"`
	Channels      *[]string   `json:"channels"`
}

// UpdateRule modifie la configuration sans toucher à l'état d'évaluation
func (s *Service) UpdateRule(ctx context.Context, id uint, upd RuleUpdate) (*AlertRule, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		rule.Name = *upd.Name
	}
	if upd.Metric != nil {
		rule.Metric = strings.TrimSpace(*upd.Metric)
	}
	if upd.Comparator != nil {
		rule.Comparator = *upd.Comparator
	}
	if upd.Threshold != nil {
		rule.Threshold = *upd.Threshold
	}
	if upd.WindowSeconds != nil {
		rule.WindowSeconds = *upd.WindowSeconds
	}
	if upd.Severity != nil {
		rule.Severity = *upd.Severity
	}
	if upd.Channels != nil {
		rule.ChannelList = normalizeChannels(*upd.Channels)
	}
	if err := rule.Validate(s.hasMetric); err != nil {
		return nil, err
	}
	rule.Channels = strings.Join(rule.ChannelList, ",")

	err = s.db.WithContext(ctx).
		Model(rule).
		Select("name", "metric", "comparator", "threshold", "window_seconds", "severity", "channels", "updated_at").
		Updates(rule).Error
	if err != nil {
		return nil, fmt.Errorf("updating alert rule: %w", err)
	}
	return s.GetRule(ctx, id)
}

// SetStatus met en pause ou réactive une règle
func (s *Service) SetStatus(ctx context.Context, id uint, status Status) (*AlertRule, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status must be active or paused", ErrInvalidRule)
	}
	result := s.db.WithContext(ctx).
		Model(&AlertRule{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return nil, fmt.Errorf("updating alert rule status: %w", result.Error)
	}
	return s.GetRule(ctx, id)
}

// AlertFilter filtre la liste des alertes du tableau de bord
type AlertFilter struct {
	Unread   bool
	Severity Severity
	RuleID   uint
	Limit    int
}

func (s *Service) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	query := s.db.WithContext(ctx).Model(&Alert{})
	if filter.Unread {
		query = query.Where("`read` = ?", false)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.RuleID != 0 {
		query = query.Where("source_rule_id = ?", filter.RuleID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	alerts := []Alert{}
	err := query.Order("timestamp DESC, id DESC").Limit(limit).Find(&alerts).Error
	return alerts, err
}

func (s *Service) GetAlert(ctx context.Context, id uint) (*Alert, error) {
	var alert Alert
	err := s.db.WithContext(ctx).First(&alert, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// MarkRead est la seule modification autorisée sur une alerte
func (s *Service) MarkRead(ctx context.Context, id uint, read bool) (*Alert, error) {
	result := s.db.WithContext(ctx).
		Model(&Alert{}).
		Where("id = ?", id).
		Update("read", read)
	if result.Error != nil {
		return nil, fmt.Errorf("updating alert: %w", result.Error)
	}
	return s.GetAlert(ctx, id)
}
