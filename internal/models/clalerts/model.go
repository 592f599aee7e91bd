package clalerts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrRuleNotFound  = errors.New("alert rule not found")
	ErrAlertNotFound = errors.New("alert not found")
	ErrInvalidRule   = errors.New("invalid alert rule")
)

type Comparator string

const (
	ComparatorGT  Comparator = "gt"
	ComparatorGTE Comparator = "gte"
	ComparatorLT  Comparator = "lt"
	ComparatorLTE Comparator = "lte"
	ComparatorEQ  Comparator = "eq"
)

func (c Comparator) Valid() bool {
	switch c {
	case ComparatorGT, ComparatorGTE, ComparatorLT, ComparatorLTE, ComparatorEQ:
		return true
	}
	return false
}

// Breached indique si value franchit le seuil
func (c Comparator) Breached(value, threshold float64) bool {
	switch c {
	case ComparatorGT:
		return value > threshold
	case ComparatorGTE:
		return value >= threshold
	case ComparatorLT:
		return value < threshold
	case ComparatorLTE:
		return value <= threshold
	case ComparatorEQ:
		return value == threshold
	}
	return false
}

func (c Comparator) Symbol() string {
	switch c {
	case ComparatorGT:
		return ">"
	case ComparatorGTE:
		return ">="
	case ComparatorLT:
		return "<"
	case ComparatorLTE:
		return "<="
	case ComparatorEQ:
		return "="
	}
	return string(c)
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusPaused
}

const DefaultWindowSeconds = 3600

// AlertRule compare une métrique agrégée à un seuil.
// InBreach garde l'état du dernier passage pour ne déclencher qu'au franchissement.
type AlertRule struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"size:255;not null" json:"name"`
	Metric          string     `gorm:"size:64;not null;index" json:"metric"`
	Comparator      Comparator `gorm:"size:4;not null" json:"comparator"`
	Threshold       float64    `json:"threshold"`
	WindowSeconds   int        `gorm:"not null;default:3600" json:"window_seconds"`
	Severity        Severity   `gorm:"size:10;not null" json:"severity"`
	Channels        string     `gorm:"size:512" json:"-"`
	ChannelList     []string   `gorm:"-" json:"channels"`
	Status          Status     `gorm:"size:10;not null;index" json:"status"`
	InBreach        bool       `gorm:"not null;default:false" json:"in_breach"`
	LastValue       float64    `json:"last_value"`
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Alert est un événement émis par l'évaluateur ; seul Read change ensuite
type Alert struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Type         string    `gorm:"size:64;not null;index" json:"type"`
	Severity     Severity  `gorm:"size:10;not null;index" json:"severity"`
	Message      string    `gorm:"size:1024" json:"message"`
	Timestamp    time.Time `gorm:"not null;index" json:"timestamp"`
	Read         bool      `gorm:"not null;default:false;index" json:"read"`
	SourceRuleID uint      `gorm:"index" json:"source_rule_id"`
	Value        float64   `json:"value"`
}

func (AlertRule) TableName() string {
	return "alert_rules"
}

func (Alert) TableName() string {
	return "alerts"
}

// Window retourne la fenêtre d'évaluation de la règle
func (r *AlertRule) Window() time.Duration {
	if r.WindowSeconds <= 0 {
		return DefaultWindowSeconds * time.Second
	}
	return time.Duration(r.WindowSeconds) * time.Second
}

// BeforeSave convertit ChannelList en chaîne pour la base de données
func (r *AlertRule) BeforeSave(tx *gorm.DB) error {
	r.Channels = strings.Join(normalizeChannels(r.ChannelList), ",")
	return nil
}

// AfterFind convertit la chaîne de canaux en liste
func (r *AlertRule) AfterFind(tx *gorm.DB) error {
	r.ChannelList = []string{}
	if r.Channels != "" {
		r.ChannelList = normalizeChannels(strings.Split(r.Channels, ","))
	}
	return nil
}

func normalizeChannels(channels []string) []string {
	out := make([]string, 0, len(channels))
	seen := make(map[string]bool, len(channels))
	for _, ch := range channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out
}

// Validate vérifie la règle ; hasMetric indique les métriques connues
func (r *AlertRule) Validate(hasMetric func(string) bool) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if hasMetric != nil && !hasMetric(r.Metric) {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidRule, r.Metric)
	}
	if !r.Comparator.Valid() {
		return fmt.Errorf("%w: comparator must be one of gt, gte, lt, lte, eq", ErrInvalidRule)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: severity must be low, medium or high", ErrInvalidRule)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: status must be active or paused", ErrInvalidRule)
	}
	if r.WindowSeconds < 0 {
		return fmt.Errorf("%w: window_seconds must be >= 0", ErrInvalidRule)
	}
	return nil
}
