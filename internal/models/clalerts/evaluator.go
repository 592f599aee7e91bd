package clalerts

import (
	"context"
	"errors"
	"fmt"
	"haultrack/internal/models/clmetrics"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// MetricSource est satisfait par clanalytics.AnalyticsService
type MetricSource interface {
	Metric(ctx context.Context, name string, window time.Duration) (float64, error)
	HasMetric(name string) bool
}

// Dispatcher transmet une alerte aux canaux sans bloquer l'évaluateur
type Dispatcher interface {
	Dispatch(alert Alert, channels []string)
}

// Evaluator applique les règles à chaque tick.
// Une règle ne déclenche qu'au passage hors seuil, pas à chaque tick.
type Evaluator struct {
	db         *gorm.DB
	metrics    MetricSource
	dispatcher Dispatcher
	now        func() time.Time
}

func NewEvaluator(db *gorm.DB, metrics MetricSource, dispatcher Dispatcher) *Evaluator {
	return &Evaluator{
		db:         db,
		metrics:    metrics,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *Evaluator) SetClock(now func() time.Time) {
	e.now = now
}

// EvaluateAll évalue toutes les règles, y compris celles en pause
func (e *Evaluator) EvaluateAll(ctx context.Context) (int, error) {
	var rules []AlertRule
	if err := e.db.WithContext(ctx).Order("id ASC").Find(&rules).Error; err != nil {
		return 0, fmt.Errorf("loading alert rules: %w", err)
	}
	return e.evaluate(ctx, rules)
}

// Trigger évalue à l'ingestion les règles portant sur les métriques données
func (e *Evaluator) Trigger(ctx context.Context, metrics ...string) (int, error) {
	if len(metrics) == 0 {
		return 0, nil
	}
	var rules []AlertRule
	err := e.db.WithContext(ctx).
		Where("metric IN ? AND status = ?", metrics, StatusActive).
		Order("id ASC").
		Find(&rules).Error
	if err != nil {
		return 0, fmt.Errorf("loading alert rules: %w", err)
	}
	return e.evaluate(ctx, rules)
}

func (e *Evaluator) evaluate(ctx context.Context, rules []AlertRule) (int, error) {
	var (
		fired int
		errs  []error
	)
	for i := range rules {
		alert, err := e.EvaluateRule(ctx, &rules[i])
		if err != nil {
			log.Warn().Err(err).Uint("rule_id", rules[i].ID).Str("metric", rules[i].Metric).Msg("alert rule evaluation failed")
			errs = append(errs, err)
			continue
		}
		if alert != nil {
			fired++
		}
	}
	return fired, errors.Join(errs...)
}

// EvaluateRule retourne l'alerte émise, ou nil si la règle ne déclenche pas.
// Une erreur de métrique laisse l'état de la règle inchangé.
func (e *Evaluator) EvaluateRule(ctx context.Context, rule *AlertRule) (*Alert, error) {
	value, err := e.metrics.Metric(ctx, rule.Metric, rule.Window())
	if err != nil {
		return nil, fmt.Errorf("rule %d: %w", rule.ID, err)
	}
	now := e.now().UTC()
	breached := rule.Comparator.Breached(value, rule.Threshold)

	var alert *Alert
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !breached {
			return tx.Model(&AlertRule{}).
				Where("id = ?", rule.ID).
				Updates(map[string]any{
					"in_breach":         false,
					"last_value":        value,
					"last_evaluated_at": now,
				}).Error
		}

		// seul l'évaluateur qui fait passer in_breach à vrai ouvre l'épisode
		result := tx.Model(&AlertRule{}).
			Where("id = ? AND in_breach = ?", rule.ID, false).
			Updates(map[string]any{
				"in_breach":         true,
				"last_value":        value,
				"last_evaluated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return tx.Model(&AlertRule{}).
				Where("id = ?", rule.ID).
				Updates(map[string]any{
					"last_value":        value,
					"last_evaluated_at": now,
				}).Error
		}

		if rule.Status != StatusActive {
			log.Debug().Uint("rule_id", rule.ID).Float64("value", value).Msg("paused rule breached, alert suppressed")
			return nil
		}

		alert = &Alert{
			Type:         rule.Metric,
			Severity:     rule.Severity,
			Message:      formatMessage(rule, value),
			Timestamp:    now,
			SourceRuleID: rule.ID,
			Value:        value,
		}
		return tx.Create(alert).Error
	})
	if err != nil {
		return nil, fmt.Errorf("rule %d: %w", rule.ID, err)
	}

	rule.InBreach = breached
	rule.LastValue = value
	rule.LastEvaluatedAt = &now

	if alert == nil {
		return nil, nil
	}

	clmetrics.AlertsFired.WithLabelValues(string(alert.Severity)).Inc()
	log.Info().
		Uint("rule_id", rule.ID).
		Uint("alert_id", alert.ID).
		Str("severity", string(alert.Severity)).
		Float64("value", value).
		Msg("alert fired")

	if e.dispatcher != nil {
		e.dispatcher.Dispatch(*alert, rule.ChannelList)
	}
	return alert, nil
}

func formatMessage(rule *AlertRule, value float64) string {
	return fmt.Sprintf("%s: %s is %g (%s %g over %s)",
		rule.Name, rule.Metric, value, rule.Comparator.Symbol(), rule.Threshold, rule.Window())
}

// Schedule enregistre l'évaluation périodique sur le cron de l'application
func (e *Evaluator) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = "@every 1m"
	}
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		fired, err := e.EvaluateAll(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("alert evaluation tick completed with errors")
			return
		}
		log.Debug().Int("fired", fired).Msg("alert evaluation tick completed")
	})
}
