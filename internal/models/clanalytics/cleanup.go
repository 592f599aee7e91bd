package clanalytics

import (
	"context"
	"fmt"
	"haultrack/internal/models/clvisitors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Cleanup supprime les visiteurs inactifs depuis retentionDays et leurs pages vues
func (as *AnalyticsService) Cleanup(ctx context.Context, retentionDays int) (visitors int64, pageViews int64, err error) {
	if retentionDays <= 0 {
		return 0, 0, nil
	}
	cutoff := as.now().UTC().AddDate(0, 0, -retentionDays)

	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&clvisitors.Visitor{}).Select("id").Where("last_seen < ?", cutoff)

		result := tx.Where("visitor_id IN (?)", stale).Delete(&clvisitors.PageView{})
		if result.Error != nil {
			return result.Error
		}
		pageViews = result.RowsAffected

		result = tx.Where("last_seen < ?", cutoff).Delete(&clvisitors.Visitor{})
		if result.Error != nil {
			return result.Error
		}
		visitors = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("cleanup failed: %w", err)
	}

	log.Info().
		Int64("visitors", visitors).
		Int64("page_views", pageViews).
		Time("cutoff", cutoff).
		Msg("retention cleanup completed")
	return visitors, pageViews, nil
}

// ScheduleCleanup enregistre la purge de rétention sur le cron de l'application
func (as *AnalyticsService) ScheduleCleanup(c *cron.Cron, spec string, retentionDays int) (cron.EntryID, error) {
	if spec == "" {
		// tous les jours à 2h du matin
		spec = "0 2 * * *"
	}
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, _, err := as.Cleanup(ctx, retentionDays); err != nil {
			log.Error().Err(err).Msg("retention cleanup failed")
		}
	})
}
