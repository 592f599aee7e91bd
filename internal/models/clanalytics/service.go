package clanalytics

import (
	"context"
	"database/sql"
	"fmt"
	"haultrack/internal/models/clclassifier"
	"haultrack/internal/models/clmetrics"
	"haultrack/internal/models/clvisitors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Cache est satisfait par clredis.JSONCache
type Cache interface {
	Set(ctx context.Context, id string, value any) error
	Get(ctx context.Context, id string, value any) (bool, error)
}

type Options struct {
	ActiveWindow   time.Duration
	DefaultWindow  time.Duration
	FraudThreshold int
	TopLimit       int
}

// AnalyticsService calcule les agrégats à partir des lignes stockées,
// sans compteur incrémental qui pourrait dériver
type AnalyticsService struct {
	db      *gorm.DB
	sources *clclassifier.SourceTable
	cache   Cache
	opts    Options
	now     func() time.Time
}

func NewAnalyticsService(db *gorm.DB, sources *clclassifier.SourceTable, cache Cache, opts Options) *AnalyticsService {
	if sources == nil {
		sources = clclassifier.NewSourceTable(nil, nil)
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if opts.ActiveWindow <= 0 {
		opts.ActiveWindow = 5 * time.Minute
	}
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = 24 * time.Hour
	}
	if opts.FraudThreshold <= 0 {
		opts.FraudThreshold = 80
	}
	if opts.TopLimit <= 0 {
		opts.TopLimit = 10
	}
	return &AnalyticsService{
		db:      db,
		sources: sources,
		cache:   cache,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (as *AnalyticsService) SetClock(now func() time.Time) {
	as.now = now
}

func (as *AnalyticsService) DefaultWindow() time.Duration {
	return as.opts.DefaultWindow
}

func (as *AnalyticsService) bounds(window time.Duration) (time.Time, time.Time) {
	if window <= 0 {
		window = as.opts.DefaultWindow
	}
	now := as.now().UTC()
	return now.Add(-window), now
}

// visitors sélectionne les visiteurs dont la session recouvre [since, until]
func (as *AnalyticsService) visitors(ctx context.Context, since, until time.Time) *gorm.DB {
	return as.db.WithContext(ctx).
		Model(&clvisitors.Visitor{}).
		Where("last_seen >= ? AND first_seen <= ?", since, until)
}

func (as *AnalyticsService) count(ctx context.Context, window time.Duration, query string, args ...any) (int64, error) {
	since, until := as.bounds(window)
	var n int64
	tx := as.visitors(ctx, since, until)
	if query != "" {
		tx = tx.Where(query, args...)
	}
	if err := tx.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// ActiveNow compte les visiteurs vus dans la fenêtre d'activité
func (as *AnalyticsService) ActiveNow(ctx context.Context, window time.Duration) (int64, error) {
	if window <= 0 {
		window = as.opts.ActiveWindow
	}
	n, err := as.count(ctx, window, "")
	if err != nil {
		return 0, fmt.Errorf("error counting active visitors: %w", err)
	}
	return n, nil
}

func (as *AnalyticsService) TotalVisitors(ctx context.Context, window time.Duration) (int64, error) {
	n, err := as.count(ctx, window, "")
	if err != nil {
		return 0, fmt.Errorf("error counting visitors: %w", err)
	}
	return n, nil
}

// TotalPageViews somme les pages vues des visiteurs de la fenêtre
func (as *AnalyticsService) TotalPageViews(ctx context.Context, window time.Duration) (int64, error) {
	since, until := as.bounds(window)
	var n int64
	err := as.db.WithContext(ctx).
		Model(&clvisitors.PageView{}).
		Joins("JOIN visitors ON visitors.id = page_views.visitor_id").
		Where("page_views.timestamp >= ? AND page_views.timestamp <= ?", since, until).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("error counting page views: %w", err)
	}
	return n, nil
}

func (as *AnalyticsService) CompetitorVisits(ctx context.Context, window time.Duration) (int64, error) {
	n, err := as.count(ctx, window, "is_competitor = ?", true)
	if err != nil {
		return 0, fmt.Errorf("error counting competitor visits: %w", err)
	}
	return n, nil
}

func (as *AnalyticsService) VPNDetections(ctx context.Context, window time.Duration) (int64, error) {
	n, err := as.count(ctx, window, "is_vpn = ?", true)
	if err != nil {
		return 0, fmt.Errorf("error counting vpn detections: %w", err)
	}
	return n, nil
}

func (as *AnalyticsService) HighFraudVisitors(ctx context.Context, window time.Duration) (int64, error) {
	n, err := as.count(ctx, window, "fraud_score >= ?", as.opts.FraudThreshold)
	if err != nil {
		return 0, fmt.Errorf("error counting high fraud visitors: %w", err)
	}
	return n, nil
}

// TrafficBreakdown regroupe les referrers en SQL puis les classe avec la table de sources
func (as *AnalyticsService) TrafficBreakdown(ctx context.Context, window time.Duration) (TrafficBreakdown, error) {
	since, until := as.bounds(window)

	var rows []struct {
		Referrer       string
		ReferrerDomain string
		Count          int64
	}
	err := as.visitors(ctx, since, until).
		Select("referrer, referrer_domain, COUNT(*) as count").
		Group("referrer, referrer_domain").
		Scan(&rows).Error
	if err != nil {
		return TrafficBreakdown{}, fmt.Errorf("error getting traffic breakdown: %w", err)
	}

	var breakdown TrafficBreakdown
	for _, row := range rows {
		breakdown.add(as.sources.Bucket(row.Referrer, row.ReferrerDomain), row.Count)
	}
	return breakdown, nil
}

func (as *AnalyticsService) DeviceBreakdown(ctx context.Context, window time.Duration) (DeviceBreakdown, error) {
	since, until := as.bounds(window)

	var rows []struct {
		Device string
		Count  int64
	}
	err := as.visitors(ctx, since, until).
		Select("device, COUNT(*) as count").
		Group("device").
		Scan(&rows).Error
	if err != nil {
		return DeviceBreakdown{}, fmt.Errorf("error getting device breakdown: %w", err)
	}

	var breakdown DeviceBreakdown
	for _, row := range rows {
		breakdown.add(row.Device, row.Count)
	}
	return breakdown, nil
}

func (as *AnalyticsService) TopPages(ctx context.Context, window time.Duration) ([]PageStat, error) {
	since, until := as.bounds(window)

	topPages := []PageStat{}
	err := as.db.WithContext(ctx).
		Model(&clvisitors.PageView{}).
		Select("path, COUNT(*) as views").
		Where("timestamp >= ? AND timestamp <= ?", since, until).
		Group("path").
		Order("views DESC, path ASC").
		Limit(as.opts.TopLimit).
		Scan(&topPages).Error
	if err != nil {
		return nil, fmt.Errorf("error getting top pages: %w", err)
	}
	return topPages, nil
}

func (as *AnalyticsService) TopCompetitors(ctx context.Context, window time.Duration) ([]CompetitorStat, error) {
	since, until := as.bounds(window)

	top := []CompetitorStat{}
	err := as.visitors(ctx, since, until).
		Select("company_name, threat_level, COUNT(*) as visits").
		Where("is_competitor = ?", true).
		Group("company_name, threat_level").
		Order("visits DESC, company_name ASC").
		Limit(as.opts.TopLimit).
		Scan(&top).Error
	if err != nil {
		return nil, fmt.Errorf("error getting top competitors: %w", err)
	}
	return top, nil
}

// AvgDuration ignore les pages jamais fermées
func (as *AnalyticsService) AvgDuration(ctx context.Context, window time.Duration) (float64, error) {
	since, until := as.bounds(window)

	var avg sql.NullFloat64
	err := as.db.WithContext(ctx).
		Model(&clvisitors.PageView{}).
		Select("AVG(duration)").
		Where("timestamp >= ? AND timestamp <= ? AND duration IS NOT NULL", since, until).
		Row().
		Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("error getting average duration: %w", err)
	}
	return avg.Float64, nil
}

// Summary calcule tous les agrégats ; si la base échoue, le dernier résumé
// connu est servi avec Stale=true
func (as *AnalyticsService) Summary(ctx context.Context, window time.Duration) (*Summary, error) {
	if window <= 0 {
		window = as.opts.DefaultWindow
	}
	key := "summary:" + window.String()

	summary, err := as.compute(ctx, window)
	if err == nil {
		if cerr := as.cache.Set(ctx, key, summary); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to cache analytics summary")
		}
		return summary, nil
	}

	var cached Summary
	found, cerr := as.cache.Get(ctx, key, &cached)
	if cerr != nil || !found {
		if cerr != nil {
			log.Warn().Err(cerr).Msg("failed to read cached analytics summary")
		}
		return nil, err
	}

	clmetrics.SummaryStale.Inc()
	log.Warn().Err(err).Str("window", window.String()).Msg("serving stale analytics summary")
	cached.Stale = true
	return &cached, nil
}

func (as *AnalyticsService) compute(ctx context.Context, window time.Duration) (*Summary, error) {
	var err error
	s := &Summary{
		Window:      window.String(),
		GeneratedAt: as.now().UTC(),
	}

	if s.ActiveNow, err = as.ActiveNow(ctx, 0); err != nil {
		return nil, err
	}
	if s.TotalVisitors, err = as.TotalVisitors(ctx, window); err != nil {
		return nil, err
	}
	if s.TotalPageViews, err = as.TotalPageViews(ctx, window); err != nil {
		return nil, err
	}
	if s.Traffic, err = as.TrafficBreakdown(ctx, window); err != nil {
		return nil, err
	}
	if s.Devices, err = as.DeviceBreakdown(ctx, window); err != nil {
		return nil, err
	}
	if s.CompetitorVisits, err = as.CompetitorVisits(ctx, window); err != nil {
		return nil, err
	}
	if s.VPNDetections, err = as.VPNDetections(ctx, window); err != nil {
		return nil, err
	}
	if s.HighFraudVisitors, err = as.HighFraudVisitors(ctx, window); err != nil {
		return nil, err
	}
	if s.AvgDuration, err = as.AvgDuration(ctx, window); err != nil {
		return nil, err
	}
	if s.TopPages, err = as.TopPages(ctx, window); err != nil {
		return nil, err
	}
	if s.TopCompetitors, err = as.TopCompetitors(ctx, window); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	MetricActiveNow         = "active_now"
	MetricTotalVisitors     = "total_visitors"
	MetricTotalPageViews    = "total_page_views"
	MetricCompetitorVisits  = "competitor_visits"
	MetricVPNDetections     = "vpn_detections"
	MetricHighFraudVisitors = "high_fraud_visitors"
)

// MetricNames liste les métriques utilisables par les règles d'alerte
func MetricNames() []string {
	names := []string{
		MetricActiveNow,
		MetricTotalVisitors,
		MetricTotalPageViews,
		MetricCompetitorVisits,
		MetricVPNDetections,
		MetricHighFraudVisitors,
	}
	for _, b := range clclassifier.Buckets {
		names = append(names, "traffic_"+string(b))
	}
	for _, d := range clclassifier.Devices {
		names = append(names, "device_"+strings.ToLower(string(d)))
	}
	return names
}

func (as *AnalyticsService) HasMetric(name string) bool {
	for _, n := range MetricNames() {
		if n == name {
			return true
		}
	}
	return false
}

// Metric retourne la valeur courante d'une métrique nommée sur la fenêtre
func (as *AnalyticsService) Metric(ctx context.Context, name string, window time.Duration) (float64, error) {
	var (
		n   int64
		err error
	)
	switch {
	case name == MetricActiveNow:
		n, err = as.ActiveNow(ctx, window)
	case name == MetricTotalVisitors:
		n, err = as.TotalVisitors(ctx, window)
	case name == MetricTotalPageViews:
		n, err = as.TotalPageViews(ctx, window)
	case name == MetricCompetitorVisits:
		n, err = as.CompetitorVisits(ctx, window)
	case name == MetricVPNDetections:
		n, err = as.VPNDetections(ctx, window)
	case name == MetricHighFraudVisitors:
		n, err = as.HighFraudVisitors(ctx, window)
	case strings.HasPrefix(name, "traffic_") && as.HasMetric(name):
		var t TrafficBreakdown
		t, err = as.TrafficBreakdown(ctx, window)
		n = t.Get(clclassifier.Bucket(strings.TrimPrefix(name, "traffic_")))
	case strings.HasPrefix(name, "device_") && as.HasMetric(name):
		var d DeviceBreakdown
		d, err = as.DeviceBreakdown(ctx, window)
		n = d.Get(deviceFromMetric(name))
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}

func deviceFromMetric(name string) clclassifier.Device {
	class := strings.TrimPrefix(name, "device_")
	for _, d := range clclassifier.Devices {
		if strings.EqualFold(string(d), class) {
			return d
		}
	}
	return clclassifier.DeviceDesktop
}
