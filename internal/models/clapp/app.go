package clapp

import (
	"context"
	"fmt"
	"haultrack/internal/clredis"
	"haultrack/internal/gormzerologger"
	"haultrack/internal/models/clalerts"
	"haultrack/internal/models/clanalytics"
	"haultrack/internal/models/clclassifier"
	"haultrack/internal/models/clcompetitors"
	"haultrack/internal/models/clconfig"
	"haultrack/internal/models/clnotify"
	"haultrack/internal/models/clvisitors"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// App regroupe les services construits une seule fois au démarrage
// et passés explicitement aux handlers
type App struct {
	Config  *clconfig.Config
	Version string
	BuildID string

	Db    *gorm.DB
	Redis *redis.Client

	Competitors *clcompetitors.Service
	Classifier  *clclassifier.Classifier
	Resolver    *clvisitors.Resolver
	Recorder    *clvisitors.Recorder
	Analytics   *clanalytics.AnalyticsService
	Alerts      *clalerts.Service
	Evaluator   *clalerts.Evaluator
	Dispatcher  *clnotify.Dispatcher

	geoip   *clclassifier.GeoIPIntel
	cron    *cron.Cron
	trigger *ingestTrigger
}

// New ouvre la base configurée et construit l'application
func New(config *clconfig.Config, version, buildID string) (*App, error) {
	db, err := OpenDatabase(config)
	if err != nil {
		return nil, err
	}
	app, err := NewWithDB(config, db)
	if err != nil {
		return nil, err
	}
	app.Version = version
	app.BuildID = buildID
	return app, nil
}

func OpenDatabase(config *clconfig.Config) (*gorm.DB, error) {
	gormLogger := gormzerologger.New(gormzerologger.LevelFor(config.Logger.Level, config.Production))

	var (
		db  *gorm.DB
		err error
	)
	switch config.Database.Db {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(config.Database.Path), &gorm.Config{
			Logger: gormLogger,
		})
	case "mysql":
		db, err = gorm.Open(mysql.Open(config.Database.Dsn), &gorm.Config{
			Logger: gormLogger,
		})
	default:
		err = fmt.Errorf("database type must be sqlite or mysql")
	}
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&clvisitors.Visitor{},
		&clvisitors.PageView{},
		&clcompetitors.CompetitorIP{},
		&clalerts.AlertRule{},
		&clalerts.Alert{},
	)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	return nil
}

// NewWithDB construit l'application sur une base déjà ouverte
func NewWithDB(config *clconfig.Config, db *gorm.DB) (*App, error) {
	config.ApplyDefaults()
	if err := Migrate(db); err != nil {
		return nil, err
	}

	app := &App{
		Config: config,
		Db:     db,
		cron:   cron.New(),
	}

	if config.Redis.Addr != "" {
		app.Redis = clredis.NewClient(config.Redis.Addr, config.Redis.Db, config.Redis.Password)
	}

	app.Competitors = clcompetitors.NewService(db)
	if err := app.Competitors.Reload(context.Background()); err != nil {
		return nil, err
	}

	sources := clclassifier.NewSourceTable(config.Tracking.SearchDomains, config.Tracking.SocialDomains)
	app.Classifier = clclassifier.New(sources, app.Competitors.Matcher(), app.newIntel(), clclassifier.Options{
		VPNThreshold:   config.Tracking.VpnThreshold,
		ProxyThreshold: config.Tracking.ProxyThreshold,
		LookupTimeout:  config.Tracking.LookupTimeout,
	})

	app.Resolver = clvisitors.NewResolver(db, app.Classifier)
	app.Recorder = clvisitors.NewRecorder(db, app.Resolver)

	var cache clanalytics.Cache
	if app.Redis != nil {
		cache = clredis.New(app.Redis, "haultrack:summary", 0)
	}
	app.Analytics = clanalytics.NewAnalyticsService(db, sources, cache, clanalytics.Options{
		ActiveWindow:   config.Tracking.ActiveWindow,
		DefaultWindow:  config.Tracking.DefaultWindow,
		FraudThreshold: config.Tracking.FraudThreshold,
	})

	app.Dispatcher = app.newDispatcher()
	app.Alerts = clalerts.NewService(db, app.Analytics)
	app.Evaluator = clalerts.NewEvaluator(db, app.Analytics, app.Dispatcher)
	app.trigger = newIngestTrigger(app.evaluateAtIngestion)
	app.Resolver.OnCreated = app.onVisitorCreated

	return app, nil
}

func (app *App) newIntel() clclassifier.IPIntel {
	cfg := app.Config.Geoip
	if cfg.CityDb == "" && cfg.AnonymousDb == "" {
		return clclassifier.NopIntel{}
	}
	geoip, err := clclassifier.OpenGeoIP(cfg.CityDb, cfg.AnonymousDb)
	if err != nil {
		log.Warn().Err(err).Msg("geoip databases unavailable, enrichment disabled")
		return clclassifier.NopIntel{}
	}
	app.geoip = geoip
	return clclassifier.NewBreakerIntel(geoip, cfg.BreakerFailures, cfg.BreakerTimeout)
}

func (app *App) newDispatcher() *clnotify.Dispatcher {
	cfg := app.Config.Alerts
	d := clnotify.NewDispatcher(cfg.DispatchTimeout)
	for name, url := range cfg.Webhooks {
		d.Register(name, clnotify.NewWebhookSink(url, nil))
	}
	if len(cfg.RedisChannels) > 0 {
		if app.Redis == nil {
			log.Warn().Strs("channels", cfg.RedisChannels).Msg("redis channels configured without redis, alerts will only be logged")
		} else {
			sink := clnotify.NewRedisSink(app.Redis, cfg.RedisChannel)
			for _, ch := range cfg.RedisChannels {
				d.Register(ch, sink)
			}
		}
	}
	return d
}

// onVisitorCreated demande l'évaluation des règles concernées par un visiteur suspect
func (app *App) onVisitorCreated(v *clvisitors.Visitor) {
	var metrics []string
	if v.IsCompetitor {
		metrics = append(metrics, clanalytics.MetricCompetitorVisits)
	}
	if v.IsVPN {
		metrics = append(metrics, clanalytics.MetricVPNDetections)
	}
	if v.FraudScore >= app.Config.Tracking.FraudThreshold {
		metrics = append(metrics, clanalytics.MetricHighFraudVisitors)
	}
	if len(metrics) == 0 {
		return
	}

	app.trigger.Notify(metrics...)
}

func (app *App) evaluateAtIngestion(ctx context.Context, metrics []string) {
	if _, err := app.Evaluator.Trigger(ctx, metrics...); err != nil {
		log.Warn().Err(err).Strs("metrics", metrics).Msg("ingestion alert evaluation failed")
	}
}

// Start planifie l'évaluation des alertes, la purge de rétention et la
// relecture des plages concurrentes
func (app *App) Start() error {
	if _, err := app.Evaluator.Schedule(app.cron, app.Config.Alerts.Schedule); err != nil {
		return fmt.Errorf("alerts schedule %q: %w", app.Config.Alerts.Schedule, err)
	}
	if _, err := app.Analytics.ScheduleCleanup(app.cron, app.Config.Tracking.CleanupCron, app.Config.Tracking.RetentionDays); err != nil {
		return fmt.Errorf("cleanup schedule %q: %w", app.Config.Tracking.CleanupCron, err)
	}
	if _, err := app.Competitors.ScheduleReload(app.cron, app.Config.Competitors.ReloadCron); err != nil {
		return fmt.Errorf("competitors reload schedule %q: %w", app.Config.Competitors.ReloadCron, err)
	}
	app.cron.Start()
	return nil
}

// Stop attend la fin des tâches en cours
func (app *App) Stop() {
	<-app.cron.Stop().Done()
	app.trigger.Stop()
	app.Dispatcher.Wait()
	if app.geoip != nil {
		if err := app.geoip.Close(); err != nil {
			log.Warn().Err(err).Msg("closing geoip databases")
		}
	}
	if app.Redis != nil {
		_ = app.Redis.Close()
	}
}
