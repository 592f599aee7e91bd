package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"haultrack/internal/clmiddleware"
	handlers_admin "haultrack/internal/handlers/admin"
	handlers_alerts "haultrack/internal/handlers/alerts"
	handlers_analytics "haultrack/internal/handlers/analytics"
	handlers_competitors "haultrack/internal/handlers/competitors"
	handlers_tracking "haultrack/internal/handlers/tracking"
	"haultrack/internal/models/clapp"
	"haultrack/internal/models/clconfig"
	"haultrack/internal/models/cllog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const VERSION string = "0.3.0"

var BuildID string

func parseCommandLineArgs() (configFile string, shouldCreateExample bool, versionDisplay bool, err error) {
	var config = flag.String("config", "", "Fichier de configuration YAML")
	var example = flag.Bool("example", false, "Créer un fichier de configuration exemple")
	var version = flag.Bool("version", false, "version du produit")
	flag.Parse()

	if *version {
		return "", false, true, nil
	}

	if *example {
		return "", true, false, nil
	}

	if *config == "" {
		return "", false, false, fmt.Errorf("configuration file required")
	}

	return *config, false, false, nil
}

func initConfiguration() *clconfig.Config {
	configFile, shouldCreateExample, versionDisplay, err := parseCommandLineArgs()
	if err != nil {
		fmt.Println("Usage:")
		fmt.Println("  haultrack -config haultrack.yaml")
		fmt.Println("  haultrack -example  (create an example file)")
		fmt.Println("  haultrack -version  (display version)")
		os.Exit(1)
	}

	if versionDisplay {
		println(VERSION)
		os.Exit(0)
	}

	clconfig.CreateExample(shouldCreateExample, configFile)

	// Load and validate configuration
	conf, err := clconfig.LoadConfig(configFile)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if err := clconfig.HashPassword(configFile, conf); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	return conf
}

func newServer(config *clconfig.Config) *gin.Engine {
	if config.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// sans proxy déclaré, les en-têtes X-Forwarded-For sont ignorés
	if err := r.SetTrustedProxies(config.TrustedProxies); err != nil {
		log.Warn().Err(err).Msg("invalid trusted proxies")
	}
	if config.TrustedPlatform != "" {
		switch config.TrustedPlatform {
		case "cloudflare":
			r.TrustedPlatform = gin.PlatformCloudflare
		case "google":
			r.TrustedPlatform = gin.PlatformGoogleAppEngine
		case "flyio":
			r.TrustedPlatform = gin.PlatformFlyIO
		default:
			r.TrustedPlatform = config.TrustedPlatform
		}
	}

	return r
}

func setRoutes(r *gin.Engine, app *clapp.App) error {
	// middleware rate limiter, partagé entre instances via redis
	middlewareLimiter, err := clmiddleware.NewLimiter(app.Config.Tracking.RateLimit, app.Redis)
	if err != nil {
		return err
	}

	tracking := handlers_tracking.NewTrackingHandler(app.Resolver, app.Recorder)
	analytics := handlers_analytics.NewAnalyticsHandler(app.Analytics)
	alerts := handlers_alerts.NewAlertsHandler(app.Alerts, app.Evaluator)
	competitors := handlers_competitors.NewCompetitorsHandler(app.Competitors)
	admin := handlers_admin.NewAdminHandler(app.Config.User)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	r.GET("/healthz", healthzHandler(app))

	// Balises publiques
	track := r.Group("/api/track")
	track.Use(middlewareLimiter)
	{
		track.POST("/visit", tracking.TrackVisit)
		track.POST("/pageview", tracking.TrackPageView)
		track.POST("/pageview/close", tracking.ClosePageView)
	}

	// Routes d'authentification
	r.POST("/admin/login", middlewareLimiter, admin.Login)
	r.POST("/admin/logout", admin.Logout)
	r.GET("/admin/me", admin.Me)

	// API d'administration protégée
	api := r.Group("/api/admin")
	api.Use(clmiddleware.AuthRequired())
	{
		api.GET("/summary", analytics.GetSummary)
		api.GET("/metrics", analytics.ListMetrics)
		api.GET("/metrics/:name", analytics.GetMetric)

		api.GET("/alerts", alerts.ListAlerts)
		api.PATCH("/alerts/:id", alerts.UpdateAlert)

		api.GET("/rules", alerts.ListRules)
		api.POST("/rules", alerts.CreateRule)
		api.POST("/rules/evaluate", alerts.EvaluateNow)
		api.GET("/rules/:id", alerts.GetRule)
		api.PATCH("/rules/:id", alerts.UpdateRule)
		api.POST("/rules/:id/pause", alerts.PauseRule)
		api.POST("/rules/:id/resume", alerts.ResumeRule)

		api.GET("/competitors", competitors.ListCompetitors)
		api.POST("/competitors", competitors.CreateCompetitor)
		api.PATCH("/competitors/:id", competitors.UpdateCompetitor)
		api.DELETE("/competitors/:id", competitors.DeleteCompetitor)
	}

	return nil
}

func healthzHandler(app *clapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := app.Db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			log.Error().Err(err).Msg("healthz: database unreachable")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": app.Version,
			"build":   app.BuildID,
		})
	}
}

func startServer(ctx context.Context, r *gin.Engine, config *clconfig.Config) error {
	if config.Listen.Metrics != "" {
		log.Info().Msgf("Metrics available on http://%s/metrics", config.Listen.Metrics)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(config.Listen.Metrics, mux); err != nil {
				log.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:              config.Listen.Website,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Tracking API started on http://%s", config.Listen.Website)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if BuildID == "" {
		BuildID = VERSION
	}

	config := initConfiguration()
	cllog.InitLogger(config.Logger, config.Production)
	clconfig.DisplayConfiguration(config, VERSION)

	app, err := clapp.New(config, VERSION, BuildID)
	if err != nil {
		log.Fatal().Err(err).Msg("application init failed")
	}

	r := newServer(config)
	clmiddleware.InitMiddleware(r, config.Production)
	if err := setRoutes(r, app); err != nil {
		log.Fatal().Err(err).Msg("routes init failed")
	}

	if err := app.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startServer(ctx, r, config); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
	app.Stop()
}
