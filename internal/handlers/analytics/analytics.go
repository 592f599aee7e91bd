package handlers_analytics

import (
	"errors"
	"haultrack/internal/models/clanalytics"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// MaxWindow borne les fenêtres demandées depuis le tableau de bord
const MaxWindow = 366 * 24 * time.Hour

type AnalyticsHandler struct {
	service *clanalytics.AnalyticsService
}

func NewAnalyticsHandler(service *clanalytics.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// parseWindow lit ?window=24h ; absent, la fenêtre par défaut du service s'applique
func (ah *AnalyticsHandler) parseWindow(c *gin.Context) (time.Duration, bool) {
	raw := c.Query("window")
	if raw == "" {
		return ah.service.DefaultWindow(), true
	}
	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 || window > MaxWindow {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid window, expected a positive duration like 24h",
		})
		return 0, false
	}
	return window, true
}

// GetSummary retourne le tableau de bord agrégé sur la fenêtre demandée
func (ah *AnalyticsHandler) GetSummary(c *gin.Context) {
	window, ok := ah.parseWindow(c)
	if !ok {
		return
	}

	summary, err := ah.service.Summary(c.Request.Context(), window)
	if err != nil {
		log.Error().Err(err).Dur("window", window).Msg("summary unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to retrieve analytics",
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ListMetrics retourne les noms utilisables dans les règles d'alerte
func (ah *AnalyticsHandler) ListMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"metrics": clanalytics.MetricNames()})
}

// GetMetric retourne la valeur courante d'une métrique
func (ah *AnalyticsHandler) GetMetric(c *gin.Context) {
	window, ok := ah.parseWindow(c)
	if !ok {
		return
	}

	name := c.Param("name")
	value, err := ah.service.Metric(c.Request.Context(), name, window)
	if errors.Is(err, clanalytics.ErrUnknownMetric) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown metric"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("metric", name).Msg("metric unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to retrieve metric",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metric": name,
		"window": window.String(),
		"value":  value,
	})
}
