package handlers_alerts

import (
	"errors"
	"haultrack/internal/models/clalerts"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type AlertsHandler struct {
	service   *clalerts.Service
	evaluator *clalerts.Evaluator
}

func NewAlertsHandler(service *clalerts.Service, evaluator *clalerts.Evaluator) *AlertsHandler {
	return &AlertsHandler{
		service:   service,
		evaluator: evaluator,
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

// respondError traduit les erreurs du service en statut HTTP
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, clalerts.ErrInvalidRule):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, clalerts.ErrRuleNotFound), errors.Is(err, clalerts.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("alerts request failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alerts temporarily unavailable"})
	}
}

// ListAlerts : ?unread=true&severity=high&rule_id=3&limit=20
func (ah *AlertsHandler) ListAlerts(c *gin.Context) {
	var filter clalerts.AlertFilter

	if raw := c.Query("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unread flag"})
			return
		}
		filter.Unread = unread
	}
	if raw := c.Query("severity"); raw != "" {
		filter.Severity = clalerts.Severity(raw)
		if !filter.Severity.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid severity"})
			return
		}
	}
	if raw := c.Query("rule_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule_id"})
			return
		}
		filter.RuleID = uint(id)
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		filter.Limit = limit
	}

	alerts, err := ah.service.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

type AlertUpdateRequest struct {
	Read *bool `json:"read" binding:"required"`
}

// UpdateAlert ne permet que de marquer une alerte lue ou non lue
func (ah *AlertsHandler) UpdateAlert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req AlertUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read is required"})
		return
	}

	alert, err := ah.service.MarkRead(c.Request.Context(), id, *req.Read)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (ah *AlertsHandler) ListRules(c *gin.Context) {
	rules, err := ah.service.ListRules(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if rules == nil {
		rules = []clalerts.AlertRule{}
	}
	c.JSON(http.StatusOK, rules)
}

func (ah *AlertsHandler) GetRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := ah.service.GetRule(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (ah *AlertsHandler) CreateRule(c *gin.Context) {
	var rule clalerts.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule: " + err.Error()})
		return
	}

	if err := ah.service.CreateRule(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	log.Info().Uint("rule_id", rule.ID).Str("metric", rule.Metric).Msg("alert rule created")
	c.JSON(http.StatusCreated, rule)
}

func (ah *AlertsHandler) UpdateRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var upd clalerts.RuleUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule: " + err.Error()})
		return
	}

	rule, err := ah.service.UpdateRule(c.Request.Context(), id, upd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (ah *AlertsHandler) setStatus(c *gin.Context, status clalerts.Status) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := ah.service.SetStatus(c.Request.Context(), id, status)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Info().Uint("rule_id", id).Str("status", string(status)).Msg("alert rule status changed")
	c.JSON(http.StatusOK, rule)
}

func (ah *AlertsHandler) PauseRule(c *gin.Context) {
	ah.setStatus(c, clalerts.StatusPaused)
}

func (ah *AlertsHandler) ResumeRule(c *gin.Context) {
	ah.setStatus(c, clalerts.StatusActive)
}

// EvaluateNow déclenche un passage d'évaluation hors planification
func (ah *AlertsHandler) EvaluateNow(c *gin.Context) {
	fired, err := ah.evaluator.EvaluateAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fired": fired})
}
