package handlers_tracking

import (
	"errors"
	"haultrack/internal/clmiddleware"
	"haultrack/internal/models/clvisitors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// TrackingHandler reçoit les balises envoyées par le script de suivi.
// Le navigateur n'attend pas la réponse : une balise perdue n'est pas une erreur.
type TrackingHandler struct {
	resolver *clvisitors.Resolver
	recorder *clvisitors.Recorder
}

func NewTrackingHandler(resolver *clvisitors.Resolver, recorder *clvisitors.Recorder) *TrackingHandler {
	return &TrackingHandler{
		resolver: resolver,
		recorder: recorder,
	}
}

type VisitRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	Referrer    string `json:"referrer"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	Fingerprint string `json:"fingerprint"`
}

type PageViewRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Path      string `json:"path" binding:"required"`
	Title     string `json:"title"`
}

type CloseRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	PageViewID uint64 `json:"page_view_id" binding:"required"`
	Duration   *int   `json:"duration" binding:"required"`
}

func arrival(c *gin.Context, fingerprint string) clvisitors.ArrivalMetadata {
	if fingerprint == "" {
		fingerprint = clmiddleware.Fingerprint(c)
	}
	return clvisitors.ArrivalMetadata{
		IPAddress:   clmiddleware.ClientIP(c),
		UserAgent:   c.Request.UserAgent(),
		Language:    clmiddleware.Language(c),
		Fingerprint: fingerprint,
	}
}

func storeUnavailable(c *gin.Context, err error, msg string) {
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Tracking temporarily unavailable"})
}

// TrackVisit résout la session et crée le visiteur à sa première balise
func (th *TrackingHandler) TrackVisit(c *gin.Context) {
	var req VisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	meta := arrival(c, req.Fingerprint)
	meta.Referrer = req.Referrer
	meta.UTMSource = req.UTMSource
	meta.UTMMedium = req.UTMMedium
	meta.UTMCampaign = req.UTMCampaign

	visitor, created, err := th.resolver.Resolve(c.Request.Context(), req.SessionID, meta)
	if errors.Is(err, clvisitors.ErrMissingSession) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	if err != nil {
		storeUnavailable(c, err, "track visit failed")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"visitor_id": visitor.ID,
		"created":    created,
	})
}

// TrackPageView ouvre une page vue ; crée le visiteur si la balise de visite n'est pas encore arrivée
func (th *TrackingHandler) TrackPageView(c *gin.Context) {
	var req PageViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and path are required"})
		return
	}

	view, err := th.recorder.RecordViewForSession(c.Request.Context(), req.SessionID, arrival(c, ""), req.Path, req.Title)
	switch {
	case errors.Is(err, clvisitors.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid path"})
		return
	case errors.Is(err, clvisitors.ErrMissingSession):
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	case err != nil:
		storeUnavailable(c, err, "track page view failed")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"page_view_id": view.ID})
}

// ClosePageView fixe la durée ; doublons et pages inconnues sont ignorés silencieusement
func (th *TrackingHandler) ClosePageView(c *gin.Context) {
	var req CloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id, page_view_id and duration are required"})
		return
	}

	_, err := th.recorder.CloseViewForSession(c.Request.Context(), req.SessionID, req.PageViewID, *req.Duration)
	switch {
	case errors.Is(err, clvisitors.ErrInvalidDuration):
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be >= 0"})
		return
	case errors.Is(err, clvisitors.ErrPageViewNotFound):
		log.Debug().Uint64("page_view_id", req.PageViewID).Msg("close beacon for unknown page view ignored")
	case err != nil:
		storeUnavailable(c, err, "close page view failed")
		return
	}

	c.Status(http.StatusNoContent)
}
