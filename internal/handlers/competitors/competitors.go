package handlers_competitors

import (
	"errors"
	"haultrack/internal/models/clcompetitors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type CompetitorsHandler struct {
	service *clcompetitors.Service
}

func NewCompetitorsHandler(service *clcompetitors.Service) *CompetitorsHandler {
	return &CompetitorsHandler{
		service: service,
	}
}

type CompetitorRequest struct {
	CompanyName string `json:"company_name" binding:"required"`
	IPRange     string `json:"ip_range" binding:"required"`
	Domain      string `json:"domain"`
	ThreatLevel string `json:"threat_level"`
}

func (ch *CompetitorsHandler) ListCompetitors(c *gin.Context) {
	records, err := ch.service.List(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("listing competitor ranges")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to list competitors"})
		return
	}
	if records == nil {
		records = []clcompetitors.CompetitorIP{}
	}
	c.JSON(http.StatusOK, records)
}

// CreateCompetitor ajoute une plage ; elle s'applique aux visiteurs créés ensuite
func (ch *CompetitorsHandler) CreateCompetitor(c *gin.Context) {
	var req CompetitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_name and ip_range are required"})
		return
	}

	record := &clcompetitors.CompetitorIP{
		CompanyName: req.CompanyName,
		IPRange:     req.IPRange,
		Domain:      req.Domain,
		ThreatLevel: clcompetitors.ThreatLevel(req.ThreatLevel),
	}
	err := ch.service.Create(c.Request.Context(), record)
	switch {
	case errors.Is(err, clcompetitors.ErrInvalidCIDR), errors.Is(err, clcompetitors.ErrInvalidThreatLevel):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Msg("creating competitor range")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to create competitor"})
		return
	}

	log.Info().
		Uint("id", record.ID).
		Str("company", record.CompanyName).
		Str("range", record.IPRange).
		Msg("competitor range added")
	c.JSON(http.StatusCreated, record)
}

func (ch *CompetitorsHandler) DeleteCompetitor(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return
	}

	err = ch.service.Delete(c.Request.Context(), uint(id))
	switch {
	case errors.Is(err, clcompetitors.ErrCompetitorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Competitor not found"})
		return
	case err != nil:
		log.Error().Err(err).Uint64("id", id).Msg("deleting competitor range")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to delete competitor"})
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateCompetitor modifie une plage existante sans changer son id
func (ch *CompetitorsHandler) UpdateCompetitor(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return
	}

	var req clcompetitors.CompetitorUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	record, err := ch.service.Update(c.Request.Context(), uint(id), req)
	switch {
	case errors.Is(err, clcompetitors.ErrCompetitorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Competitor not found"})
		return
	case errors.Is(err, clcompetitors.ErrInvalidCIDR),
		errors.Is(err, clcompetitors.ErrInvalidThreatLevel),
		errors.Is(err, clcompetitors.ErrInvalidCompetitor):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Uint64("id", id).Msg("updating competitor range")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to update competitor"})
		return
	}

	log.Info().
		Uint("id", record.ID).
		Str("company", record.CompanyName).
		Str("range", record.IPRange).
		Msg("competitor range updated")
	c.JSON(http.StatusOK, record)
}
