package handlers_admin

import (
	"haultrack/internal/clmiddleware"
	"haultrack/internal/models/clconfig"
	"net/http"

	"github.com/andskur/argon2-hashing"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminHandler authentifie l'unique compte d'administration du fichier de configuration
type AdminHandler struct {
	user clconfig.UserConfig
}

func NewAdminHandler(user clconfig.UserConfig) *AdminHandler {
	return &AdminHandler{user: user}
}

func (ah *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credentials payload"})
		return
	}

	// Vérification login / pass
	err := argon2.CompareHashAndPassword([]byte(ah.user.Hash), []byte(req.Password))
	if err != nil || req.Username != ah.user.Login {
		log.Warn().Str("user", req.Username).Str("ip", clmiddleware.ClientIP(c)).Msg("login failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	log.Info().Str("user", req.Username).Str("ip", clmiddleware.ClientIP(c)).Msg("login succeeded")

	// Créer la session
	session := sessions.Default(c)
	session.Set("user_id", "admin")
	session.Set("username", req.Username)
	if err := session.Save(); err != nil {
		log.Error().Err(err).Msg("session save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged in"})
}

func (ah *AdminHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Msg("session clear failed")
	}
	c.Status(http.StatusNoContent)
}

// Me indique si la session courante est authentifiée
func (ah *AdminHandler) Me(c *gin.Context) {
	session := sessions.Default(c)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": session.Get("user_id") != nil,
		"username":      session.Get("username"),
	})
}
