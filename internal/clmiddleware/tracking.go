package clmiddleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// ClientIP récupère l'IP réelle du client. Les en-têtes X-Forwarded-For et
// X-Real-IP ne comptent que s'ils viennent d'un proxy de confiance
// (trustedproxies) ou de la plateforme déclarée (trustedplatform)
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// Language extrait la langue préférée du visiteur
func Language(c *gin.Context) string {
	acceptLang := c.GetHeader("Accept-Language")
	if acceptLang == "" {
		return "unknown"
	}

	// Extraire la première langue (ex: "fr-FR,fr;q=0.9,en-US;q=0.8" -> "fr")
	parts := strings.Split(acceptLang, ",")
	lang := strings.Split(parts[0], ";")[0]
	lang = strings.Split(lang, "-")[0]
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" || lang == "*" {
		return "unknown"
	}
	return lang
}

// Fingerprint calcule un identifiant stable IP + langue + User-Agent
// quand le navigateur n'en fournit pas
func Fingerprint(c *gin.Context) string {
	hash := sha256.Sum256([]byte(ClientIP(c) + Language(c) + c.Request.UserAgent()))
	return hex.EncodeToString(hash[:])[:32]
}

// AuthRequired protège les routes d'administration
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if session.Get("user_id") == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		c.Set("authenticated", true)
		c.Next()
	}
}
