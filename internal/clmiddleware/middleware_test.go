package clmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGenerateSecretKey(t *testing.T) {
	key := generateSecretKey()
	assert.Len(t, key, 32)

	// Vérifier que deux appels génèrent des clés différentes
	key2 := generateSecretKey()
	assert.NotEqual(t, key, key2)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		headers map[string]string
		want    string
	}{
		{"forged forwarded ignored", nil, map[string]string{"X-Forwarded-For": "10.9.9.9"}, "192.0.2.10"},
		{"forged real ip ignored", nil, map[string]string{"X-Real-IP": "10.9.9.9"}, "192.0.2.10"},
		{"remote addr", nil, nil, "192.0.2.10"},
		{"trusted proxy forwarded", []string{"192.0.2.0/24"}, map[string]string{"X-Forwarded-For": "198.51.100.1"}, "198.51.100.1"},
		{"trusted proxy chain", []string{"192.0.2.0/24"}, map[string]string{"X-Forwarded-For": "203.0.113.5, 198.51.100.1"}, "198.51.100.1"},
		{"trusted proxy real ip", []string{"192.0.2.0/24"}, map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"other proxy ignored", []string{"10.0.0.0/8"}, map[string]string{"X-Forwarded-For": "198.51.100.1"}, "192.0.2.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			require.NoError(t, r.SetTrustedProxies(tt.trusted))
			var got string
			r.GET("/", func(c *gin.Context) {
				got = ClientIP(c)
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.10:51234"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"fr-FR,fr;q=0.9,en-US;q=0.8", "fr"},
		{"EN-us", "en"},
		{"", "unknown"},
		{"*", "unknown"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set("Accept-Language", tt.header)
		assert.Equal(t, tt.want, Language(c), "header %q", tt.header)
	}
}

func TestFingerprintIsStable(t *testing.T) {
	newCtx := func(ua string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.RemoteAddr = "192.0.2.10:1"
		c.Request.Header.Set("User-Agent", ua)
		return c
	}

	a := Fingerprint(newCtx("ua-1"))
	assert.Len(t, a, 32)
	assert.Equal(t, a, Fingerprint(newCtx("ua-1")))
	assert.NotEqual(t, a, Fingerprint(newCtx("ua-2")))
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS)
	r.POST("/api/track/visit", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/track/visit", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryReturns500(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNewLimiter(t *testing.T) {
	_, err := NewLimiter("lots", nil)
	assert.Error(t, err)

	mw, err := NewLimiter("2-M", nil)
	require.NoError(t, err)

	r := gin.New()
	r.Use(mw)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.50:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.Use(NewSession(false))
	r.POST("/login", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set("user_id", "admin")
		require.NoError(t, session.Save())
		c.Status(http.StatusOK)
	})
	r.GET("/secret", AuthRequired(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secret", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
