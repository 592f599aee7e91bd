package handlers_competitors

import (
	"bytes"
	"context"
	"fmt"
	"haultrack/internal/models/clapp"
	"haultrack/internal/models/clcompetitors"
	"haultrack/internal/models/clconfig"
	"haultrack/internal/models/clvisitors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestApp(t *testing.T) (*clapp.App, *gin.Engine) {
	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	app, err := clapp.NewWithDB(&clconfig.Config{}, testDB)
	require.NoError(t, err)
	t.Cleanup(app.Stop)

	ch := NewCompetitorsHandler(app.Competitors)
	r := gin.New()
	r.GET("/api/admin/competitors", ch.ListCompetitors)
	r.POST("/api/admin/competitors", ch.CreateCompetitor)
	r.PATCH("/api/admin/competitors/:id", ch.UpdateCompetitor)
	r.DELETE("/api/admin/competitors/:id", ch.DeleteCompetitor)
	return app, r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCompetitorLifecycle(t *testing.T) {
	app, r := setupTestApp(t)
	ctx := context.Background()

	w := do(t, r, http.MethodGet, "/api/admin/competitors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = do(t, r, http.MethodPost, "/api/admin/competitors", gin.H{
		"company_name": "CompanyB",
		"ip_range":     "203.0.113.77/24",
		"domain":       "companyb.example",
		"threat_level": "high",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created clcompetitors.CompetitorIP
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "203.0.113.0/24", created.IPRange)

	// les nouveaux visiteurs de la plage sont marqués
	v, _, err := app.Resolver.Resolve(ctx, "s1", clvisitors.ArrivalMetadata{IPAddress: "203.0.113.20"})
	require.NoError(t, err)
	assert.True(t, v.IsCompetitor)
	assert.Equal(t, "CompanyB", v.CompanyName)
	assert.Equal(t, "high", v.ThreatLevel)

	w = do(t, r, http.MethodDelete, fmt.Sprintf("/api/admin/competitors/%d", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// la classification existante n'est pas recalculée
	v, err = app.Resolver.FindBySession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, v.IsCompetitor)

	v, _, err = app.Resolver.Resolve(ctx, "s2", clvisitors.ArrivalMetadata{IPAddress: "203.0.113.21"})
	require.NoError(t, err)
	assert.False(t, v.IsCompetitor)
}

func TestCompetitorErrors(t *testing.T) {
	_, r := setupTestApp(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"invalid cidr", http.MethodPost, "/api/admin/competitors", gin.H{"company_name": "X", "ip_range": "300.1.1.1/8"}, http.StatusBadRequest},
		{"invalid threat", http.MethodPost, "/api/admin/competitors", gin.H{"company_name": "X", "ip_range": "10.0.0.0/8", "threat_level": "extreme"}, http.StatusBadRequest},
		{"missing company", http.MethodPost, "/api/admin/competitors", gin.H{"ip_range": "10.0.0.0/8"}, http.StatusBadRequest},
		{"update unknown", http.MethodPatch, "/api/admin/competitors/42", gin.H{"threat_level": "high"}, http.StatusNotFound},
		{"update bad id", http.MethodPatch, "/api/admin/competitors/x", gin.H{}, http.StatusBadRequest},
		{"delete unknown", http.MethodDelete, "/api/admin/competitors/42", nil, http.StatusNotFound},
		{"delete bad id", http.MethodDelete, "/api/admin/competitors/x", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestUpdateCompetitor(t *testing.T) {
	app, r := setupTestApp(t)
	ctx := context.Background()

	rec := &clcompetitors.CompetitorIP{CompanyName: "CompanyC", IPRange: "198.51.100.0/24", ThreatLevel: clcompetitors.ThreatLow}
	require.NoError(t, app.Competitors.Create(ctx, rec))
	path := fmt.Sprintf("/api/admin/competitors/%d", rec.ID)

	w := do(t, r, http.MethodPatch, path, gin.H{"threat_level": "high", "domain": "companyc.example"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated clcompetitors.CompetitorIP
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, "198.51.100.0/24", updated.IPRange)
	assert.Equal(t, clcompetitors.ThreatHigh, updated.ThreatLevel)
	assert.Equal(t, "companyc.example", updated.Domain)

	// le Matcher reflète la modification sans redémarrage
	v, _, err := app.Resolver.Resolve(ctx, "s-up", clvisitors.ArrivalMetadata{IPAddress: "198.51.100.9"})
	require.NoError(t, err)
	assert.True(t, v.IsCompetitor)
	assert.Equal(t, "high", v.ThreatLevel)

	w = do(t, r, http.MethodPatch, path, gin.H{"ip_range": "not-a-range"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/admin/competitors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []clcompetitors.CompetitorIP
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "198.51.100.0/24", list[0].IPRange)
}
