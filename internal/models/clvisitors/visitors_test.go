package clvisitors

import (
	"context"
	"haultrack/internal/models/clclassifier"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, testDB.AutoMigrate(&Visitor{}, &PageView{}))
	return testDB
}

type countingClassifier struct {
	calls  atomic.Int32
	result clclassifier.Result
}

func (c *countingClassifier) Classify(ctx context.Context, in clclassifier.Input) clclassifier.Result {
	c.calls.Add(1)
	return c.result
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestResolveCreatesVisitor(t *testing.T) {
	db := setupTestDB(t)
	classifier := &countingClassifier{result: clclassifier.Result{
		Device:         clclassifier.DeviceMobile,
		ReferrerDomain: "google.com",
		IsCompetitor:   true,
		CompanyName:    "CompanyB",
		ThreatLevel:    "high",
		IsVPN:          true,
		FraudScore:     42,
		City:           "Austin",
		State:          "TX",
	}}
	r := NewResolver(db, classifier)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(fixedClock(t0))

	var hooked *Visitor
	r.OnCreated = func(v *Visitor) { hooked = v }

	v, created, err := r.Resolve(context.Background(), "s1", ArrivalMetadata{
		IPAddress: "10.1.2.3",
		UserAgent: "Mozilla/5.0 (iPhone)",
		Referrer:  "https://www.google.com/",
		UTMSource: "newsletter",
		Language:  "en-US",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, v.ID, 36)
	assert.Equal(t, "s1", v.SessionID)
	assert.Equal(t, "Mobile", v.Device)
	assert.Equal(t, "google.com", v.ReferrerDomain)
	assert.True(t, v.IsCompetitor)
	assert.Equal(t, "CompanyB", v.CompanyName)
	assert.True(t, v.IsVPN)
	assert.Equal(t, 42, v.FraudScore)
	assert.Equal(t, "newsletter", v.UTMSource)
	assert.True(t, v.FirstSeen.Equal(t0))
	assert.True(t, v.LastSeen.Equal(t0))
	require.NotNil(t, hooked)
	assert.Equal(t, v.ID, hooked.ID)
}

func TestResolveRejectsEmptySession(t *testing.T) {
	r := NewResolver(setupTestDB(t), nil)

	_, _, err := r.Resolve(context.Background(), "  ", ArrivalMetadata{})
	assert.ErrorIs(t, err, ErrMissingSession)
}

func TestResolveExistingSessionKeepsClassification(t *testing.T) {
	db := setupTestDB(t)
	classifier := &countingClassifier{result: clclassifier.Result{Device: clclassifier.DeviceTablet, IsVPN: true}}
	r := NewResolver(db, classifier)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, created, err := r.Resolve(context.Background(), "s1", ArrivalMetadata{IPAddress: "192.0.2.1", Timestamp: t0})
	require.NoError(t, err)
	require.True(t, created)

	classifier.result = clclassifier.Result{Device: clclassifier.DeviceDesktop}
	later := t0.Add(10 * time.Minute)
	second, created, err := r.Resolve(context.Background(), "s1", ArrivalMetadata{IPAddress: "198.51.100.7", Timestamp: later})
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Tablet", second.Device)
	assert.True(t, second.IsVPN)
	assert.Equal(t, "192.0.2.1", second.IPAddress)
	assert.True(t, second.FirstSeen.Equal(t0))
	assert.True(t, second.LastSeen.Equal(later))
	assert.Equal(t, int32(1), classifier.calls.Load())
}

func TestResolveOutOfOrderArrivalExtendsFirstSeen(t *testing.T) {
	r := NewResolver(setupTestDB(t), nil)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := r.Resolve(context.Background(), "s1", ArrivalMetadata{Timestamp: t0})
	require.NoError(t, err)

	earlier := t0.Add(-time.Minute)
	v, _, err := r.Resolve(context.Background(), "s1", ArrivalMetadata{Timestamp: earlier})
	require.NoError(t, err)
	assert.True(t, v.FirstSeen.Equal(earlier))
	assert.True(t, v.LastSeen.Equal(t0))
}

func TestResolveConcurrentSameSession(t *testing.T) {
	db := setupTestDB(t)
	r := NewResolver(db, &countingClassifier{})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var created atomic.Int32
	ids := make([]string, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := t0.Add(time.Duration(i) * time.Second)
			v, ok, err := r.Resolve(context.Background(), "s-race", ArrivalMetadata{Timestamp: ts})
			if !assert.NoError(t, err) {
				return
			}
			if ok {
				created.Add(1)
			}
			ids[i] = v.ID
		}(i)
	}
	wg.Wait()

	var count int64
	require.NoError(t, db.Model(&Visitor{}).Where("session_id = ?", "s-race").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int32(1), created.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	v, err := r.FindBySession(context.Background(), "s-race")
	require.NoError(t, err)
	assert.True(t, v.FirstSeen.Equal(t0))
	assert.True(t, v.LastSeen.Equal(t0.Add(19*time.Second)))
}

func TestResolveWithoutClassifierDegrades(t *testing.T) {
	r := NewResolver(setupTestDB(t), nil)

	v, _, err := r.Resolve(context.Background(), "s1", ArrivalMetadata{IPAddress: "192.0.2.1"})
	require.NoError(t, err)
	assert.Equal(t, "Desktop", v.Device)
	assert.Equal(t, "Direct", v.Referrer)
	assert.False(t, v.IsVPN)
	assert.Equal(t, 0, v.FraudScore)
}

func TestFindBySessionUnknown(t *testing.T) {
	r := NewResolver(setupTestDB(t), nil)

	_, err := r.FindBySession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrVisitorNotFound)
	_, err = r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrVisitorNotFound)
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path  string
		valid bool
	}{
		{"/", true},
		{"/pricing?size=20yd", true},
		{"", false},
		{"pricing", false},
		{"/with\nnewline", false},
		{"/" + strings.Repeat("a", 2047), true},
		{"/" + strings.Repeat("a", 2048), false},
	}

	for _, tt := range tests {
		err := ValidatePath(tt.path)
		if tt.valid {
			assert.NoError(t, err, "path %q", tt.path)
		} else {
			assert.ErrorIs(t, err, ErrInvalidPath, "path %q", tt.path)
		}
	}
}

func TestRecordViewBumpsLastSeen(t *testing.T) {
	db := setupTestDB(t)
	r := NewResolver(db, nil)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v, _, err := r.Resolve(context.Background(), "s1", ArrivalMetadata{Timestamp: t0})
	require.NoError(t, err)

	rec := NewRecorder(db, r)
	rec.SetClock(fixedClock(t0.Add(30 * time.Second)))

	view, err := rec.RecordView(context.Background(), v.ID, "/pricing", "Pricing")
	require.NoError(t, err)
	assert.NotZero(t, view.ID)
	assert.Nil(t, view.Duration)

	reloaded, err := r.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.LastSeen.Equal(t0.Add(30*time.Second)))
	assert.True(t, reloaded.FirstSeen.Equal(t0))
}

func TestRecordViewUnknownVisitor(t *testing.T) {
	db := setupTestDB(t)
	rec := NewRecorder(db, NewResolver(db, nil))

	_, err := rec.RecordView(context.Background(), "missing", "/", "")
	assert.ErrorIs(t, err, ErrVisitorNotFound)

	var count int64
	require.NoError(t, db.Model(&PageView{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordViewForSessionCreatesVisitor(t *testing.T) {
	db := setupTestDB(t)
	r := NewResolver(db, nil)
	rec := NewRecorder(db, r)

	view, err := rec.RecordViewForSession(context.Background(), "early", ArrivalMetadata{}, "/", "Home")
	require.NoError(t, err)

	v, err := r.FindBySession(context.Background(), "early")
	require.NoError(t, err)
	assert.Equal(t, v.ID, view.VisitorID)

	_, err = rec.RecordViewForSession(context.Background(), "early", ArrivalMetadata{}, "bad", "")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestCloseViewIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	r := NewResolver(db, nil)
	rec := NewRecorder(db, r)
	ctx := context.Background()

	v, _, err := r.Resolve(ctx, "s1", ArrivalMetadata{})
	require.NoError(t, err)
	view, err := rec.RecordView(ctx, v.ID, "/", "Home")
	require.NoError(t, err)

	closed, err := rec.CloseView(ctx, v.ID, view.ID, 12)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = rec.CloseView(ctx, v.ID, view.ID, 99)
	require.NoError(t, err)
	assert.False(t, closed)

	views, err := rec.ListViews(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Duration)
	assert.Equal(t, 12, *views[0].Duration)
}

func TestCloseViewErrors(t *testing.T) {
	db := setupTestDB(t)
	r := NewResolver(db, nil)
	rec := NewRecorder(db, r)
	ctx := context.Background()

	v, _, err := r.Resolve(ctx, "s1", ArrivalMetadata{})
	require.NoError(t, err)
	other, _, err := r.Resolve(ctx, "s2", ArrivalMetadata{})
	require.NoError(t, err)
	view, err := rec.RecordView(ctx, v.ID, "/", "")
	require.NoError(t, err)

	_, err = rec.CloseView(ctx, v.ID, view.ID, -1)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = rec.CloseView(ctx, v.ID, view.ID+100, 5)
	assert.ErrorIs(t, err, ErrPageViewNotFound)

	// une page appartenant à un autre visiteur est inconnue pour celui-ci
	_, err = rec.CloseView(ctx, other.ID, view.ID, 5)
	assert.ErrorIs(t, err, ErrPageViewNotFound)

	closed, err := rec.CloseView(ctx, v.ID, view.ID, 0)
	require.NoError(t, err)
	assert.True(t, closed)
}

func TestCloseViewForSession(t *testing.T) {
	db := setupTestDB(t)
	r := NewResolver(db, nil)
	rec := NewRecorder(db, r)
	ctx := context.Background()

	view, err := rec.RecordViewForSession(ctx, "s1", ArrivalMetadata{}, "/quote", "Quote")
	require.NoError(t, err)

	closed, err := rec.CloseViewForSession(ctx, "s1", view.ID, 7)
	require.NoError(t, err)
	assert.True(t, closed)

	_, err = rec.CloseViewForSession(ctx, "unknown", view.ID, 7)
	assert.ErrorIs(t, err, ErrPageViewNotFound)
}
