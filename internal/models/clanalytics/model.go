package clanalytics

import (
	"errors"
	"haultrack/internal/models/clclassifier"
	"time"
)

var ErrUnknownMetric = errors.New("unknown metric")

// TrafficBreakdown compte les visiteurs par source ; les quatre catégories sont toujours présentes
type TrafficBreakdown struct {
	Organic  int64 `json:"organic"`
	Direct   int64 `json:"direct"`
	Referral int64 `json:"referral"`
	Social   int64 `json:"social"`
}

func (t *TrafficBreakdown) add(b clclassifier.Bucket, n int64) {
	switch b {
	case clclassifier.BucketOrganic:
		t.Organic += n
	case clclassifier.BucketDirect:
		t.Direct += n
	case clclassifier.BucketSocial:
		t.Social += n
	default:
		t.Referral += n
	}
}

func (t TrafficBreakdown) Get(b clclassifier.Bucket) int64 {
	switch b {
	case clclassifier.BucketOrganic:
		return t.Organic
	case clclassifier.BucketDirect:
		return t.Direct
	case clclassifier.BucketSocial:
		return t.Social
	default:
		return t.Referral
	}
}

func (t TrafficBreakdown) Total() int64 {
	return t.Organic + t.Direct + t.Referral + t.Social
}

type DeviceBreakdown struct {
	Desktop int64 `json:"desktop"`
	Mobile  int64 `json:"mobile"`
	Tablet  int64 `json:"tablet"`
}

func (d *DeviceBreakdown) add(device string, n int64) {
	switch clclassifier.Device(device) {
	case clclassifier.DeviceMobile:
		d.Mobile += n
	case clclassifier.DeviceTablet:
		d.Tablet += n
	default:
		d.Desktop += n
	}
}

func (d DeviceBreakdown) Get(device clclassifier.Device) int64 {
	switch device {
	case clclassifier.DeviceMobile:
		return d.Mobile
	case clclassifier.DeviceTablet:
		return d.Tablet
	default:
		return d.Desktop
	}
}

type PageStat struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

type CompetitorStat struct {
	CompanyName string `json:"company_name"`
	ThreatLevel string `json:"threat_level"`
	Visits      int64  `json:"visits"`
}

// Summary regroupe les compteurs du tableau de bord pour une fenêtre
type Summary struct {
	Window            string           `json:"window"`
	GeneratedAt       time.Time        `json:"generated_at"`
	ActiveNow         int64            `json:"active_now"`
	TotalVisitors     int64            `json:"total_visitors"`
	TotalPageViews    int64            `json:"total_page_views"`
	Traffic           TrafficBreakdown `json:"traffic"`
	Devices           DeviceBreakdown  `json:"devices"`
	CompetitorVisits  int64            `json:"competitor_visits"`
	VPNDetections     int64            `json:"vpn_detections"`
	HighFraudVisitors int64            `json:"high_fraud_visitors"`
	AvgDuration       float64          `json:"avg_duration_seconds"`
	TopPages          []PageStat       `json:"top_pages"`
	TopCompetitors    []CompetitorStat `json:"top_competitors"`
	// Stale indique un résumé servi depuis le cache après un échec de requête
	Stale bool `json:"stale"`
}
