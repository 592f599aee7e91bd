package clvisitors

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrMissingSession   = errors.New("session id is required")
	ErrVisitorNotFound  = errors.New("visitor not found")
	ErrPageViewNotFound = errors.New("page view not found")
	ErrInvalidDuration  = errors.New("duration must be >= 0")
	ErrInvalidPath      = errors.New("invalid page path")
)

// Visitor représente une session de navigation anonyme
type Visitor struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	SessionID string `gorm:"uniqueIndex;size:128;not null" json:"session_id"`

	IPAddress string `gorm:"size:45" json:"ip_address"`
	UserAgent string `gorm:"size:512" json:"user_agent"`
	Device    string `gorm:"size:16;index" json:"device"`
	Language  string `gorm:"size:16" json:"language"`

	Referrer       string `gorm:"size:1024" json:"referrer"`
	ReferrerDomain string `gorm:"size:255;index" json:"referrer_domain"`
	UTMSource      string `gorm:"size:255" json:"utm_source,omitempty"`
	UTMMedium      string `gorm:"size:255" json:"utm_medium,omitempty"`
	UTMCampaign    string `gorm:"size:255" json:"utm_campaign,omitempty"`

	IsCompetitor  bool   `gorm:"index" json:"is_competitor"`
	CompanyName   string `gorm:"size:255" json:"company_name,omitempty"`
	CompanyDomain string `gorm:"size:255" json:"company_domain,omitempty"`
	ThreatLevel   string `gorm:"size:10" json:"threat_level,omitempty"`

	IsVPN      bool `gorm:"column:is_vpn;index" json:"is_vpn"`
	IsProxy    bool `json:"is_proxy"`
	FraudScore int  `json:"fraud_score"`

	City        string `gorm:"size:128" json:"city,omitempty"`
	State       string `gorm:"size:128" json:"state,omitempty"`
	Fingerprint string `gorm:"size:128" json:"fingerprint,omitempty"`

	FirstSeen time.Time `gorm:"not null" json:"first_seen"`
	LastSeen  time.Time `gorm:"not null;index" json:"last_seen"`
}

// PageView est une navigation dans la session d'un visiteur
type PageView struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	VisitorID string    `gorm:"size:36;index;not null" json:"visitor_id"`
	Path      string    `gorm:"size:2048;not null" json:"path"`
	Title     string    `gorm:"size:512" json:"title"`
	Duration  *int      `json:"duration"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

func (Visitor) TableName() string {
	return "visitors"
}

func (PageView) TableName() string {
	return "page_views"
}

func (v *Visitor) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.LastSeen.Before(v.FirstSeen) {
		v.LastSeen = v.FirstSeen
	}
	return nil
}
