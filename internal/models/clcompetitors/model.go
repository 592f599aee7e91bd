package clcompetitors

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrInvalidCIDR        = errors.New("invalid ip range")
	ErrInvalidThreatLevel = errors.New("invalid threat level")
	ErrCompetitorNotFound = errors.New("competitor range not found")
	ErrInvalidCompetitor  = errors.New("invalid competitor range")
)

type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "low"
	ThreatMedium ThreatLevel = "medium"
	ThreatHigh   ThreatLevel = "high"
)

func (t ThreatLevel) Valid() bool {
	return t == ThreatLow || t == ThreatMedium || t == ThreatHigh
}

// rank ordonne les niveaux pour départager deux plages de même taille
func (t ThreatLevel) rank() int {
	switch t {
	case ThreatHigh:
		return 3
	case ThreatMedium:
		return 2
	case ThreatLow:
		return 1
	default:
		return 0
	}
}

// CompetitorIP est une plage réseau attribuée à un concurrent, curée à la main
type CompetitorIP struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	CompanyName string      `json:"company_name" gorm:"not null"`
	IPRange     string      `json:"ip_range" gorm:"not null;index"`
	Domain      string      `json:"domain"`
	ThreatLevel ThreatLevel `json:"threat_level" gorm:"type:varchar(10);not null;default:low"`
	CreatedAt   time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CompetitorIP) TableName() string {
	return "competitor_ips"
}

// BeforeSave normalise la plage CIDR et refuse les valeurs invalides
func (c *CompetitorIP) BeforeSave(tx *gorm.DB) error {
	prefix, err := ParseRange(c.IPRange)
	if err != nil {
		return err
	}
	c.IPRange = prefix.String()
	c.CompanyName = strings.TrimSpace(c.CompanyName)
	if c.ThreatLevel == "" {
		c.ThreatLevel = ThreatLow
	}
	if !c.ThreatLevel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidThreatLevel, c.ThreatLevel)
	}
	return nil
}

// ParseRange accepte un CIDR ou une adresse seule (traitée en /32 ou /128)
func ParseRange(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Prefix{}, fmt.Errorf("%w: empty", ErrInvalidCIDR)
	}
	if !strings.Contains(s, "/") {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: %q", ErrInvalidCIDR, s)
		}
		addr = addr.Unmap()
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %q", ErrInvalidCIDR, s)
	}
	if prefix.Addr().Is4In6() && prefix.Bits() >= 96 {
		prefix = netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits()-96)
	}
	return prefix.Masked(), nil
}
