package clclassifier

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/oschwald/geoip2-golang/v2"
)

// Pondérations appliquées aux drapeaux de la base Anonymous-IP pour
// produire un score de fraude 0-100
const (
	scoreHosting     = 30
	scoreAnonymous   = 50
	scoreVPN         = 70
	scorePublicProxy = 80
	scoreResidential = 85
	scoreTor         = 95
)

// GeoIPIntel lit les bases MaxMind locales (City et Anonymous-IP).
// Chaque base est optionnelle.
type GeoIPIntel struct {
	city      *geoip2.Reader
	anonymous *geoip2.Reader
}

func OpenGeoIP(cityPath, anonymousPath string) (*GeoIPIntel, error) {
	g := &GeoIPIntel{}
	var err error
	if cityPath != "" {
		g.city, err = geoip2.Open(cityPath)
		if err != nil {
			return nil, fmt.Errorf("opening city database %s: %w", cityPath, err)
		}
	}
	if anonymousPath != "" {
		g.anonymous, err = geoip2.Open(anonymousPath)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("opening anonymous-ip database %s: %w", anonymousPath, err)
		}
	}
	return g, nil
}

func (g *GeoIPIntel) Close() error {
	var errs []error
	if g.city != nil {
		errs = append(errs, g.city.Close())
	}
	if g.anonymous != nil {
		errs = append(errs, g.anonymous.Close())
	}
	return errors.Join(errs...)
}

func (g *GeoIPIntel) Lookup(ctx context.Context, ip string) (IntelResult, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return IntelResult{}, fmt.Errorf("invalid ip %q: %w", ip, err)
	}
	addr = addr.Unmap()

	var result IntelResult

	if g.city != nil {
		record, err := g.city.City(addr)
		if err != nil {
			return IntelResult{}, fmt.Errorf("city lookup: %w", err)
		}
		result.City = record.City.Names.English
		if len(record.Subdivisions) > 0 {
			result.State = record.Subdivisions[0].ISOCode
			if result.State == "" {
				result.State = record.Subdivisions[0].Names.English
			}
		}
	}

	if g.anonymous != nil {
		record, err := g.anonymous.AnonymousIP(addr)
		if err != nil {
			return IntelResult{}, fmt.Errorf("anonymous-ip lookup: %w", err)
		}
		score := 0
		raise := func(flag bool, v int) {
			if flag && v > score {
				score = v
			}
		}
		raise(record.IsHostingProvider, scoreHosting)
		raise(record.IsAnonymous, scoreAnonymous)
		raise(record.IsAnonymousVPN, scoreVPN)
		raise(record.IsPublicProxy, scorePublicProxy)
		raise(record.IsResidentialProxy, scoreResidential)
		raise(record.IsTorExitNode, scoreTor)

		result.FraudScore = score
		if record.IsAnonymousVPN {
			result.IsVPN = true
			result.VPNScore = 100
		} else if record.IsHostingProvider {
			result.VPNScore = scoreHosting
		}
		if record.IsPublicProxy || record.IsResidentialProxy || record.IsTorExitNode {
			result.IsProxy = true
			result.ProxyScore = 100
		}
	}

	return result, nil
}
