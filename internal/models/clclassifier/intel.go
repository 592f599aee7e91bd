package clclassifier

import (
	"context"
	"errors"
)

var ErrIntelUnavailable = errors.New("ip intelligence provider unavailable")

// IntelResult est la réponse opaque d'un fournisseur d'IP intelligence
type IntelResult struct {
	City       string
	State      string
	IsVPN      bool
	IsProxy    bool
	VPNScore   int
	ProxyScore int
	FraudScore int
}

// IPIntel est le collaborateur externe de géolocalisation / réputation.
// Une erreur est un cas normal : la classification retombe sur ses valeurs par défaut.
type IPIntel interface {
	Lookup(ctx context.Context, ip string) (IntelResult, error)
}

// IntelFunc adapte une fonction en IPIntel
type IntelFunc func(ctx context.Context, ip string) (IntelResult, error)

func (f IntelFunc) Lookup(ctx context.Context, ip string) (IntelResult, error) {
	return f(ctx, ip)
}

// NopIntel est utilisé quand aucun fournisseur n'est configuré
type NopIntel struct{}

func (NopIntel) Lookup(ctx context.Context, ip string) (IntelResult, error) {
	return IntelResult{}, nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
