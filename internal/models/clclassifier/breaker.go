package clclassifier

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerIntel coupe les appels vers un fournisseur qui échoue en boucle,
// pour que l'ingestion ne paie pas le timeout à chaque visite
type BreakerIntel struct {
	inner IPIntel
	cb    *gobreaker.CircuitBreaker[IntelResult]
}

func NewBreakerIntel(inner IPIntel, failures uint32, openTimeout time.Duration) *BreakerIntel {
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        "ip-intel",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("ip intelligence circuit breaker state change")
		},
	}
	return &BreakerIntel{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[IntelResult](settings),
	}
}

func (b *BreakerIntel) Lookup(ctx context.Context, ip string) (IntelResult, error) {
	result, err := b.cb.Execute(func() (IntelResult, error) {
		return b.inner.Lookup(ctx, ip)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return IntelResult{}, errors.Join(ErrIntelUnavailable, err)
	}
	return result, err
}

func (b *BreakerIntel) State() gobreaker.State {
	return b.cb.State()
}
