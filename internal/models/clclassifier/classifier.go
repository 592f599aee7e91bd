package clclassifier

import (
	"context"
	"haultrack/internal/models/clcompetitors"
	"haultrack/internal/models/clmetrics"
	"time"

	"github.com/rs/zerolog/log"
)

// Input regroupe ce que le classifieur sait d'une visite à sa création
type Input struct {
	IPAddress string
	UserAgent string
	Referrer  string
}

// Result est l'enrichissement calculé une seule fois à la création du visiteur
type Result struct {
	Device         Device
	ReferrerDomain string
	Bucket         Bucket

	IsCompetitor  bool
	CompanyName   string
	CompanyDomain string
	ThreatLevel   string

	IsVPN      bool
	IsProxy    bool
	FraudScore int
	City       string
	State      string

	// Enriched vaut false quand le fournisseur externe n'a pas répondu
	Enriched bool
}

// CompetitorMatcher est satisfait par clcompetitors.Matcher
type CompetitorMatcher interface {
	Match(ip string) (clcompetitors.CompetitorIP, bool)
}

type Options struct {
	VPNThreshold   int
	ProxyThreshold int
	LookupTimeout  time.Duration
}

type Classifier struct {
	sources     *SourceTable
	competitors CompetitorMatcher
	intel       IPIntel
	opts        Options
}

func New(sources *SourceTable, competitors CompetitorMatcher, intel IPIntel, opts Options) *Classifier {
	if sources == nil {
		sources = NewSourceTable(nil, nil)
	}
	if intel == nil {
		intel = NopIntel{}
	}
	if opts.VPNThreshold <= 0 {
		opts.VPNThreshold = 75
	}
	if opts.ProxyThreshold <= 0 {
		opts.ProxyThreshold = 75
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 500 * time.Millisecond
	}
	return &Classifier{
		sources:     sources,
		competitors: competitors,
		intel:       intel,
		opts:        opts,
	}
}

func (c *Classifier) Sources() *SourceTable {
	return c.sources
}

// Classify ne retourne jamais d'erreur : un fournisseur en panne donne
// isVpn=false, isProxy=false, fraudScore=0
func (c *Classifier) Classify(ctx context.Context, in Input) Result {
	res := Result{
		Device:         DetectDevice(in.UserAgent),
		ReferrerDomain: ReferrerDomain(in.Referrer),
	}
	res.Bucket = c.sources.Bucket(in.Referrer, res.ReferrerDomain)

	if c.competitors != nil {
		if match, ok := c.competitors.Match(in.IPAddress); ok {
			res.IsCompetitor = true
			res.CompanyName = match.CompanyName
			res.CompanyDomain = match.Domain
			res.ThreatLevel = string(match.ThreatLevel)
		}
	}

	intel, err := c.lookup(ctx, in.IPAddress)
	if err != nil {
		clmetrics.EnrichmentFailures.Inc()
		log.Warn().Err(err).Str("ip", in.IPAddress).Msg("ip enrichment failed, using defaults")
		return res
	}

	res.Enriched = true
	res.City = intel.City
	res.State = intel.State
	res.FraudScore = clampScore(intel.FraudScore)
	res.IsVPN = intel.IsVPN || intel.VPNScore > c.opts.VPNThreshold
	res.IsProxy = intel.IsProxy || intel.ProxyScore > c.opts.ProxyThreshold
	return res
}

// lookup borne l'appel externe, même si le fournisseur ignore le contexte
func (c *Classifier) lookup(ctx context.Context, ip string) (IntelResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.LookupTimeout)
	defer cancel()

	type outcome struct {
		res IntelResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("ip intelligence provider panicked")
				done <- outcome{err: ErrIntelUnavailable}
			}
		}()
		res, err := c.intel.Lookup(ctx, ip)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return IntelResult{}, ctx.Err()
	}
}
