package clcompetitors

import (
	"net/netip"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

type rangeEntry struct {
	prefix netip.Prefix
	record CompetitorIP
}

// Matcher résout une IP vers la plage concurrente la plus spécifique.
// Les plages sont triées une fois au chargement : préfixe le plus long d'abord,
// puis niveau de menace le plus élevé, puis id le plus petit.
type Matcher struct {
	mu      sync.RWMutex
	entries []rangeEntry
}

func NewMatcher(records []CompetitorIP) *Matcher {
	m := &Matcher{}
	m.Load(records)
	return m
}

// Load remplace l'ensemble des plages connues
func (m *Matcher) Load(records []CompetitorIP) {
	entries := make([]rangeEntry, 0, len(records))
	for _, r := range records {
		prefix, err := ParseRange(r.IPRange)
		if err != nil {
			log.Warn().Err(err).Uint("competitor_id", r.ID).Msg("skipping competitor range")
			continue
		}
		entries = append(entries, rangeEntry{prefix: prefix, record: r})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.prefix.Bits() != b.prefix.Bits() {
			return a.prefix.Bits() > b.prefix.Bits()
		}
		if a.record.ThreatLevel.rank() != b.record.ThreatLevel.rank() {
			return a.record.ThreatLevel.rank() > b.record.ThreatLevel.rank()
		}
		return a.record.ID < b.record.ID
	})

	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
}

func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Match retourne la plage gagnante pour ip, ou false si aucune ne la contient
func (m *Matcher) Match(ip string) (CompetitorIP, bool) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return CompetitorIP{}, false
	}
	addr = addr.Unmap()

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.prefix.Contains(addr) {
			return e.record, true
		}
	}
	return CompetitorIP{}, false
}
