package clclassifier

import (
	"net/url"
	"strings"
)

type Bucket string

const (
	BucketOrganic  Bucket = "organic"
	BucketDirect   Bucket = "direct"
	BucketReferral Bucket = "referral"
	BucketSocial   Bucket = "social"
)

// Buckets liste toutes les catégories de source, dans l'ordre d'affichage
var Buckets = []Bucket{BucketOrganic, BucketDirect, BucketReferral, BucketSocial}

// SourceRule associe un fragment de domaine à une catégorie
type SourceRule struct {
	Contains string
	Bucket   Bucket
}

// SourceTable est la table de correspondance domaine -> catégorie.
// Les règles sont testées dans l'ordre, la première qui correspond gagne.
type SourceTable struct {
	rules []SourceRule
}

var defaultSearchDomains = []string{
	"google", "bing", "yahoo", "duckduckgo", "baidu", "yandex", "ecosia", "qwant", "startpage",
}

var defaultSocialDomains = []string{
	"facebook", "fb.com", "instagram", "twitter", "t.co", "x.com", "linkedin", "lnkd.in",
	"reddit", "pinterest", "tiktok", "youtube", "nextdoor", "threads.net",
}

// NewSourceTable construit la table par défaut enrichie des domaines configurés
func NewSourceTable(extraSearch, extraSocial []string) *SourceTable {
	t := &SourceTable{}
	for _, d := range append(append([]string{}, defaultSearchDomains...), extraSearch...) {
		t.Add(d, BucketOrganic)
	}
	for _, d := range append(append([]string{}, defaultSocialDomains...), extraSocial...) {
		t.Add(d, BucketSocial)
	}
	return t
}

func (t *SourceTable) Add(fragment string, bucket Bucket) {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return
	}
	t.rules = append(t.rules, SourceRule{Contains: fragment, Bucket: bucket})
}

func (t *SourceTable) Rules() []SourceRule {
	return append([]SourceRule(nil), t.rules...)
}

// Bucket classe une visite ; chaque visite tombe dans exactement une catégorie
func (t *SourceTable) Bucket(referrer, referrerDomain string) Bucket {
	if IsDirect(referrer) {
		return BucketDirect
	}
	domain := strings.ToLower(referrerDomain)
	if domain == "" {
		domain = ReferrerDomain(referrer)
	}
	if domain == "" {
		return BucketReferral
	}
	for _, rule := range t.rules {
		if matchesDomain(domain, rule.Contains) {
			return rule.Bucket
		}
	}
	return BucketReferral
}

// matchesDomain évite que "t.co" attrape "reddit.com" : les fragments avec un
// point doivent correspondre au domaine entier ou à un suffixe de label
func matchesDomain(domain, fragment string) bool {
	if !strings.Contains(fragment, ".") {
		return strings.Contains(domain, fragment)
	}
	return domain == fragment || strings.HasSuffix(domain, "."+fragment)
}

func IsDirect(referrer string) bool {
	r := strings.TrimSpace(referrer)
	return r == "" || strings.EqualFold(r, "direct")
}

// ReferrerDomain extrait l'hôte du referrer, sans "www." ni port
func ReferrerDomain(referrer string) string {
	if IsDirect(referrer) {
		return ""
	}
	raw := strings.TrimSpace(referrer)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
