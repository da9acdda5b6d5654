// Package enrich ranks freshly ingested items before they become pending
// work for the engine.
package enrich

import (
	"regexp"
	"sort"
	"strings"

	"horse.fit/techwatch/internal/db"
	"horse.fit/techwatch/internal/dedup"
	"horse.fit/techwatch/internal/ledger"
)

const (
	PrioritySecurity  = 100
	PriorityOfficial  = 60
	PriorityCommunity = 40
	ReleaseBonus      = 15
	DefaultKeywords   = 8
)

var (
	securityPattern = regexp.MustCompile(`(?i)\b(cve-\d{4}-\d+|security|vulnerab\w*|hotfix|patch)\b`)
	releasePattern  = regexp.MustCompile(`(?i)\b(release|released|version|tag|changelog)\b`)
	keywordPattern  = regexp.MustCompile(`[a-z0-9][a-z0-9._-]{2,}`)
)

var stopwords = map[string]struct{}{}

func init() {
	for _, word := range strings.Fields(`the a an and or to of in on for with by from at as is are was were
		this that these those it its be can may will we you they their our your
		new release released version`) {
		stopwords[word] = struct{}{}
	}
}

// Priority ranks an item: security advisories first, then official sources
// over community ones, with a bonus for release announcements.
func Priority(title, content string, authority dedup.Authority) int {
	text := title + "\n" + content
	if securityPattern.MatchString(text) {
		return PrioritySecurity
	}
	priority := PriorityCommunity
	if authority.Official() {
		priority = PriorityOfficial
	}
	if releasePattern.MatchString(text) {
		priority += ReleaseBonus
	}
	return priority
}

// Keywords returns up to k of the most frequent non-stopword terms, ties
// broken by first appearance.
func Keywords(text string, k int) []string {
	if k <= 0 {
		k = DefaultKeywords
	}
	counts := map[string]int{}
	order := []string{}
	for _, word := range keywordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, skip := stopwords[word]; skip {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > k {
		order = order[:k]
	}
	return order
}

// Promote computes the enrichment recorded for item when it moves to ready.
func Promote(item ledger.Item) db.Promotion {
	text := item.Title + "\n" + item.ContentText
	return db.Promotion{
		Priority: Priority(item.Title, item.ContentText, item.Authority),
		Keywords: Keywords(text, DefaultKeywords),
	}
}
