package dedup

import (
	"strings"
	"unicode"
)

// DefaultCorrectionTerms are matched as whole words against item titles.
var DefaultCorrectionTerms = []string{
	"correction",
	"update",
	"debunk",
	"false",
	"retracted",
	"errata",
	"fixed",
	"patch",
	"falso",
	"falsa",
	"desmiente",
	"desmentido",
	"corrección",
	"correccion",
	"rectificación",
	"rectificacion",
	"fe de erratas",
}

// Subject is the incoming item as the classifier sees it.
type Subject struct {
	ItemID    int64
	Title     string
	Authority Authority
}

// Representative is the live story item matched in the index.
type Representative struct {
	ItemID       int64
	Ref          string
	Authority    Authority
	Score        float64
	ClusterCount int
	Similarity   float64
}

type Classifier struct {
	single  map[string]struct{}
	phrases [][]string
}

// NewClassifier builds a classifier over DefaultCorrectionTerms plus extra.
func NewClassifier(extra ...string) *Classifier {
	c := &Classifier{single: make(map[string]struct{})}
	for _, term := range append(append([]string(nil), DefaultCorrectionTerms...), extra...) {
		tokens := tokenize(term)
		switch len(tokens) {
		case 0:
		case 1:
			c.single[tokens[0]] = struct{}{}
		default:
			c.phrases = append(c.phrases, tokens)
		}
	}
	return c
}

// Classify applies the fixed rule order: Correction, then AuthorityUpgrade,
// then TrendEcho. A nil representative is Novel.
func (c *Classifier) Classify(subject Subject, rep *Representative) Relation {
	if rep == nil {
		return Novel{}
	}
	if c.IsCorrection(subject.Title) {
		return Correction{NewID: subject.ItemID, CorrectedID: rep.ItemID}
	}
	if subject.Authority.Official() && !rep.Authority.Official() {
		return AuthorityUpgrade{NewID: subject.ItemID, PreviousID: rep.ItemID}
	}
	return TrendEcho{RepresentativeID: rep.ItemID}
}

// IsCorrection reports whether title carries a correction or retraction marker.
func (c *Classifier) IsCorrection(title string) bool {
	tokens := tokenize(title)
	for i, token := range tokens {
		if _, ok := c.single[token]; ok {
			return true
		}
		for _, phrase := range c.phrases {
			if hasPrefixTokens(tokens[i:], phrase) {
				return true
			}
		}
	}
	return false
}

func hasPrefixTokens(tokens, prefix []string) bool {
	if len(tokens) < len(prefix) {
		return false
	}
	for i := range prefix {
		if tokens[i] != prefix[i] {
			return false
		}
	}
	return true
}

func tokenize(text string) []string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil
	}
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
