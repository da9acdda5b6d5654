// Package dedup decides how a new item relates to the closest known story in
// its topic.
package dedup

import (
	"fmt"
	"strings"
)

// Authority is the provenance class of an item's source.
type Authority string

const (
	AuthorityOfficial  Authority = "official"
	AuthorityCommunity Authority = "community"
)

// ParseAuthority maps a stored source_type to an Authority. Only "official"
// counts as official.
func ParseAuthority(sourceType string) Authority {
	if strings.EqualFold(strings.TrimSpace(sourceType), string(AuthorityOfficial)) {
		return AuthorityOfficial
	}
	return AuthorityCommunity
}

func (a Authority) Official() bool {
	return a == AuthorityOfficial
}

// Relation is one of Novel, TrendEcho, AuthorityUpgrade or Correction.
type Relation interface {
	relation()
}

// Novel means no live story in the topic is close enough.
type Novel struct{}

// TrendEcho folds the new item into the representative.
type TrendEcho struct {
	RepresentativeID int64
}

// AuthorityUpgrade makes the official NewID the representative in place of
// PreviousID.
type AuthorityUpgrade struct {
	NewID      int64
	PreviousID int64
}

// Correction makes NewID the representative and penalizes CorrectedID.
type Correction struct {
	NewID       int64
	CorrectedID int64
}

func (Novel) relation()            {}
func (TrendEcho) relation()        {}
func (AuthorityUpgrade) relation() {}
func (Correction) relation()       {}

type Kind string

const (
	KindNovel            Kind = "novel"
	KindTrendEcho        Kind = "trend_echo"
	KindAuthorityUpgrade Kind = "authority_upgrade"
	KindCorrection       Kind = "correction"
)

func KindOf(rel Relation) Kind {
	switch rel.(type) {
	case Novel:
		return KindNovel
	case TrendEcho:
		return KindTrendEcho
	case AuthorityUpgrade:
		return KindAuthorityUpgrade
	case Correction:
		return KindCorrection
	default:
		return Kind(fmt.Sprintf("unknown(%T)", rel))
	}
}

// NeedsVector reports whether the new item becomes a representative and
// therefore needs its own vector in the index.
func NeedsVector(rel Relation) bool {
	switch rel.(type) {
	case TrendEcho:
		return false
	default:
		return true
	}
}

// NeedsEvaluation reports whether the new item gets its own score from the
// external scorer.
func NeedsEvaluation(rel Relation) bool {
	switch rel.(type) {
	case Novel, Correction:
		return true
	default:
		return false
	}
}
