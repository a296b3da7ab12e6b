/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package payrecon

import (
	"math/big"
	"regexp"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/blnkfinance/payrecon/internal/reference"
	"github.com/blnkfinance/payrecon/model"
)

const (
	StrategyExact      = "exact"
	StrategySimilarity = "similarity"
	StrategyStructural = "structural"

	// DefaultSimilarityThreshold is the lowest similarity accepted by the second tier.
	DefaultSimilarityThreshold = 0.8

	prefixBonus = 0.2
)

var digitRuns = regexp.MustCompile(`\d+`)

// MatchStrategy is one tier of the matcher. Select returns the key of the
// candidate it accepts for the confirmation together with its score.
type MatchStrategy interface {
	Name() string
	Select(c Confirmation, candidates []model.PendingReceipt) (key string, score float64, ok bool)
}

// Confirmation is the reference announced by a confirmation message.
type Confirmation struct {
	Reference string // normalized
	Raw       string
	Type      model.ReferenceType
}

// Match is a pending receipt claimed by a confirmation.
type Match struct {
	Receipt  model.PendingReceipt
	Strategy string
	Score    float64
}

// Matcher resolves confirmations against the pending store, trying its
// strategies in order. The first strategy that selects a candidate wins and
// the candidate is removed from the store in the same critical section.
type Matcher struct {
	store      *PendingStore
	strategies []MatchStrategy
}

// NewMatcher returns the exact, similarity and structural tiers, in that order.
func NewMatcher(store *PendingStore, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return NewMatcherWithStrategies(store,
		ExactStrategy{},
		SimilarityStrategy{Threshold: threshold},
		StructuralStrategy{},
	)
}

func NewMatcherWithStrategies(store *PendingStore, strategies ...MatchStrategy) *Matcher {
	return &Matcher{store: store, strategies: strategies}
}

// Resolve claims the pending receipt matching the confirmation reference.
func (m *Matcher) Resolve(normalized, raw string) (Match, bool) {
	if normalized == "" {
		return Match{}, false
	}
	conf := Confirmation{Reference: normalized, Raw: raw, Type: reference.Classify(normalized)}

	var chosen Match
	receipt, ok := m.store.Consume(func(view *PendingView) (string, bool) {
		for _, s := range m.strategies {
			var (
				key   string
				score float64
				ok    bool
			)
			if keyed, isKeyed := s.(KeyedStrategy); isKeyed {
				key, score, ok = keyed.SelectKey(conf, view.Has)
			} else {
				key, score, ok = s.Select(conf, view.Candidates())
			}
			if ok {
				chosen = Match{Strategy: s.Name(), Score: score}
				return key, true
			}
		}
		return "", false
	})
	if !ok {
		return Match{}, false
	}
	chosen.Receipt = receipt
	return chosen, true
}

// KeyedStrategy is a MatchStrategy that decides from key lookups alone.
// The Matcher calls SelectKey instead of Select for it.
type KeyedStrategy interface {
	MatchStrategy
	SelectKey(c Confirmation, has func(key string) bool) (string, float64, bool)
}

// ExactStrategy accepts the candidate stored under the confirmation key.
type ExactStrategy struct{}

func (ExactStrategy) Name() string { return StrategyExact }

func (ExactStrategy) SelectKey(c Confirmation, has func(key string) bool) (string, float64, bool) {
	if has(c.Reference) {
		return c.Reference, 1, true
	}
	return "", 0, false
}

func (ExactStrategy) Select(c Confirmation, candidates []model.PendingReceipt) (string, float64, bool) {
	for _, p := range candidates {
		if p.NormalizedReference == c.Reference {
			return p.NormalizedReference, 1, true
		}
	}
	return "", 0, false
}

// SimilarityStrategy accepts candidates whose edit score reaches Threshold
// and picks the one with the best Similarity. Ties go to the earliest
// capture. The prefix bonus only ranks eligible candidates; it never makes
// a candidate eligible.
type SimilarityStrategy struct {
	Threshold float64
}

func (SimilarityStrategy) Name() string { return StrategySimilarity }

func (s SimilarityStrategy) Select(c Confirmation, candidates []model.PendingReceipt) (string, float64, bool) {
	bestKey, best := "", 0.0
	for _, p := range candidates {
		if EditScore(c.Reference, p.NormalizedReference) < s.Threshold {
			continue
		}
		score := Similarity(c.Reference, p.NormalizedReference)
		if score > best {
			bestKey, best = p.NormalizedReference, score
		}
	}
	return bestKey, best, bestKey != ""
}

// EditScore is one minus the edit distance over the longer length.
func EditScore(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := longer(ra, rb)
	if maxLen == 0 {
		return 0
	}
	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptionsWithSub)
	return 1 - float64(distance)/float64(maxLen)
}

func longer(a, b []rune) int {
	if len(b) > len(a) {
		return len(b)
	}
	return len(a)
}

// Similarity scores two references in [0, 1]: the EditScore plus a bonus
// proportional to the shared prefix when the first characters agree.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := longer(ra, rb)
	if maxLen == 0 {
		return 0
	}
	score := EditScore(a, b)

	if len(ra) > 0 && len(rb) > 0 && ra[0] == rb[0] {
		prefix := 0
		for prefix < len(ra) && prefix < len(rb) && ra[prefix] == rb[prefix] {
			prefix++
		}
		score += float64(prefix) / float64(maxLen) * prefixBonus
	}
	if score > 1 {
		score = 1
	}
	return score
}

// StructuralStrategy accepts candidates of the same network whose shape
// matches the confirmation: network B references with the same digit runs
// each off by at most one, network A references with the same letter,
// digit and symbol layout.
type StructuralStrategy struct{}

func (StructuralStrategy) Name() string { return StrategyStructural }

func (StructuralStrategy) Select(c Confirmation, candidates []model.PendingReceipt) (string, float64, bool) {
	for _, p := range candidates {
		kind := p.ReferenceType
		if kind == "" || kind == model.ReferenceUnknown {
			kind = reference.Classify(p.NormalizedReference)
		}
		if kind != c.Type {
			continue
		}

		switch kind {
		case model.ReferenceEmola:
			if digitRunsClose(c.Reference, p.NormalizedReference) {
				return p.NormalizedReference, 0, true
			}
		case model.ReferenceMpesa:
			if len(c.Reference) == len(p.NormalizedReference) && signature(c.Reference) == signature(p.NormalizedReference) {
				return p.NormalizedReference, 0, true
			}
		}
	}
	return "", 0, false
}

func digitRunsClose(a, b string) bool {
	ra, rb := digitRuns.FindAllString(a, -1), digitRuns.FindAllString(b, -1)
	if len(ra) == 0 || len(ra) != len(rb) {
		return false
	}
	one := big.NewInt(1)
	for i := range ra {
		x, okX := new(big.Int).SetString(ra[i], 10)
		y, okY := new(big.Int).SetString(rb[i], 10)
		if !okX || !okY {
			return false
		}
		if new(big.Int).Abs(x.Sub(x, y)).Cmp(one) > 0 {
			return false
		}
	}
	return true
}

func signature(ref string) string {
	var b strings.Builder
	for _, r := range ref {
		switch {
		case unicode.IsLetter(r):
			b.WriteByte('L')
		case unicode.IsDigit(r):
			b.WriteByte('N')
		default:
			b.WriteByte('S')
		}
	}
	return b.String()
}
