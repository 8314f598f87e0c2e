// Package dependency classifies pairs of markets by the structural
// relationship between the events they resolve on: EQUIVALENT,
// MUTUALLY_EXCLUSIVE, IMPLIES, INDEPENDENT, or UNKNOWN. The opportunity
// generator uses these relations to decide which markets may legally be
// legs of the same combinatorial trade.
//
// Detection is two-stage. Stage one is fully deterministic text/structure
// heuristics and always runs. Stage two is an optional verifier port: when
// one is passed to Detect, it is called inline for every candidate pair and
// Detect waits for each answer. The orchestrator calls Detect without a
// verifier.
package dependency

import (
	"regexp"
	"strings"

	"arb-engine/pkg/types"
)

var (
	yearRe = regexp.MustCompile(`\b(20[2-4]\d)\b`)
	wordRe = regexp.MustCompile(`[a-z0-9]+`)
)

var stopwords = map[string]struct{}{
	"will": {}, "the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "for": {}, "by": {}, "and": {},
	"or": {}, "at": {}, "with": {}, "from": {},
}

var identityMarkers = map[string]struct{}{
	"win": {}, "wins": {}, "elected": {}, "president": {}, "nominee": {},
	"nomination": {}, "primary": {},
}

var focusVerbs = map[string]struct{}{
	"win": {}, "wins": {}, "be": {}, "become": {}, "get": {}, "receive": {},
}

var nominationTokens = map[string]struct{}{"nominee": {}, "nomination": {}, "primary": {}}
var winTokens = map[string]struct{}{"win": {}, "wins": {}, "elected": {}, "president": {}}

// Verifier is the optional stage-two port. Returning nil keeps the
// deterministic assessment.
type Verifier interface {
	Verify(a, b types.Market, deterministic types.DependencyAssessment) *types.DependencyAssessment
}

// Detector runs the full candidate-narrowing and relation-assessment flow.
// It holds no state and is safe for concurrent use.
type Detector struct{}

// NewDetector returns a ready-to-use Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect runs candidate narrowing then pairwise assessment across markets,
// optionally refining each result through verifier.
func (d *Detector) Detect(markets []types.Market, verifier Verifier) []types.DependencyAssessment {
	pairs := d.GenerateCandidates(markets)
	out := make([]types.DependencyAssessment, 0, len(pairs))
	for _, p := range pairs {
		det := d.AssessPair(p[0], p[1])
		if verifier != nil {
			if refined := verifier.Verify(p[0], p[1], det); refined != nil {
				out = append(out, *refined)
				continue
			}
		}
		out = append(out, det)
	}
	return out
}

// GenerateCandidates narrows the full pair space down to pairs worth
// assessing: same venue, both unresolved, close within 45 days of each
// other, agreeing on any 4-digit year token present, and sharing at least
// two event-signature tokens.
func (d *Detector) GenerateCandidates(markets []types.Market) [][2]types.Market {
	const maxCloseDeltaSeconds = 45 * 24 * 3600

	var candidates [][2]types.Market
	for i := 0; i < len(markets); i++ {
		for j := i + 1; j < len(markets); j++ {
			a, b := markets[i], markets[j]
			if a.Venue != b.Venue {
				continue
			}
			if a.Resolved || b.Resolved {
				continue
			}
			delta := a.CloseTime.Sub(b.CloseTime)
			if delta.Seconds() < -maxCloseDeltaSeconds || delta.Seconds() > maxCloseDeltaSeconds {
				continue
			}

			yearA, okA := extractYear(a.Title)
			yearB, okB := extractYear(b.Title)
			if okA && okB && yearA != yearB {
				continue
			}

			sigA := eventSignatureTokens(a.Title)
			sigB := eventSignatureTokens(b.Title)
			if len(intersect(sigA, sigB)) < 2 {
				continue
			}

			candidates = append(candidates, [2]types.Market{a, b})
		}
	}
	return candidates
}

// AssessPair applies the deterministic relation-rule ladder, in tie-break
// order, to a single market pair.
func (d *Detector) AssessPair(a, b types.Market) types.DependencyAssessment {
	base := types.DependencyAssessment{MarketAID: a.MarketID, MarketBID: b.MarketID, Source: types.SourceDeterministic}

	if normalize(a.Title) == normalize(b.Title) {
		base.Relation = types.RelationEquivalent
		base.Confidence = 0.99
		base.Reason = "identical normalized title"
		return base
	}

	focusA := focusTokens(a.Title)
	focusB := focusTokens(b.Title)
	sigA := eventSignatureTokens(a.Title)
	sigB := eventSignatureTokens(b.Title)
	overlap := intersect(sigA, sigB)

	sameFocus := len(focusA) > 0 && len(focusB) > 0 && equalTuples(focusA, focusB)
	diffFocus := len(focusA) > 0 && len(focusB) > 0 && !equalTuples(focusA, focusB)

	if sameFocus && len(overlap) >= 3 {
		base.Relation = types.RelationEquivalent
		base.Confidence = 0.80
		base.Reason = "same focus entity and event signature overlap"
		return base
	}

	if diffFocus && len(overlap) >= 3 {
		base.Relation = types.RelationMutuallyExclusive
		base.Confidence = 0.72
		base.Reason = "different focus entities on same event signature"
		return base
	}

	if sameFocus {
		aNom := hasAny(sigA, nominationTokens)
		bWin := hasAny(sigB, winTokens)
		bNom := hasAny(sigB, nominationTokens)
		aWin := hasAny(sigA, winTokens)

		if aNom && bWin {
			base.Relation = types.RelationImplies
			base.Confidence = 0.66
			base.Reason = "nomination/primary phrasing implies election-win path"
			return base
		}
		if bNom && aWin {
			base.Relation = types.RelationImplies
			base.Confidence = 0.66
			base.Reason = "nomination/primary phrasing implies election-win path"
			return base
		}
	}

	base.Relation = types.RelationUnknown
	base.Confidence = 0.35
	base.Reason = "insufficient deterministic evidence"
	return base
}

func extractYear(title string) (string, bool) {
	m := yearRe.FindStringSubmatch(strings.ToLower(title))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func normalize(title string) string {
	tokens := wordRe.FindAllString(strings.ToLower(title), -1)
	return strings.Join(tokens, " ")
}

// focusTokens extracts the probable focus entity from the leading clause:
// tokens after a leading "will", stopping at the first verb in
// {win, wins, be, become, get, receive}, skipping stopwords and pure
// digits, capped at 3 tokens.
func focusTokens(title string) []string {
	tokens := strings.Fields(normalize(title))
	if len(tokens) > 0 && tokens[0] == "will" {
		tokens = tokens[1:]
	}

	var focus []string
	for _, tok := range tokens {
		if _, isVerb := focusVerbs[tok]; isVerb {
			break
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if isDigits(tok) {
			continue
		}
		focus = append(focus, tok)
		if len(focus) >= 3 {
			break
		}
	}
	return focus
}

// eventSignatureTokens is the content-token set used for candidate overlap
// and relation-rule comparisons: stopwords and focus tokens excluded;
// digits and identity markers kept regardless of length; other tokens must
// be at least 4 characters to reduce noise.
func eventSignatureTokens(title string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(title), -1)
	focus := make(map[string]struct{})
	for _, f := range focusTokens(title) {
		focus[f] = struct{}{}
	}

	sig := make(map[string]struct{})
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, inFocus := focus[tok]; inFocus {
			continue
		}
		if isDigits(tok) {
			sig[tok] = struct{}{}
			continue
		}
		if _, ok := identityMarkers[tok]; ok {
			sig[tok] = struct{}{}
			continue
		}
		if len(tok) >= 4 {
			sig[tok] = struct{}{}
		}
	}
	return sig
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func hasAny(set map[string]struct{}, wanted map[string]struct{}) bool {
	for k := range wanted {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

func equalTuples(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
