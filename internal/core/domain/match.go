package domain

import (
	"regexp"
	"strings"
)

// Match rule names reported in MatchResult.Rule.
const (
	MatchRuleArlisID   = "arlis_id"
	MatchRuleTitleDate = "title_date"
	MatchRuleNone      = "none"
)

// MatchResult is the verdict of comparing two source records.
type MatchResult struct {
	Matched  bool   `json:"matched"`
	Rule     string `json:"rule"`
	MatchKey string `json:"match_key,omitempty"`
}

// MatchRule is one identity heuristic. Rules are evaluated in a fixed
// priority order; the first rule producing a key wins.
type MatchRule interface {
	Name() string

	// TryMatch returns the canonical match key shared by a and b,
	// or ok=false when the rule does not group them.
	TryMatch(a, b *SourceRecord) (key string, ok bool)
}

// matchRules is the fixed evaluation order. New heuristics (e.g. an official
// gazette id rule) slot in here without touching merge logic.
var matchRules = []MatchRule{
	arlisIDRule{},
	titleDateRule{},
}

var (
	arlisURLPattern  = regexp.MustCompile(`(?i)(?:documentview|docview)\.aspx\?docid=(\d+)`)
	arlisFilePattern = regexp.MustCompile(`(?i)arlis_id_(\d+)`)
)

// ExtractArlisID recovers the ARLIS document id from a record's source URL,
// falling back to the id embedded in the file name. Returns "" when the
// record carries no ARLIS reference.
func ExtractArlisID(rec *SourceRecord) string {
	if m := arlisURLPattern.FindStringSubmatch(rec.SourceURL); m != nil {
		return m[1]
	}
	if m := arlisFilePattern.FindStringSubmatch(rec.FileName); m != nil {
		return m[1]
	}
	return ""
}

// arlisIDRule groups records sharing an ARLIS document id.
type arlisIDRule struct{}

func (arlisIDRule) Name() string { return MatchRuleArlisID }

func (arlisIDRule) TryMatch(a, b *SourceRecord) (string, bool) {
	idA, idB := ExtractArlisID(a), ExtractArlisID(b)
	if idA == "" || idA != idB {
		return "", false
	}
	return "arlis:" + idA, true
}

// arlisKey returns the group key of a single record under the ARLIS rule.
func arlisKey(rec *SourceRecord) string {
	if id := ExtractArlisID(rec); id != "" {
		return "arlis:" + id
	}
	return ""
}

// NormalizeTitle trims and collapses internal whitespace. Comparison stays
// case-sensitive otherwise.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}

// titleDateRule groups records with equal normalized titles and equal
// adoption dates (exact string match, "2023-05-01" style).
type titleDateRule struct{}

func (titleDateRule) Name() string { return MatchRuleTitleDate }

func (titleDateRule) TryMatch(a, b *SourceRecord) (string, bool) {
	keyA := titleDateKey(a)
	if keyA == "" || keyA != titleDateKey(b) {
		return "", false
	}
	return keyA, true
}

func titleDateKey(rec *SourceRecord) string {
	title := NormalizeTitle(rec.Title)
	if title == "" || rec.DateAdopted == "" {
		return ""
	}
	return "title:" + title + "|" + rec.DateAdopted
}

// MatchSources compares two records under the rule priority list.
// It never fails; a pair nothing groups yields Rule "none".
func MatchSources(a, b *SourceRecord) MatchResult {
	for _, rule := range matchRules {
		if key, ok := rule.TryMatch(a, b); ok {
			return MatchResult{Matched: true, Rule: rule.Name(), MatchKey: key}
		}
	}
	return MatchResult{Matched: false, Rule: MatchRuleNone}
}

// SourceGroup is a set of records believed to represent the same document.
type SourceGroup struct {
	Key     string
	Rule    string
	Sources []*SourceRecord
}

// FindMatchingPairs groups a collection of records by match key. The ARLIS
// rule is applied across the whole set before title+date, so a pair already
// grouped by ARLIS id never reappears under a title+date key.
func FindMatchingPairs(sources []*SourceRecord) []SourceGroup {
	groups := make(map[string]*SourceGroup)
	var order []string

	add := func(key, rule string, rec *SourceRecord) {
		g, ok := groups[key]
		if !ok {
			g = &SourceGroup{Key: key, Rule: rule}
			groups[key] = g
			order = append(order, key)
		}
		g.Sources = append(g.Sources, rec)
	}

	var remaining []*SourceRecord
	for _, rec := range sources {
		if key := arlisKey(rec); key != "" {
			add(key, MatchRuleArlisID, rec)
			continue
		}
		remaining = append(remaining, rec)
	}
	for _, rec := range remaining {
		if key := titleDateKey(rec); key != "" {
			add(key, MatchRuleTitleDate, rec)
		}
	}

	result := make([]SourceGroup, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if len(g.Sources) >= 2 {
			result = append(result, *g)
		}
	}
	return result
}
