package rules

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/getmockd/interceptd/internal/matching"
)

// Action is what a matching rule (or the global fallback) does.
type Action string

const (
	// ActionPass lets the request through untouched.
	ActionPass Action = "PASS"
	// ActionReturnRecording answers from the recording store.
	ActionReturnRecording Action = "RET_REC"
)

// Fallback is what happens when RET_REC finds no recording.
type Fallback string

const (
	FallbackPass  Fallback = "PASS"
	FallbackError Fallback = "500"
	FallbackEmpty Fallback = "200"
)

// UnmarshalJSON accepts both "500" and 500.
func (f *Fallback) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = Fallback(strings.ToUpper(s))
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("fallback must be a string or status code: %w", err)
	}
	*f = Fallback(strconv.Itoa(n))
	return nil
}

// Valid reports whether f is a known fallback.
func (f Fallback) Valid() bool {
	switch f {
	case FallbackPass, FallbackError, FallbackEmpty:
		return true
	}
	return false
}

// Methods is a set of HTTP verbs. In JSON it is an array or a single string.
type Methods []string

// UnmarshalJSON accepts "GET" as well as ["GET", "POST"].
func (m *Methods) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*m = nil
		} else {
			*m = Methods{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*m = many
	return nil
}

// Contains reports whether method is in the set, ignoring case.
func (m Methods) Contains(method string) bool {
	return slices.ContainsFunc(m, func(v string) bool { return strings.EqualFold(v, method) })
}

// Rule is a single mock rule.
type Rule struct {
	Method Methods `json:"method"`
	// URL is empty (match everything), a ":name" segment pattern or a
	// substring of the request path.
	URL              string   `json:"url"`
	Action           Action   `json:"action"`
	FallbackFallback Fallback `json:"fallback_fallback,omitempty"`
}

// Matches reports whether the rule applies to method and path.
func (r *Rule) Matches(method, path string) bool {
	return r.Method.Contains(method) && matching.MatchURL(r.URL, path)
}

// RuleSet is an ordered list of rules with global fallbacks.
type RuleSet struct {
	Rules            []Rule   `json:"rules"`
	Fallback         Action   `json:"fallback"`
	FallbackFallback Fallback `json:"fallback_fallback"`
	RecordingsFolder string   `json:"recordingsFolder"`
}

// ActiveName is the reserved name of the live rule set.
const ActiveName = "active"

// Default returns the rule set used when none is configured.
func Default() *RuleSet {
	return &RuleSet{
		Rules:            []Rule{},
		Fallback:         ActionPass,
		FallbackFallback: FallbackPass,
		RecordingsFolder: ActiveName,
	}
}

// Match returns the first rule matching method and path, or nil.
func (rs *RuleSet) Match(method, path string) *Rule {
	for i := range rs.Rules {
		if rs.Rules[i].Matches(method, path) {
			return &rs.Rules[i]
		}
	}
	return nil
}

// Outcome is the evaluation of a rule set against one request.
type Outcome struct {
	// Rule is the matching rule, nil when the global fallback applied.
	Rule   *Rule
	Action Action
	// Fallback applies when Action is RET_REC and no recording exists.
	Fallback Fallback
}

// Evaluate resolves the action for method and path. A rule-level
// fallback_fallback overrides the global one.
func (rs *RuleSet) Evaluate(method, path string) Outcome {
	out := Outcome{Action: rs.Fallback, Fallback: rs.FallbackFallback}
	if rule := rs.Match(method, path); rule != nil {
		out.Rule = rule
		out.Action = rule.Action
		if rule.FallbackFallback != "" {
			out.Fallback = rule.FallbackFallback
		}
	}
	if out.Action == "" {
		out.Action = ActionPass
	}
	if out.Fallback == "" {
		out.Fallback = FallbackPass
	}
	return out
}

// Folder returns the recordings folder of the set.
func (rs *RuleSet) Folder() string {
	if rs.RecordingsFolder == "" {
		return ActiveName
	}
	return rs.RecordingsFolder
}
