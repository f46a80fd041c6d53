// Package trigger decides whether an incoming repository event starts a run.
package trigger

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

// Decision is the outcome of matching one event against one rule set, with a
// human-readable reason for the audit trail.
type Decision struct {
	Matched bool
	Reason  string
}

// Matches reports whether the event should start a run under the given rules.
// The rules map holds one TriggerRule per event kind; an event whose kind has
// no rule never matches. Branch must match one of the rule's branch patterns
// and at least one changed path must match at least one path pattern (OR
// semantics across both paths and patterns). An empty pattern list matches
// everything.
func Matches(event types.ChangeEvent, rules map[types.ChangeKind]types.TriggerRule) bool {
	return Evaluate(event, rules).Matched
}

// Evaluate is Matches with the reason attached.
func Evaluate(event types.ChangeEvent, rules map[types.ChangeKind]types.TriggerRule) Decision {
	rule, ok := rules[event.Kind]
	if !ok {
		return Decision{Reason: fmt.Sprintf("no rule for event kind %q", event.Kind)}
	}

	if !matchBranch(event.Branch, rule.Branches) {
		return Decision{Reason: fmt.Sprintf("branch %q matches no branch pattern", event.Branch)}
	}

	if len(rule.Paths) == 0 {
		return Decision{Matched: true, Reason: "branch matched, no path filters"}
	}

	// An event with zero changed paths never matches a rule that declares
	// path filters. Deliberate: empty commits should not burn runs.
	for _, p := range event.ChangedPaths {
		for _, pattern := range rule.Paths {
			if MatchPath(pattern, p) {
				return Decision{Matched: true, Reason: fmt.Sprintf("path %q matched pattern %q", p, pattern)}
			}
		}
	}
	return Decision{Reason: "no changed path matches any path pattern"}
}

func matchBranch(branch string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if pattern == branch {
			return true
		}
		if ok, err := doublestar.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}

// MatchPath matches a changed path against one path pattern. Patterns use
// `**` globs with the hosting platform's convention that a bare `**.ext`
// matches the extension at any depth.
func MatchPath(pattern, path string) bool {
	ok, err := doublestar.Match(normalizePattern(pattern), path)
	return err == nil && ok
}

// normalizePattern rewrites `**.ext`-style patterns (where `**` is glued to a
// suffix rather than standing alone as a path segment) into the equivalent
// `**/*.ext`, which is what the glob engine understands.
func normalizePattern(pattern string) string {
	if strings.HasPrefix(pattern, "**") && !strings.HasPrefix(pattern, "**/") && len(pattern) > 2 {
		return "**/*" + pattern[2:]
	}
	return pattern
}
