package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

func gateRules() map[types.ChangeKind]types.TriggerRule {
	return map[types.ChangeKind]types.TriggerRule{
		types.ChangePush: {
			Branches: []string{"main"},
			Paths:    []string{"**.rs", "Cargo.toml", "Cargo.lock"},
		},
		types.ChangePullRequest: {
			Branches: []string{"main"},
			Paths:    []string{"**.rs", "Cargo.toml", "Cargo.lock"},
		},
	}
}

func TestMatches_ManifestChangeOnMain(t *testing.T) {
	ev := types.ChangeEvent{
		Kind:         types.ChangePush,
		Branch:       "main",
		ChangedPaths: []string{"Cargo.toml"},
	}
	assert.True(t, Matches(ev, gateRules()))
}

func TestMatches_DocOnlyChangeSkipped(t *testing.T) {
	ev := types.ChangeEvent{
		Kind:         types.ChangePush,
		Branch:       "main",
		ChangedPaths: []string{"README.md"},
	}
	assert.False(t, Matches(ev, gateRules()))
}

func TestMatches_SourceFileAtAnyDepth(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"main.rs", true},
		{"src/main.rs", true},
		{"src/render/layout.rs", true},
		{"Cargo.lock", true},
		{"docs/guide.md", false},
		{"src/main.rs.bak", false},
	}
	for _, tt := range tests {
		ev := types.ChangeEvent{Kind: types.ChangePush, Branch: "main", ChangedPaths: []string{tt.path}}
		assert.Equal(t, tt.want, Matches(ev, gateRules()), "path %q", tt.path)
	}
}

func TestMatches_OrSemanticsAcrossPaths(t *testing.T) {
	// One matching path among many non-matching ones is enough.
	ev := types.ChangeEvent{
		Kind:         types.ChangePush,
		Branch:       "main",
		ChangedPaths: []string{"README.md", ".gitignore", "src/dom.rs"},
	}
	assert.True(t, Matches(ev, gateRules()))
}

func TestMatches_UnknownKind(t *testing.T) {
	rules := map[types.ChangeKind]types.TriggerRule{
		types.ChangePush: {Branches: []string{"main"}},
	}
	ev := types.ChangeEvent{Kind: types.ChangePullRequest, Branch: "main", ChangedPaths: []string{"x.rs"}}
	d := Evaluate(ev, rules)
	assert.False(t, d.Matched)
	assert.Contains(t, d.Reason, "no rule")
}

func TestMatches_BranchFilter(t *testing.T) {
	ev := types.ChangeEvent{
		Kind:         types.ChangePush,
		Branch:       "feature/layout",
		ChangedPaths: []string{"src/layout.rs"},
	}
	assert.False(t, Matches(ev, gateRules()))

	glob := map[types.ChangeKind]types.TriggerRule{
		types.ChangePush: {Branches: []string{"release/**"}},
	}
	ev = types.ChangeEvent{Kind: types.ChangePush, Branch: "release/1.2", ChangedPaths: []string{"anything"}}
	assert.True(t, Matches(ev, glob))
}

func TestMatches_EmptyPathFiltersMatchAll(t *testing.T) {
	rules := map[types.ChangeKind]types.TriggerRule{
		types.ChangePush: {Branches: []string{"main"}},
	}
	ev := types.ChangeEvent{Kind: types.ChangePush, Branch: "main", ChangedPaths: []string{"README.md"}}
	assert.True(t, Matches(ev, rules))

	// Even zero changed paths match when no path filters are declared.
	ev.ChangedPaths = nil
	assert.True(t, Matches(ev, rules))
}

func TestMatches_EmptyCommitNeverMatchesPathFilters(t *testing.T) {
	ev := types.ChangeEvent{Kind: types.ChangePush, Branch: "main"}
	d := Evaluate(ev, gateRules())
	assert.False(t, d.Matched)
	assert.Contains(t, d.Reason, "no changed path")
}

func TestMatchPath_Normalization(t *testing.T) {
	assert.True(t, MatchPath("**.rs", "a/b/c.rs"))
	assert.True(t, MatchPath("**.rs", "c.rs"))
	assert.False(t, MatchPath("**.rs", "c.rss"))
	assert.True(t, MatchPath("src/**", "src/deep/file.txt"))
	assert.True(t, MatchPath("Cargo.toml", "Cargo.toml"))
	assert.False(t, MatchPath("Cargo.toml", "sub/Cargo.toml"))
}
