package querygraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := New(
		Node{Name: "courses", Upstream: []string{"semesters"}, Key: func(s State) (string, bool) {
			if s["program_id"] == "" || s["semester_id"] == "" {
				return "", false
			}
			return s["program_id"] + "/" + s["semester_id"], true
		}},
		Node{Name: "programs", Key: func(State) (string, bool) { return "all", true }},
		Node{Name: "semesters", Upstream: []string{"programs"}, Key: func(s State) (string, bool) {
			return s["program_id"], s["program_id"] != ""
		}},
	)
	require.NoError(t, err)
	return g
}

func names(steps []Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Name)
	}
	return out
}

func TestPlanInitialStateRunsEnabledNodes(t *testing.T) {
	g := catalogGraph(t)
	assert.Equal(t, []string{"programs"}, names(g.Plan(nil, State{})))
	assert.Equal(t, []string{"programs", "semesters", "courses"}, names(g.Enabled(State{"program_id": "p1", "semester_id": "s1"})))
}

func TestPlanOnlyChangedKeys(t *testing.T) {
	g := catalogGraph(t)
	prev := State{"program_id": "p1"}

	steps := g.Plan(prev, State{"program_id": "p1", "semester_id": "s2"})
	assert.Equal(t, []Step{{Name: "courses", Key: "p1/s2"}}, steps)

	steps = g.Plan(prev, State{"program_id": "p2", "semester_id": "s2"})
	assert.Equal(t, []string{"semesters", "courses"}, names(steps))

	assert.Empty(t, g.Plan(prev, State{"program_id": "p1"}))
}

func TestNewRejectsCyclesAndUnknownUpstream(t *testing.T) {
	key := func(State) (string, bool) { return "k", true }

	_, err := New(Node{Name: "a", Upstream: []string{"b"}, Key: key}, Node{Name: "b", Upstream: []string{"a"}, Key: key})
	assert.Error(t, err)

	_, err = New(Node{Name: "a", Upstream: []string{"missing"}, Key: key})
	assert.Error(t, err)

	_, err = New(Node{Name: "a", Key: key}, Node{Name: "a", Key: key})
	assert.Error(t, err)
}
