package survey_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/survey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssignment(t *testing.T) *assignment.Assignment {
	t.Helper()
	a, err := assignment.Parse([]byte(`{
  "assignment_id": "E1_v2",
  "tasks": [
    {"type": "cluster", "task_uid": "A_c0_b000", "clustering_id": "A", "cluster_id": "0", "batch_index": 0,
     "items": [{"doc_id": "d1"}, {"doc_id": "d2"}, {"doc_id": "d3"}]},
    {"type": "pair", "task_uid": "P1", "clustering_id": "A", "doc1": {"doc_id": "d1"}, "doc2": {"doc_id": "d9"}}
  ]
}`))
	require.NoError(t, err)
	return a
}

func ratedCluster(r survey.Rating) survey.ClusterAnswer {
	return survey.ClusterAnswer{
		Items: map[string]survey.ItemAnswer{
			"d1": {Coherence: r, Misplaced: false, Note: ""},
			"d2": {Coherence: r, Misplaced: false, Note: ""},
			"d3": {Coherence: r, Misplaced: false, Note: ""},
		},
		ClusterLabel: "",
		ClusterNote:  "",
	}
}

func TestValidate(t *testing.T) {
	a := newAssignment(t)
	cluster, pair := a.Tasks[0], a.Tasks[1]
	partial := ratedCluster(5)
	partial.Items["d2"] = survey.ItemAnswer{Coherence: 0, Misplaced: true, Note: "odd"}

	tests := []struct {
		name        string
		task        assignment.Task
		answer      survey.Answer
		wantOK      bool
		wantMessage string
	}{
		{name: "cluster unanswered", task: cluster, answer: nil, wantOK: false, wantMessage: survey.MsgRateEveryItem},
		{name: "cluster partial", task: cluster, answer: partial, wantOK: false, wantMessage: survey.MsgRateEveryItem},
		{name: "cluster complete", task: cluster, answer: ratedCluster(5), wantOK: true},
		{name: "cluster with pair answer", task: cluster, answer: survey.PairAnswer{Relatedness: 2},
			wantOK: false, wantMessage: survey.MsgWrongAnswerKind},
		{name: "pair unanswered", task: pair, answer: nil, wantOK: false, wantMessage: survey.MsgRateRelatedness},
		{name: "pair unrated", task: pair, answer: survey.PairAnswer{Note: "x"},
			wantOK: false, wantMessage: survey.MsgRateRelatedness},
		{name: "pair low relatedness without theme", task: pair, answer: survey.PairAnswer{Relatedness: 2},
			wantOK: true},
		{name: "pair high relatedness without theme", task: pair, answer: survey.PairAnswer{Relatedness: 4},
			wantOK: false, wantMessage: survey.MsgCommonThemeNeeded},
		{name: "pair high relatedness with blank theme", task: pair,
			answer: survey.PairAnswer{Relatedness: 5, CommonTheme: "  \t"},
			wantOK: false, wantMessage: survey.MsgCommonThemeNeeded},
		{name: "pair high relatedness with theme", task: pair,
			answer: survey.PairAnswer{Relatedness: 4, CommonTheme: "the sea"}, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := survey.Validate(tt.task, tt.answer)
			assert.Equal(t, tt.wantOK, got.OK)
			assert.Equal(t, tt.wantMessage, got.Message)
		})
	}
	assert.Contains(t, survey.MsgCommonThemeNeeded, "common theme")
}

func TestValidateAll(t *testing.T) {
	a := newAssignment(t)
	answers := survey.Answers{"A_c0_b000": ratedCluster(5), "P1": survey.PairAnswer{Relatedness: 4}}

	failures := survey.ValidateAll(a, answers)
	require.Len(t, failures, 1)
	assert.Equal(t, "P1", failures[0].TaskKey)
	assert.Equal(t, 1, failures[0].Index)

	answers["P1"] = survey.PairAnswer{Relatedness: 2}
	assert.Empty(t, survey.ValidateAll(a, answers))
}

func TestMachine_Walkthrough(t *testing.T) {
	a := newAssignment(t)
	m := survey.NewMachine(a)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := survey.NewSession("client")
	assert.Equal(t, survey.ScreenWelcome, m.Screen(s))

	_, err := m.Apply(s, survey.Consent{Acknowledged: false}, start)
	require.ErrorIs(t, err, survey.ErrConsentRequired)

	s, err = m.Apply(s, survey.Consent{Acknowledged: true}, start)
	require.NoError(t, err)
	assert.Equal(t, survey.ScreenTask, m.Screen(s))
	require.NotNil(t, s.StartedAt)
	assert.Equal(t, start, *s.StartedAt)

	// Consent again on resume never overwrites startedAt.
	s, err = m.Apply(s, survey.Consent{Acknowledged: true}, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, start, *s.StartedAt)

	_, err = m.Apply(s, survey.Next{From: "A_c0_b000"}, start.Add(time.Second))
	var validationErr *survey.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, survey.MsgRateEveryItem, validationErr.Message)

	s, err = m.Apply(s, survey.UpdateAnswer{TaskKey: "A_c0_b000", Answer: ratedCluster(5)}, start)
	require.NoError(t, err)
	s, err = m.Apply(s, survey.Next{From: "A_c0_b000"}, start.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "P1", m.CursorKey(s))

	s, err = m.Apply(s, survey.UpdateAnswer{TaskKey: "P1", Answer: survey.PairAnswer{Relatedness: 2}}, start)
	require.NoError(t, err)
	s, err = m.Apply(s, survey.Next{From: "P1"}, start.Add(15*time.Second))
	require.NoError(t, err)
	assert.Equal(t, survey.ScreenSubmit, m.Screen(s))
	assert.Equal(t, 2, s.TaskIndex)

	// Next on the submit screen stays clamped at the task count.
	s, err = m.Apply(s, survey.Next{From: ""}, start.Add(16*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, s.TaskIndex)

	assert.Equal(t, map[string]int64{"A_c0_b000": 10_000, "P1": 5_000}, s.TaskTimeMs)

	s.Submitted = true
	assert.Equal(t, survey.ScreenThanks, m.Screen(s))
	_, err = m.Apply(s, survey.Back{From: ""}, start)
	require.ErrorIs(t, err, survey.ErrSubmitted)
}

func TestMachine_Navigation(t *testing.T) {
	a := newAssignment(t)
	m := survey.NewMachine(a)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := survey.NewSession("client")

	_, err := m.Apply(s, survey.Back{From: "A_c0_b000"}, now)
	require.ErrorIs(t, err, survey.ErrNotStarted)

	s, err = m.Apply(s, survey.Consent{Acknowledged: true}, now)
	require.NoError(t, err)

	s, err = m.Apply(s, survey.Back{From: "A_c0_b000"}, now)
	require.NoError(t, err, "back is ungated")
	assert.Equal(t, 0, s.TaskIndex, "back is clamped at the first task")

	_, err = m.Apply(s, survey.Next{From: "P1"}, now)
	require.ErrorIs(t, err, survey.ErrStale)

	_, err = m.Apply(s, survey.UpdateAnswer{TaskKey: "nope", Answer: survey.PairAnswer{}}, now)
	require.ErrorIs(t, err, survey.ErrUnknownTask)

	_, err = m.Apply(s, survey.UpdateAnswer{TaskKey: "P1", Answer: ratedCluster(3)}, now)
	require.ErrorIs(t, err, survey.ErrAnswerKind)
}

func TestMachine_ApplyDoesNotMutateInput(t *testing.T) {
	a := newAssignment(t)
	m := survey.NewMachine(a)
	now := time.Now()
	s, err := m.Apply(survey.NewSession("client"), survey.Consent{Acknowledged: true}, now)
	require.NoError(t, err)
	s, err = m.Apply(s, survey.UpdateAnswer{TaskKey: "A_c0_b000", Answer: ratedCluster(2)}, now)
	require.NoError(t, err)

	before := s.Clone()
	_, err = m.Apply(s, survey.UpdateAnswer{TaskKey: "A_c0_b000", Answer: ratedCluster(4)}, now)
	require.NoError(t, err)
	assert.Equal(t, before, s)
}

func TestTiming_AccumulatesAcrossVisits(t *testing.T) {
	a, err := assignment.Parse([]byte(`{"assignment_id": "x", "tasks": [
		{"type": "pair", "task_uid": "A", "doc1": {"doc_id": "1"}, "doc2": {"doc_id": "2"}},
		{"type": "pair", "task_uid": "B", "doc1": {"doc_id": "1"}, "doc2": {"doc_id": "3"}}]}`))
	require.NoError(t, err)
	m := survey.NewMachine(a)
	t0 := time.UnixMilli(1_000_000)
	s, err := m.Apply(survey.NewSession("c"), survey.Consent{Acknowledged: true}, t0)
	require.NoError(t, err)
	s, err = m.Apply(s, survey.UpdateAnswer{TaskKey: "A", Answer: survey.PairAnswer{Relatedness: 1}}, t0)
	require.NoError(t, err)

	s, err = m.Apply(s, survey.Next{From: "A"}, t0.Add(3*time.Second)) // A: 3s
	require.NoError(t, err)
	s, err = m.Apply(s, survey.Back{From: "B"}, t0.Add(5*time.Second)) // B: 2s
	require.NoError(t, err)
	s, err = m.Apply(s, survey.Next{From: "A"}, t0.Add(9*time.Second)) // A: +4s
	require.NoError(t, err)
	// A clock going backwards adds nothing.
	s, err = m.Apply(s, survey.Back{From: "B"}, t0)
	require.NoError(t, err)

	assert.Equal(t, int64(7_000), s.TaskTimeMs["A"])
	assert.Equal(t, int64(2_000), s.TaskTimeMs["B"])
}

func TestSession_JSONRoundTrip(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := survey.NewSession("client")
	s.Started = true
	s.TaskIndex = 1
	s.StartedAt = &started
	s.Answers["A_c0_b000"] = ratedCluster(3)
	s.Answers["P1"] = survey.PairAnswer{Relatedness: 0, CommonTheme: "", Note: "unsure"}
	s.TaskTimeMs["A_c0_b000"] = 1234
	s.CursorTaskKey = "P1"
	s.CursorStartMs = 42

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"relatedness":null`)

	var got survey.Session
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s, got)
}

func TestParseRating(t *testing.T) {
	r, err := survey.ParseRating("")
	require.NoError(t, err)
	assert.False(t, r.Set())

	r, err = survey.ParseRating("4")
	require.NoError(t, err)
	assert.Equal(t, survey.Rating(4), r)

	for _, bad := range []string{"0", "6", "x"} {
		_, err = survey.ParseRating(bad)
		require.ErrorIs(t, err, survey.ErrRatingRange, bad)
	}
}
