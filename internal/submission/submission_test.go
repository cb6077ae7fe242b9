package submission_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/submission"
	"github.com/myrjola/clustereval/internal/survey"
	"github.com/myrjola/clustereval/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu        sync.Mutex
	envelopes []submission.Envelope
	// saved is a snapshot of the persisted session at send time.
	saved []survey.Session
	err   error
	block bool
	saves *[]survey.Session
}

func (f *fakeTransport) Send(ctx context.Context, envelope submission.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envelopes = append(f.envelopes, envelope)
	if f.saves != nil && len(*f.saves) > 0 {
		f.saved = append(f.saved, (*f.saves)[len(*f.saves)-1])
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func fixture(t *testing.T) (*assignment.Assignment, survey.Session) {
	t.Helper()
	a, err := assignment.Parse([]byte(`{"assignment_id": "E1_v2", "primary_clustering_id": "A", "tasks": [
		{"type": "cluster", "task_uid": "A_c0_b000", "clustering_id": "A", "cluster_id": "0",
		 "items": [{"doc_id": "d1", "title": "One", "excerpt": "long text"}, {"doc_id": "d2"}, {"doc_id": "d3"}]},
		{"type": "pair", "task_uid": "P1", "clustering_id": "A", "same_cluster": true,
		 "doc1": {"doc_id": "d1"}, "doc2": {"doc_id": "d7"}}]}`))
	require.NoError(t, err)
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := survey.NewSession("client-1")
	s.Started = true
	s.TaskIndex = 2
	s.StartedAt = &started
	s.TaskTimeMs = map[string]int64{"A_c0_b000": 1000, "P1": 500}
	s.Answers["A_c0_b000"] = survey.ClusterAnswer{
		Items: map[string]survey.ItemAnswer{
			"d1": {Coherence: 5}, "d2": {Coherence: 5}, "d3": {Coherence: 5},
		},
	}
	s.Answers["P1"] = survey.PairAnswer{Relatedness: 2}
	return a, s
}

func newRequest(a *assignment.Assignment, s survey.Session, saves *[]survey.Session) submission.Request {
	return submission.Request{
		Assignment: a,
		ExpertID:   "E1",
		Session:    s,
		Meta:       submission.Meta{UserAgent: "test", Timezone: "Europe/Athens", Language: "el"},
		Save: func(_ context.Context, session survey.Session) error {
			*saves = append(*saves, session)
			return nil
		},
	}
}

func newPipeline(transport submission.Transport) *submission.Pipeline {
	return submission.NewPipeline(transport, submission.Config{
		FormName:   "expert-eval",
		AppVersion: "v2",
		Timeout:    200 * time.Millisecond,
	}, testhelpers.NewLogger(&testhelpers.LogBuffer{}))
}

func TestPipeline_Submit(t *testing.T) {
	a, s := fixture(t)
	var saves []survey.Session
	transport := &fakeTransport{saves: &saves}
	pipeline := newPipeline(transport)

	result, err := pipeline.Submit(context.Background(), newRequest(a, s, &saves))
	require.NoError(t, err)
	assert.True(t, result.Session.Submitted)
	assert.False(t, result.AlreadySubmitted)
	require.Len(t, transport.envelopes, 1)
	require.Len(t, saves, 2)

	// The finish timestamp was persisted before anything was sent.
	require.Len(t, transport.saved, 1)
	assert.NotNil(t, transport.saved[0].FinishedAt)
	assert.False(t, transport.saved[0].Submitted)

	envelope := transport.envelopes[0]
	assert.Equal(t, "expert-eval", envelope.FormName)
	assert.Equal(t, "client-1", envelope.ClientSessionID)
	assert.Equal(t, result.Session.LastSubmissionUUID, envelope.SubmissionUUID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	for _, field := range []string{
		"expert_id", "assignment_id", "app_version", "submission_uuid", "client_session_id",
		"submitted_at", "started_at", "finished_at", "meta", "task_time_ms", "tasks", "answers",
	} {
		assert.Contains(t, payload, field)
	}
	assert.Equal(t, "Europe/Athens", payload["meta"].(map[string]any)["timezone"])
	assert.NotContains(t, string(envelope.Payload), "long text", "digest omits excerpts")
	assert.Contains(t, string(envelope.Payload), `"same_cluster":true`)

	var decoded submission.Payload
	require.NoError(t, json.Unmarshal(envelope.Payload, &decoded))
	assert.Equal(t, s.Answers, decoded.Answers)
}

func TestPipeline_SubmitIsIdempotent(t *testing.T) {
	a, s := fixture(t)
	var saves []survey.Session
	transport := &fakeTransport{saves: &saves}
	pipeline := newPipeline(transport)

	first, err := pipeline.Submit(context.Background(), newRequest(a, s, &saves))
	require.NoError(t, err)

	second, err := pipeline.Submit(context.Background(), newRequest(a, first.Session, &saves))
	require.NoError(t, err)
	assert.True(t, second.AlreadySubmitted)
	assert.Len(t, transport.envelopes, 1, "nothing is sent twice")
	assert.Equal(t, first.Session, second.Session)
}

func TestPipeline_SubmitBlockedByIncompleteTask(t *testing.T) {
	a, s := fixture(t)
	s.Answers["P1"] = survey.PairAnswer{Relatedness: 4}
	var saves []survey.Session
	transport := &fakeTransport{saves: &saves}

	_, err := newPipeline(transport).Submit(context.Background(), newRequest(a, s, &saves))
	var incomplete *submission.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	require.Len(t, incomplete.Failures, 1)
	assert.Contains(t, incomplete.Failures[0].Message, "common theme")
	assert.Empty(t, transport.envelopes)
	assert.Empty(t, saves)
}

func TestPipeline_TransportFailureIsRetryable(t *testing.T) {
	a, s := fixture(t)
	var saves []survey.Session
	transport := &fakeTransport{saves: &saves, err: errors.New("connection refused")}
	pipeline := newPipeline(transport)

	result, err := pipeline.Submit(context.Background(), newRequest(a, s, &saves))
	require.ErrorIs(t, err, submission.ErrTransport)
	assert.False(t, result.Session.Submitted)
	firstUUID := result.Session.LastSubmissionUUID

	transport.err = nil
	result, err = pipeline.Submit(context.Background(), newRequest(a, result.Session, &saves))
	require.NoError(t, err)
	assert.True(t, result.Session.Submitted)
	assert.NotEqual(t, firstUUID, result.Session.LastSubmissionUUID, "every attempt gets a fresh identifier")
}

func TestPipeline_StalledTransportTimesOut(t *testing.T) {
	a, s := fixture(t)
	var saves []survey.Session
	transport := &fakeTransport{saves: &saves, block: true}

	start := time.Now()
	_, err := newPipeline(transport).Submit(context.Background(), newRequest(a, s, &saves))
	require.ErrorIs(t, err, submission.ErrTransport)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFormsClient(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
		status   = http.StatusOK
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		mu.Lock()
		received = append(received, r.PostForm.Get(submission.FieldFormName)+"/"+
			r.PostForm.Get(submission.FieldSubmissionUUID))
		code := status
		mu.Unlock()
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	client := submission.NewFormsClient(srv.URL, srv.Client(), testhelpers.NewLogger(&testhelpers.LogBuffer{}))
	envelope := submission.Envelope{
		FormName: "expert-eval", ExpertID: "E1", AssignmentID: "a", SubmissionUUID: "u1",
		ClientSessionID: "c", Payload: []byte(`{}`),
	}

	require.NoError(t, client.Send(context.Background(), envelope))
	mu.Lock()
	status = http.StatusInternalServerError
	mu.Unlock()
	require.Error(t, client.Send(context.Background(), envelope))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"expert-eval/u1", "expert-eval/u1"}, received)
}

func TestParseEnvelope(t *testing.T) {
	envelope := submission.Envelope{
		FormName: "expert-eval", ExpertID: "E1", AssignmentID: "a", SubmissionUUID: "u1",
		ClientSessionID: "c", Payload: []byte(`{"a":1}`),
	}
	got, err := submission.ParseEnvelope(envelope.Values())
	require.NoError(t, err)
	assert.Equal(t, envelope, got)

	values := envelope.Values()
	values.Del(submission.FieldSubmissionUUID)
	_, err = submission.ParseEnvelope(values)
	require.ErrorIs(t, err, submission.ErrEnvelope)
}
