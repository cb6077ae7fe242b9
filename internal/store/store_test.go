package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/myrjola/clustereval/internal/store"
	"github.com/myrjola/clustereval/internal/survey"
	"github.com/myrjola/clustereval/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Keys(t *testing.T) {
	s := store.New(store.NewMemoryKV(), "pap_eval_v2", testhelpers.NewLogger(&testhelpers.LogBuffer{}))
	assert.Equal(t, "pap_eval_v2::E1::E1_v2", s.SessionKey("E1", "E1_v2"))
	assert.Equal(t, "pap_eval_v2::client_session_id::E1", s.ClientSessionIDKey("E1"))
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemoryKV(), "p", testhelpers.NewLogger(&testhelpers.LogBuffer{}))

	fresh, err := s.LoadSession(ctx, "E1", "a1")
	require.NoError(t, err)
	assert.False(t, fresh.Started)
	assert.NotEmpty(t, fresh.ClientSessionID)

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fresh.Started = true
	fresh.TaskIndex = 3
	fresh.StartedAt = &started
	fresh.Answers["t1"] = survey.PairAnswer{Relatedness: 4, CommonTheme: "war", Note: ""}
	fresh.TaskTimeMs["t1"] = 900
	require.NoError(t, s.SaveSession(ctx, "E1", "a1", fresh))

	got, err := s.LoadSession(ctx, "E1", "a1")
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}

func TestStore_ClientSessionIDOutlivesAssignments(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemoryKV(), "p", testhelpers.NewLogger(&testhelpers.LogBuffer{}))

	first, err := s.LoadSession(ctx, "E1", "a1")
	require.NoError(t, err)
	second, err := s.LoadSession(ctx, "E1", "a2")
	require.NoError(t, err)
	other, err := s.LoadSession(ctx, "E2", "a1")
	require.NoError(t, err)

	assert.Equal(t, first.ClientSessionID, second.ClientSessionID)
	assert.NotEqual(t, first.ClientSessionID, other.ClientSessionID)
}

func TestStore_AssignmentsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemoryKV(), "p", testhelpers.NewLogger(&testhelpers.LogBuffer{}))
	session, err := s.LoadSession(ctx, "E1", "old")
	require.NoError(t, err)
	session.Started = true
	require.NoError(t, s.SaveSession(ctx, "E1", "old", session))

	fresh, err := s.LoadSession(ctx, "E1", "new")
	require.NoError(t, err)
	assert.False(t, fresh.Started)
}

func TestStore_CorruptRecordIsLoggedAndReset(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	logs := &testhelpers.LogBuffer{}
	s := store.New(kv, "p", testhelpers.NewLogger(logs))
	require.NoError(t, kv.Set(ctx, s.SessionKey("E1", "a1"), `{"started": tru`))

	session, err := s.LoadSession(ctx, "E1", "a1")
	require.NoError(t, err)
	assert.False(t, session.Started)
	assert.NotEmpty(t, session.ClientSessionID)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "discarding corrupt session record")
}
