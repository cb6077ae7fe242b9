package repositories_test

import (
	"context"
	"io"
	"testing"

	"github.com/myrjola/clustereval/internal/repositories"
	"github.com/myrjola/clustereval/internal/submission"
	"github.com/myrjola/clustereval/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionRepository_Dedupe(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewSubmissionRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
	envelope := submission.Envelope{
		FormName:        "expert-eval",
		ExpertID:        "E1",
		AssignmentID:    "E1_v2",
		SubmissionUUID:  "u1",
		ClientSessionID: "c1",
		Payload:         []byte(`{"expert_id":"E1"}`),
	}

	stored, err := repo.Store(ctx, envelope)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = repo.Store(ctx, envelope)
	require.NoError(t, err)
	assert.False(t, stored, "duplicate post is acknowledged but not stored")

	envelope.SubmissionUUID = "u2"
	require.NoError(t, repo.Send(ctx, envelope))

	submissions, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, submissions, 2)
	assert.Equal(t, "u1", submissions[0].SubmissionUUID)
	assert.Equal(t, "u2", submissions[1].SubmissionUUID)
	assert.Equal(t, `{"expert_id":"E1"}`, submissions[0].Payload)
	assert.NotEmpty(t, submissions[0].Received)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSubmissionRepository_RejectsInvalidPayload(t *testing.T) {
	repo := repositories.NewSubmissionRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
	for _, payload := range []string{"not json", "[]", "null"} {
		_, err := repo.Store(context.Background(), submission.Envelope{
			SubmissionUUID: "u", ClientSessionID: "c", Payload: []byte(payload),
		})
		require.ErrorIs(t, err, repositories.ErrInvalidPayload, payload)
	}
}
