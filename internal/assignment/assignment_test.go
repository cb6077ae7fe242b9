package assignment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDocument = `{
  "assignment_id": "E1_v2",
  "expert_id": "E1",
  "primary_clustering_id": "A",
  "tasks": [
    {"type": "cluster", "task_uid": "A_c0_b000", "task_id": "E1_0001", "clustering_id": "A", "cluster_id": "0",
     "items": [{"doc_id": "d1", "title": "One", "excerpt": "First"}, {"doc_id": "d2"}]},
    {"type": "pair", "task_id": "E1_0002", "clustering_id": "A", "pair_id": "p1",
     "doc1": {"doc_id": "d1"}, "doc2": {"doc_id": "d3", "title": "Three"}, "same_cluster": false}
  ]
}`

func TestParse(t *testing.T) {
	a, err := assignment.Parse([]byte(validDocument))
	require.NoError(t, err)
	assert.Equal(t, "E1_v2", a.ID)
	assert.Equal(t, "A", a.PrimaryClusteringID)
	require.Len(t, a.Tasks, 2)

	cluster, ok := a.Tasks[0].(*assignment.ClusterTask)
	require.True(t, ok)
	assert.Equal(t, "A_c0_b000", cluster.Key())
	assert.Equal(t, 0, cluster.BatchIndex)
	assert.Equal(t, "First", cluster.Items[0].Excerpt)

	pair, ok := a.Tasks[1].(*assignment.PairTask)
	require.True(t, ok)
	assert.Equal(t, "E1_0002", pair.Key(), "task_id is the fallback identity")
	require.NotNil(t, pair.SameCluster)
	assert.False(t, *pair.SameCluster)

	task, index, ok := a.Find("E1_0002")
	require.True(t, ok)
	assert.Equal(t, 1, index)
	assert.Same(t, pair, task)
}

func TestParse_MarshalRoundTrip(t *testing.T) {
	a, err := assignment.Parse([]byte(validDocument))
	require.NoError(t, err)
	data, err := json.Marshal(a)
	require.NoError(t, err)
	b, err := assignment.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		document string
	}{
		{name: "not json", document: `{`},
		{name: "missing assignment id", document: `{"tasks": []}`},
		{name: "unknown task type", document: `{"assignment_id": "a", "tasks": [{"type": "essay", "task_uid": "t"}]}`},
		{name: "task without identity", document: `{"assignment_id": "a", "tasks": [
			{"type": "pair", "doc1": {"doc_id": "x"}, "doc2": {"doc_id": "y"}}]}`},
		{name: "duplicate identity", document: `{"assignment_id": "a", "tasks": [
			{"type": "pair", "task_uid": "t", "doc1": {"doc_id": "x"}, "doc2": {"doc_id": "y"}},
			{"type": "pair", "task_uid": "t", "doc1": {"doc_id": "x"}, "doc2": {"doc_id": "y"}}]}`},
		{name: "cluster without items", document: `{"assignment_id": "a", "tasks": [
			{"type": "cluster", "task_uid": "t", "cluster_id": "0", "items": []}]}`},
		{name: "duplicate doc id", document: `{"assignment_id": "a", "tasks": [
			{"type": "cluster", "task_uid": "t", "cluster_id": "0", "items": [{"doc_id": "x"}, {"doc_id": "x"}]}]}`},
		{name: "pair missing document", document: `{"assignment_id": "a", "tasks": [
			{"type": "pair", "task_uid": "t", "doc1": {"doc_id": "x"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assignment.Parse([]byte(tt.document))
			require.ErrorIs(t, err, assignment.ErrInvalid)
		})
	}
}

func TestFSLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "E1.json"), []byte(validDocument), 0o600))
	loader := assignment.NewFSLoader(dir)

	a, err := loader.Load(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "E1_v2", a.ID)

	_, err = loader.Load(context.Background(), "E2")
	var loadErr *assignment.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Error(), "E2.json")

	_, err = loader.Load(context.Background(), "../E1")
	require.ErrorIs(t, err, assignment.ErrInvalidExpert)
}

func TestHTTPLoader(t *testing.T) {
	var gotQuery, gotCacheControl string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("v")
		gotCacheControl = r.Header.Get("Cache-Control")
		if r.URL.Path != "/assignments/E1.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(validDocument))
	}))
	t.Cleanup(srv.Close)
	loader := assignment.NewHTTPLoader(srv.URL+"/assignments/", srv.Client(), testhelpers.NewLogger(os.Stdout))

	a, err := loader.Load(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "E1_v2", a.ID)
	assert.NotEmpty(t, gotQuery, "request carries a cache-busting parameter")
	assert.Equal(t, "no-cache", gotCacheControl)

	_, err = loader.Load(context.Background(), "E9")
	var loadErr *assignment.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, srv.URL+"/assignments/E9.json", loadErr.Resource)
}
