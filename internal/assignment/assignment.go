// Package assignment models the per-expert survey document and loads it.
package assignment

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/myrjola/clustereval/internal/errors"
)

// Task kinds as they appear in the type discriminator.
const (
	KindCluster = "cluster"
	KindPair    = "pair"
)

// ErrInvalid is returned when an assignment document is structurally broken.
var ErrInvalid = errors.NewSentinel("invalid assignment")

// Assignment is an ordered list of tasks for one expert. It is immutable once loaded.
type Assignment struct {
	ID                  string
	ExpertID            string
	PrimaryClusteringID string
	CreatedAt           string
	Tasks               []Task
}

// Task is either a *ClusterTask or a *PairTask.
type Task interface {
	// Key is the stable task identity used for answers and timing.
	Key() string
	Common() Header
	isTask()
}

// Header holds the fields shared by every task kind.
type Header struct {
	TaskUID        string `json:"task_uid,omitempty"`
	TaskID         string `json:"task_id,omitempty"`
	Type           string `json:"type"`
	ClusteringID   string `json:"clustering_id"`
	ExpertID       string `json:"expert_id,omitempty"`
	AssignmentRole string `json:"assignment_role,omitempty"`
	IsAnchor       bool   `json:"is_anchor,omitempty"`
}

// Key returns task_uid, falling back to task_id.
func (h Header) Key() string {
	if h.TaskUID != "" {
		return h.TaskUID
	}
	return h.TaskID
}

func (h Header) Common() Header {
	return h
}

// Item is a document shown in a cluster task.
type Item struct {
	DocID   string `json:"doc_id"`
	Title   string `json:"title,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

// DocRef is a document shown in a pair task.
type DocRef struct {
	DocID string `json:"doc_id"`
	Title string `json:"title,omitempty"`
}

// ClusterTask asks the expert to rate the coherence of every item of a cluster batch.
type ClusterTask struct {
	Header
	ClusterID  string `json:"cluster_id"`
	BatchIndex int    `json:"batch_index"`
	Items      []Item `json:"items"`
}

func (*ClusterTask) isTask() {}

// PairTask asks the expert to rate the relatedness of two documents.
type PairTask struct {
	Header
	PairID      string `json:"pair_id,omitempty"`
	Doc1        DocRef `json:"doc1"`
	Doc2        DocRef `json:"doc2"`
	SameCluster *bool  `json:"same_cluster,omitempty"`
}

func (*PairTask) isTask() {}

type document struct {
	AssignmentID        string            `json:"assignment_id"`
	ExpertID            string            `json:"expert_id,omitempty"`
	PrimaryClusteringID string            `json:"primary_clustering_id,omitempty"`
	CreatedAt           string            `json:"created_at,omitempty"`
	Tasks               []json.RawMessage `json:"tasks"`
}

// Parse decodes an assignment document and checks its structure.
func Parse(data []byte) (*Assignment, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(ErrInvalid, fmt.Sprintf("decode document: %v", err))
	}
	a := &Assignment{
		ID:                  doc.AssignmentID,
		ExpertID:            doc.ExpertID,
		PrimaryClusteringID: doc.PrimaryClusteringID,
		CreatedAt:           doc.CreatedAt,
		Tasks:               make([]Task, 0, len(doc.Tasks)),
	}
	for i, raw := range doc.Tasks {
		task, err := decodeTask(raw)
		if err != nil {
			return nil, errors.Wrap(err, "decode task", slog.Int("index", i))
		}
		a.Tasks = append(a.Tasks, task)
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return a, nil
}

func decodeTask(raw json.RawMessage) (Task, error) {
	var header Header
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, errors.Wrap(ErrInvalid, fmt.Sprintf("decode task header: %v", err))
	}
	var task Task
	switch header.Type {
	case KindCluster:
		task = &ClusterTask{} //nolint:exhaustruct // decoded below
	case KindPair:
		task = &PairTask{} //nolint:exhaustruct // decoded below
	default:
		return nil, errors.Wrap(ErrInvalid, "unknown task type", slog.String("type", header.Type))
	}
	if err := json.Unmarshal(raw, task); err != nil {
		return nil, errors.Wrap(ErrInvalid, fmt.Sprintf("decode %s task: %v", header.Type, err))
	}
	return task, nil
}

// MarshalJSON encodes the assignment in the same shape Parse accepts.
func (a *Assignment) MarshalJSON() ([]byte, error) {
	out := struct {
		AssignmentID        string `json:"assignment_id"`
		ExpertID            string `json:"expert_id,omitempty"`
		PrimaryClusteringID string `json:"primary_clustering_id,omitempty"`
		CreatedAt           string `json:"created_at,omitempty"`
		Tasks               []Task `json:"tasks"`
	}{a.ID, a.ExpertID, a.PrimaryClusteringID, a.CreatedAt, a.Tasks}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "marshal assignment")
	}
	return b, nil
}

func (a *Assignment) check() error {
	if a.ID == "" {
		return errors.Wrap(ErrInvalid, "missing assignment_id")
	}
	seen := make(map[string]bool, len(a.Tasks))
	for i, task := range a.Tasks {
		key := task.Key()
		if key == "" {
			return errors.Wrap(ErrInvalid, "task without task_uid or task_id", slog.Int("index", i))
		}
		if seen[key] {
			return errors.Wrap(ErrInvalid, "duplicate task identity", slog.String("task", key))
		}
		seen[key] = true

		switch t := task.(type) {
		case *ClusterTask:
			if len(t.Items) == 0 {
				return errors.Wrap(ErrInvalid, "cluster task without items", slog.String("task", key))
			}
			docs := make(map[string]bool, len(t.Items))
			for _, item := range t.Items {
				if item.DocID == "" || docs[item.DocID] {
					return errors.Wrap(ErrInvalid, "missing or duplicate doc_id",
						slog.String("task", key), slog.String("doc_id", item.DocID))
				}
				docs[item.DocID] = true
			}
		case *PairTask:
			if t.Doc1.DocID == "" || t.Doc2.DocID == "" {
				return errors.Wrap(ErrInvalid, "pair task missing a document", slog.String("task", key))
			}
		}
	}
	return nil
}

// Find returns the task with the given identity.
func (a *Assignment) Find(key string) (Task, int, bool) {
	for i, task := range a.Tasks {
		if task.Key() == key {
			return task, i, true
		}
	}
	return nil, -1, false
}
