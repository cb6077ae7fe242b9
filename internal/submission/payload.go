package submission

import (
	"time"

	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/survey"
)

// Meta is free-form client metadata reported by the browser.
type Meta struct {
	UserAgent string `json:"user_agent"`
	Timezone  string `json:"timezone"`
	Language  string `json:"language,omitempty"`
}

// Payload is the single structured document sent to the forms backend.
type Payload struct {
	ExpertID            string           `json:"expert_id"`
	AssignmentID        string           `json:"assignment_id"`
	PrimaryClusteringID string           `json:"primary_clustering_id,omitempty"`
	AppVersion          string           `json:"app_version"`
	SubmissionUUID      string           `json:"submission_uuid"`
	ClientSessionID     string           `json:"client_session_id"`
	SubmittedAt         *time.Time       `json:"submitted_at"`
	StartedAt           *time.Time       `json:"started_at"`
	FinishedAt          *time.Time       `json:"finished_at"`
	Meta                Meta             `json:"meta"`
	TaskTimeMs          map[string]int64 `json:"task_time_ms"`
	Tasks               []TaskDigest     `json:"tasks"`
	Answers             survey.Answers   `json:"answers"`
}

// DigestItem leaves out the excerpt to bound the payload size.
type DigestItem struct {
	DocID string `json:"doc_id"`
	Title string `json:"title,omitempty"`
}

// TaskDigest is the redacted description of a task.
type TaskDigest struct {
	TaskUID        string             `json:"task_uid,omitempty"`
	TaskID         string             `json:"task_id,omitempty"`
	Type           string             `json:"type"`
	ClusteringID   string             `json:"clustering_id,omitempty"`
	AssignmentRole string             `json:"assignment_role,omitempty"`
	IsAnchor       bool               `json:"is_anchor,omitempty"`
	ClusterID      string             `json:"cluster_id,omitempty"`
	BatchIndex     *int               `json:"batch_index,omitempty"`
	Items          []DigestItem       `json:"items,omitempty"`
	PairID         string             `json:"pair_id,omitempty"`
	Doc1           *assignment.DocRef `json:"doc1,omitempty"`
	Doc2           *assignment.DocRef `json:"doc2,omitempty"`
	SameCluster    *bool              `json:"same_cluster,omitempty"`
}

// Key is the identity answers are stored under.
func (d TaskDigest) Key() string {
	if d.TaskUID != "" {
		return d.TaskUID
	}
	return d.TaskID
}

// Digest describes every task of the assignment without bulk content.
func Digest(a *assignment.Assignment) []TaskDigest {
	digest := make([]TaskDigest, 0, len(a.Tasks))
	for _, task := range a.Tasks {
		h := task.Common()
		d := TaskDigest{
			TaskUID:        h.TaskUID,
			TaskID:         h.TaskID,
			Type:           h.Type,
			ClusteringID:   h.ClusteringID,
			AssignmentRole: h.AssignmentRole,
			IsAnchor:       h.IsAnchor,
			ClusterID:      "",
			BatchIndex:     nil,
			Items:          nil,
			PairID:         "",
			Doc1:           nil,
			Doc2:           nil,
			SameCluster:    nil,
		}
		switch t := task.(type) {
		case *assignment.ClusterTask:
			batch := t.BatchIndex
			d.ClusterID = t.ClusterID
			d.BatchIndex = &batch
			d.Items = make([]DigestItem, 0, len(t.Items))
			for _, item := range t.Items {
				d.Items = append(d.Items, DigestItem{DocID: item.DocID, Title: item.Title})
			}
		case *assignment.PairTask:
			doc1, doc2 := t.Doc1, t.Doc2
			d.PairID = t.PairID
			d.Doc1 = &doc1
			d.Doc2 = &doc2
			if t.SameCluster != nil {
				same := *t.SameCluster
				d.SameCluster = &same
			}
		}
		digest = append(digest, d)
	}
	return digest
}
