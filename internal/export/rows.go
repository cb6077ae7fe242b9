package export

import (
	"strconv"
	"time"

	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/submission"
	"github.com/myrjola/clustereval/internal/survey"
)

const (
	reasonKept      = "latest_for_key_and_uuid"
	reasonDuplicate = "duplicate_or_older"
)

type SubmissionRow struct {
	Kept                bool
	Reason              string
	ExpertID            string
	AssignmentID        string
	ClientSessionID     string
	SubmissionUUID      string
	AppVersion          string
	PrimaryClusteringID string
	SubmittedAt         string
	StartedAt           string
	FinishedAt          string
	TimestampUsed       string
}

// header of every rating row.
type ratingHeader struct {
	ExpertID        string
	AssignmentID    string
	SubmissionUUID  string
	ClientSessionID string
	SubmittedAt     string
	TaskKey         string
	TaskUID         string
	TaskID          string
	ClusteringID    string
	AssignmentRole  string
	IsAnchor        bool
	TimeMs          int64
}

type ItemRow struct {
	ratingHeader
	ClusterID  string
	BatchIndex int
	DocID      string
	Title      string
	Coherence  survey.Rating
	Misplaced  bool
	Note       string
}

type ClusterRow struct {
	ratingHeader
	ClusterID     string
	BatchIndex    int
	Items         int
	Rated         int
	MeanCoherence float64
	Misplaced     int
	ClusterLabel  string
	ClusterNote   string
}

type PairRow struct {
	ratingHeader
	PairID      string
	Doc1ID      string
	Doc2ID      string
	SameCluster *bool
	Relatedness survey.Rating
	CommonTheme string
	Note        string
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func submissionRow(record Record, kept bool) SubmissionRow {
	p := record.Payload
	reason := reasonDuplicate
	if kept {
		reason = reasonKept
	}
	return SubmissionRow{
		Kept:                kept,
		Reason:              reason,
		ExpertID:            p.ExpertID,
		AssignmentID:        p.AssignmentID,
		ClientSessionID:     p.ClientSessionID,
		SubmissionUUID:      p.SubmissionUUID,
		AppVersion:          p.AppVersion,
		PrimaryClusteringID: p.PrimaryClusteringID,
		SubmittedAt:         formatTime(p.SubmittedAt),
		StartedAt:           formatTime(p.StartedAt),
		FinishedAt:          formatTime(p.FinishedAt),
		TimestampUsed:       record.Timestamp.Format(time.RFC3339Nano),
	}
}

// lookup finds the answer and timing of a task by task_uid first and task_id second.
func lookup(p submission.Payload, task submission.TaskDigest) (survey.Answer, string, int64) {
	for _, key := range []string{task.TaskUID, task.TaskID} {
		if key == "" {
			continue
		}
		if answer, ok := p.Answers[key]; ok {
			return answer, key, p.TaskTimeMs[key]
		}
	}
	return nil, task.Key(), p.TaskTimeMs[task.Key()]
}

func expand(result *Result, record Record) {
	p := record.Payload
	submittedAt := formatTime(p.SubmittedAt)
	if submittedAt == "" {
		submittedAt = record.Timestamp.Format(time.RFC3339Nano)
	}
	for _, task := range p.Tasks {
		answer, key, timeMs := lookup(p, task)
		header := ratingHeader{
			ExpertID:        p.ExpertID,
			AssignmentID:    p.AssignmentID,
			SubmissionUUID:  p.SubmissionUUID,
			ClientSessionID: p.ClientSessionID,
			SubmittedAt:     submittedAt,
			TaskKey:         key,
			TaskUID:         task.TaskUID,
			TaskID:          task.TaskID,
			ClusteringID:    task.ClusteringID,
			AssignmentRole:  task.AssignmentRole,
			IsAnchor:        task.IsAnchor,
			TimeMs:          timeMs,
		}
		switch task.Type {
		case assignment.KindCluster:
			a, _ := answer.(survey.ClusterAnswer)
			expandCluster(result, header, task, a)
		case assignment.KindPair:
			a, _ := answer.(survey.PairAnswer)
			expandPair(result, header, task, a)
		}
	}
}

func expandCluster(result *Result, header ratingHeader, task submission.TaskDigest, a survey.ClusterAnswer) {
	batch := 0
	if task.BatchIndex != nil {
		batch = *task.BatchIndex
	}
	row := ClusterRow{
		ratingHeader:  header,
		ClusterID:     task.ClusterID,
		BatchIndex:    batch,
		Items:         len(task.Items),
		Rated:         0,
		MeanCoherence: 0,
		Misplaced:     0,
		ClusterLabel:  a.ClusterLabel,
		ClusterNote:   a.ClusterNote,
	}
	sum := 0
	for _, item := range task.Items {
		itemAnswer := a.Items[item.DocID]
		result.Items = append(result.Items, ItemRow{
			ratingHeader: header,
			ClusterID:    task.ClusterID,
			BatchIndex:   batch,
			DocID:        item.DocID,
			Title:        item.Title,
			Coherence:    itemAnswer.Coherence,
			Misplaced:    itemAnswer.Misplaced,
			Note:         itemAnswer.Note,
		})
		if itemAnswer.Coherence.Set() {
			row.Rated++
			sum += int(itemAnswer.Coherence)
		}
		if itemAnswer.Misplaced {
			row.Misplaced++
		}
	}
	if row.Rated > 0 {
		row.MeanCoherence = float64(sum) / float64(row.Rated)
	}
	result.Clusters = append(result.Clusters, row)
}

func expandPair(result *Result, header ratingHeader, task submission.TaskDigest, a survey.PairAnswer) {
	row := PairRow{
		ratingHeader: header,
		PairID:       task.PairID,
		Doc1ID:       "",
		Doc2ID:       "",
		SameCluster:  task.SameCluster,
		Relatedness:  a.Relatedness,
		CommonTheme:  a.CommonTheme,
		Note:         a.Note,
	}
	if task.Doc1 != nil {
		row.Doc1ID = task.Doc1.DocID
	}
	if task.Doc2 != nil {
		row.Doc2ID = task.Doc2.DocID
	}
	result.Pairs = append(result.Pairs, row)
}

func rating(r survey.Rating) string {
	if !r.Set() {
		return ""
	}
	return strconv.Itoa(int(r))
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func optionalFlag(b *bool) string {
	if b == nil {
		return ""
	}
	return flag(*b)
}
