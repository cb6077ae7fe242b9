package export

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/myrjola/clustereval/internal/errors"
)

// Output file names.
const (
	SubmissionsFile = "submissions.csv"
	ItemsFile       = "item_ratings.csv"
	ClustersFile    = "cluster_ratings.csv"
	PairsFile       = "pair_ratings.csv"
)

var payloadColumns = []string{"payload", "Payload", "PAYLOAD"}

var createdColumns = []string{"Created", "created_at", "created", "Timestamp", "timestamp", "Date", "date"}

// ReadCSV reads a forms backend export with a payload column.
func ReadCSV(r io.Reader) ([]Source, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	column := func(names []string) int {
		for _, name := range names {
			for i, h := range header {
				if h == name {
					return i
				}
			}
		}
		return -1
	}
	payloadColumn, createdColumn := column(payloadColumns), column(createdColumns)
	if payloadColumn < 0 {
		return nil, errors.New("no payload column", slog.Any("header", header))
	}

	var sources []Source
	for {
		record, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			return sources, nil
		}
		if readErr != nil {
			return nil, errors.Wrap(readErr, "read row", slog.Int("row", len(sources)+1))
		}
		source := Source{Payload: field(record, payloadColumn), Created: field(record, createdColumn)}
		sources = append(sources, source)
	}
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

// WriteDir writes the four tables into dir. Tables without rows are not written.
func (r Result) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd // rwxr-xr-x
		return errors.Wrap(err, "create output directory", slog.String("dir", dir))
	}
	tables := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{SubmissionsFile, submissionHeader, r.submissionRecords()},
		{ItemsFile, itemHeader, r.itemRecords()},
		{ClustersFile, clusterHeader, r.clusterRecords()},
		{PairsFile, pairHeader, r.pairRecords()},
	}
	for _, table := range tables {
		if len(table.rows) == 0 {
			continue
		}
		if err := writeCSV(filepath.Join(dir, table.name), table.header, table.rows); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create file", slog.String("path", path))
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "close file", slog.String("path", path))
		}
	}()
	w := csv.NewWriter(f)
	if err = w.Write(header); err != nil {
		return errors.Wrap(err, "write header", slog.String("path", path))
	}
	if err = w.WriteAll(rows); err != nil {
		return errors.Wrap(err, "write rows", slog.String("path", path))
	}
	return nil
}

var submissionHeader = []string{
	"kept", "reason", "expert_id", "assignment_id", "client_session_id", "submission_uuid", "app_version",
	"primary_clustering_id", "submitted_at", "started_at", "finished_at", "ts_used",
}

var ratingColumns = []string{
	"expert_id", "assignment_id", "submission_uuid", "client_session_id", "submitted_at",
	"task_key", "task_uid", "task_id", "clustering_id", "assignment_role", "is_anchor", "time_ms",
}

var itemHeader = append(cloneColumns(ratingColumns),
	"cluster_id", "batch_index", "doc_id", "title", "coherence", "misplaced", "note")

var clusterHeader = append(cloneColumns(ratingColumns),
	"cluster_id", "batch_index", "n_items", "n_rated", "mean_coherence", "n_misplaced", "cluster_label",
	"cluster_note")

var pairHeader = append(cloneColumns(ratingColumns),
	"pair_id", "doc1_id", "doc2_id", "same_cluster", "relatedness", "common_theme", "note")

func cloneColumns(s []string) []string {
	return append([]string(nil), s...)
}

func (h ratingHeader) record() []string {
	return []string{
		h.ExpertID, h.AssignmentID, h.SubmissionUUID, h.ClientSessionID, h.SubmittedAt,
		h.TaskKey, h.TaskUID, h.TaskID, h.ClusteringID, h.AssignmentRole, flag(h.IsAnchor),
		strconv.FormatInt(h.TimeMs, 10),
	}
}

func (r Result) submissionRecords() [][]string {
	records := make([][]string, 0, len(r.Submissions))
	for _, s := range r.Submissions {
		records = append(records, []string{
			flag(s.Kept), s.Reason, s.ExpertID, s.AssignmentID, s.ClientSessionID, s.SubmissionUUID, s.AppVersion,
			s.PrimaryClusteringID, s.SubmittedAt, s.StartedAt, s.FinishedAt, s.TimestampUsed,
		})
	}
	return records
}

func (r Result) itemRecords() [][]string {
	records := make([][]string, 0, len(r.Items))
	for _, row := range r.Items {
		records = append(records, append(row.record(),
			row.ClusterID, strconv.Itoa(row.BatchIndex), row.DocID, row.Title, rating(row.Coherence),
			flag(row.Misplaced), row.Note))
	}
	return records
}

func (r Result) clusterRecords() [][]string {
	records := make([][]string, 0, len(r.Clusters))
	for _, row := range r.Clusters {
		mean := ""
		if row.Rated > 0 {
			mean = strconv.FormatFloat(row.MeanCoherence, 'f', 3, 64) //nolint:mnd // three decimals
		}
		records = append(records, append(row.record(),
			row.ClusterID, strconv.Itoa(row.BatchIndex), strconv.Itoa(row.Items), strconv.Itoa(row.Rated), mean,
			strconv.Itoa(row.Misplaced), row.ClusterLabel, row.ClusterNote))
	}
	return records
}

func (r Result) pairRecords() [][]string {
	records := make([][]string, 0, len(r.Pairs))
	for _, row := range r.Pairs {
		records = append(records, append(row.record(),
			row.PairID, row.Doc1ID, row.Doc2ID, optionalFlag(row.SameCluster), rating(row.Relatedness),
			row.CommonTheme, row.Note))
	}
	return records
}
