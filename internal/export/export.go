// Package export deduplicates received submissions and expands them into tidy rating tables.
package export

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/myrjola/clustereval/internal/submission"
)

// Placeholders of empty dedupe key parts.
const (
	unknownExpert     = "UNKNOWN_EXPERT"
	unknownAssignment = "UNKNOWN_ASSIGNMENT"
	noSession         = "NO_SESSION"
)

// Source is one raw received submission.
type Source struct {
	Payload string
	// Created is the arrival time reported by the forms backend, used when the payload has no timestamps.
	Created string
}

// Record is a decoded submission.
type Record struct {
	Payload   submission.Payload
	Timestamp time.Time
}

func (r Record) dedupeKey() [3]string {
	return [3]string{
		orDefault(r.Payload.ExpertID, unknownExpert),
		orDefault(r.Payload.AssignmentID, unknownAssignment),
		orDefault(r.Payload.ClientSessionID, noSession),
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// Decode parses sources. Empty payloads are skipped and undecodable ones are counted in parseErrors.
func Decode(sources []Source, now time.Time) ([]Record, int) {
	var (
		records     []Record
		parseErrors int
	)
	for _, source := range sources {
		if strings.TrimSpace(source.Payload) == "" {
			continue
		}
		var payload submission.Payload
		if err := json.Unmarshal([]byte(source.Payload), &payload); err != nil {
			parseErrors++
			continue
		}
		payload.ExpertID = strings.TrimSpace(payload.ExpertID)
		payload.AssignmentID = strings.TrimSpace(payload.AssignmentID)
		payload.AppVersion = strings.TrimSpace(payload.AppVersion)
		payload.SubmissionUUID = strings.TrimSpace(payload.SubmissionUUID)
		payload.ClientSessionID = strings.TrimSpace(payload.ClientSessionID)
		records = append(records, Record{Payload: payload, Timestamp: timestamp(payload, source.Created, now)})
	}
	return records, parseErrors
}

// timestamp prefers submitted_at, then finished_at, then the arrival time, then now.
func timestamp(p submission.Payload, created string, now time.Time) time.Time {
	switch {
	case p.SubmittedAt != nil:
		return *p.SubmittedAt
	case p.FinishedAt != nil:
		return *p.FinishedAt
	}
	if t, ok := parseTime(created); ok {
		return t
	}
	return now
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Result holds the output tables.
type Result struct {
	Submissions []SubmissionRow
	Items       []ItemRow
	Clusters    []ClusterRow
	Pairs       []PairRow
}

// Build orders records by timestamp and keeps the latest per (expert, assignment, client session) and per
// submission UUID. Only kept records are expanded into ratings unless keepDuplicates is set.
func Build(records []Record, keepDuplicates bool) Result {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	latestByKey := map[[3]string]int{}
	latestByUUID := map[string]int{}
	for i, record := range sorted {
		latestByKey[record.dedupeKey()] = i
		if record.Payload.SubmissionUUID != "" {
			latestByUUID[record.Payload.SubmissionUUID] = i
		}
	}

	var result Result
	for i, record := range sorted {
		kept := latestByKey[record.dedupeKey()] == i
		if u := record.Payload.SubmissionUUID; u != "" {
			kept = kept && latestByUUID[u] == i
		}
		result.Submissions = append(result.Submissions, submissionRow(record, kept))
		if kept || keepDuplicates {
			expand(&result, record)
		}
	}
	return result
}
