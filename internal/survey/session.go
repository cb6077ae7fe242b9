package survey

import (
	"time"
)

// Session is the whole survey state of one browser profile for one (expert, assignment) pair.
type Session struct {
	Started            bool             `json:"started"`
	TaskIndex          int              `json:"taskIndex"`
	Answers            Answers          `json:"answers"`
	StartedAt          *time.Time       `json:"startedAt"`
	FinishedAt         *time.Time       `json:"finishedAt"`
	ClientSessionID    string           `json:"clientSessionId"`
	Submitted          bool             `json:"submitted"`
	LastSubmissionUUID string           `json:"lastSubmissionUuid"`
	TaskTimeMs         map[string]int64 `json:"taskTimeMs"`
	// Timing cursor: the task that became current at CursorStartMs (Unix milliseconds).
	CursorTaskKey string `json:"cursorTaskKey"`
	CursorStartMs int64  `json:"cursorStartMs"`
}

// NewSession returns the defaults of a first visit.
func NewSession(clientSessionID string) Session {
	return Session{
		Started:            false,
		TaskIndex:          0,
		Answers:            Answers{},
		StartedAt:          nil,
		FinishedAt:         nil,
		ClientSessionID:    clientSessionID,
		Submitted:          false,
		LastSubmissionUUID: "",
		TaskTimeMs:         map[string]int64{},
		CursorTaskKey:      "",
		CursorStartMs:      0,
	}
}

// Clone returns a deep copy so that transitions never mutate their input.
func (s Session) Clone() Session {
	answers := make(Answers, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v.clone()
	}
	s.Answers = answers

	timing := make(map[string]int64, len(s.TaskTimeMs))
	for k, v := range s.TaskTimeMs {
		timing[k] = v
	}
	s.TaskTimeMs = timing

	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		s.FinishedAt = &t
	}
	return s
}

// Answer returns the stored answer of a task or nil.
func (s Session) Answer(taskKey string) Answer {
	return s.Answers[taskKey]
}
