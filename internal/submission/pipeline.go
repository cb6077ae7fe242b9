// Package submission sends the final survey payload to the forms backend exactly once.
package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/survey"
)

// ErrTransport means the payload did not reach the forms backend. Submitting again is safe.
var ErrTransport = errors.NewSentinel("submission not delivered")

// IncompleteError blocks submission until every task validates.
type IncompleteError struct {
	Failures []survey.Failure
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%d incomplete tasks", len(e.Failures))
}

// Request is one press of the submit button.
type Request struct {
	Assignment *assignment.Assignment
	ExpertID   string
	Session    survey.Session
	Meta       Meta
	// Save persists the session. It is called before and after the payload is sent.
	Save func(ctx context.Context, session survey.Session) error
}

type Result struct {
	// Session is the latest persisted session.
	Session survey.Session
	// AlreadySubmitted is set when nothing was sent because the session was already submitted.
	AlreadySubmitted bool
	Payload          *Payload
}

type Config struct {
	FormName   string
	AppVersion string
	// Timeout bounds the transport so that a stalled backend never hangs the page.
	Timeout time.Duration
}

type Pipeline struct {
	transport Transport
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewPipeline(transport Transport, config Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{transport: transport, config: config, logger: logger, now: time.Now}
}

// Submit validates every task, persists the finish timestamp, sends the payload and marks the session submitted.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Result, error) {
	if req.Session.Submitted {
		return Result{Session: req.Session, AlreadySubmitted: true, Payload: nil}, nil
	}
	if failures := survey.ValidateAll(req.Assignment, req.Session.Answers); len(failures) > 0 {
		return Result{Session: req.Session, AlreadySubmitted: false, Payload: nil},
			&IncompleteError{Failures: failures}
	}

	now := p.now().UTC()
	session := req.Session.Clone()
	session.LastSubmissionUUID = uuid.NewString()
	session.FinishedAt = &now
	if err := req.Save(ctx, session); err != nil {
		return Result{Session: req.Session, AlreadySubmitted: false, Payload: nil},
			errors.Wrap(err, "persist finish timestamp")
	}

	payload := p.payload(req, session, now)
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{Session: session, AlreadySubmitted: false, Payload: nil}, errors.Wrap(err, "marshal payload")
	}
	envelope := Envelope{
		FormName:        p.config.FormName,
		ExpertID:        req.ExpertID,
		AssignmentID:    req.Assignment.ID,
		SubmissionUUID:  session.LastSubmissionUUID,
		ClientSessionID: session.ClientSessionID,
		Payload:         data,
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	start := p.now()
	if err = p.transport.Send(sendCtx, envelope); err != nil {
		return Result{Session: session, AlreadySubmitted: false, Payload: payload},
			errors.Join(ErrTransport, errors.Wrap(err, "send payload",
				slog.String("submission_uuid", envelope.SubmissionUUID)))
	}
	p.logger.LogAttrs(ctx, slog.LevelInfo, "submission delivered",
		slog.String("submission_uuid", envelope.SubmissionUUID),
		slog.Duration("duration", p.now().Sub(start)))

	session.Submitted = true
	if err = req.Save(ctx, session); err != nil {
		return Result{Session: session, AlreadySubmitted: false, Payload: payload},
			errors.Wrap(err, "persist submitted flag")
	}
	return Result{Session: session, AlreadySubmitted: false, Payload: payload}, nil
}

func (p *Pipeline) payload(req Request, session survey.Session, now time.Time) *Payload {
	return &Payload{
		ExpertID:            req.ExpertID,
		AssignmentID:        req.Assignment.ID,
		PrimaryClusteringID: req.Assignment.PrimaryClusteringID,
		AppVersion:          p.config.AppVersion,
		SubmissionUUID:      session.LastSubmissionUUID,
		ClientSessionID:     session.ClientSessionID,
		SubmittedAt:         &now,
		StartedAt:           session.StartedAt,
		FinishedAt:          session.FinishedAt,
		Meta:                req.Meta,
		TaskTimeMs:          session.TaskTimeMs,
		Tasks:               Digest(req.Assignment),
		Answers:             session.Answers,
	}
}
