package repositories

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/sqlite"
	"github.com/myrjola/clustereval/internal/submission"
)

// ErrInvalidPayload is returned when a posted payload is not a JSON object.
var ErrInvalidPayload = errors.NewSentinel("payload is not a JSON object")

// Submission is a form post received by the built-in forms backend.
type Submission struct {
	ID              int64  `db:"id"`
	FormName        string `db:"form_name"`
	ExpertID        string `db:"expert_id"`
	AssignmentID    string `db:"assignment_id"`
	ClientSessionID string `db:"client_session_id"`
	SubmissionUUID  string `db:"submission_uuid"`
	Payload         string `db:"payload"`
	Received        string `db:"received"`
}

// SubmissionRepository stores received submissions, deduplicated on (client_session_id, submission_uuid).
type SubmissionRepository struct {
	db     *sqlite.Database
	reader *sqlx.DB
	logger *slog.Logger
}

func NewSubmissionRepository(db *sqlite.Database, logger *slog.Logger) *SubmissionRepository {
	return &SubmissionRepository{
		db:     db,
		reader: sqlx.NewDb(db.ReadOnly, "sqlite3"),
		logger: logger.With("source", "SubmissionRepository"),
	}
}

// Store saves envelope. stored is false when the same submission was received before.
func (r *SubmissionRepository) Store(ctx context.Context, envelope submission.Envelope) (bool, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(envelope.Payload, &probe); err != nil || probe == nil {
		return false, errors.Wrap(ErrInvalidPayload, "decode payload",
			slog.String("submission_uuid", envelope.SubmissionUUID))
	}
	stmt := `INSERT INTO submissions
    (form_name, expert_id, assignment_id, client_session_id, submission_uuid, payload)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (client_session_id, submission_uuid) DO NOTHING`
	result, err := r.db.ReadWrite.ExecContext(ctx, stmt,
		envelope.FormName,
		envelope.ExpertID,
		envelope.AssignmentID,
		envelope.ClientSessionID,
		envelope.SubmissionUUID,
		string(envelope.Payload),
	)
	if err != nil {
		return false, errors.Wrap(err, "insert submission")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "duplicate submission ignored",
			slog.String("client_session_id", envelope.ClientSessionID),
			slog.String("submission_uuid", envelope.SubmissionUUID))
	}
	return affected > 0, nil
}

// Send makes the repository the transport of the submission pipeline when no external backend is configured.
func (r *SubmissionRepository) Send(ctx context.Context, envelope submission.Envelope) error {
	_, err := r.Store(ctx, envelope)
	return err
}

// List returns every received submission in arrival order.
func (r *SubmissionRepository) List(ctx context.Context) ([]Submission, error) {
	var submissions []Submission
	stmt := `SELECT id, form_name, expert_id, assignment_id, client_session_id, submission_uuid, payload, received
FROM submissions
ORDER BY id`
	if err := r.reader.SelectContext(ctx, &submissions, stmt); err != nil {
		return nil, errors.Wrap(err, "select submissions")
	}
	return submissions, nil
}

// Count returns the number of stored submissions.
func (r *SubmissionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.reader.GetContext(ctx, &count, `SELECT COUNT(*) FROM submissions`); err != nil {
		return 0, errors.Wrap(err, "count submissions")
	}
	return count, nil
}
