package submission

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/myrjola/clustereval/internal/errors"
)

// Form field names understood by the forms backend.
const (
	FieldFormName        = "form-name"
	FieldExpertID        = "expert_id"
	FieldAssignmentID    = "assignment_id"
	FieldSubmissionUUID  = "submission_uuid"
	FieldClientSessionID = "client_session_id"
	FieldPayload         = "payload"
)

// ErrEnvelope is returned for form posts missing a required field.
var ErrEnvelope = errors.NewSentinel("incomplete form submission")

// Envelope is the encoded form post carrying a payload.
type Envelope struct {
	FormName        string
	ExpertID        string
	AssignmentID    string
	SubmissionUUID  string
	ClientSessionID string
	Payload         []byte
}

func (e Envelope) Values() url.Values {
	return url.Values{
		FieldFormName:        {e.FormName},
		FieldExpertID:        {e.ExpertID},
		FieldAssignmentID:    {e.AssignmentID},
		FieldSubmissionUUID:  {e.SubmissionUUID},
		FieldClientSessionID: {e.ClientSessionID},
		FieldPayload:         {string(e.Payload)},
	}
}

// ParseEnvelope reads a form post. The dedupe key and the payload are required.
func ParseEnvelope(form url.Values) (Envelope, error) {
	e := Envelope{
		FormName:        form.Get(FieldFormName),
		ExpertID:        form.Get(FieldExpertID),
		AssignmentID:    form.Get(FieldAssignmentID),
		SubmissionUUID:  form.Get(FieldSubmissionUUID),
		ClientSessionID: form.Get(FieldClientSessionID),
		Payload:         []byte(form.Get(FieldPayload)),
	}
	for field, value := range map[string]string{
		FieldSubmissionUUID:  e.SubmissionUUID,
		FieldClientSessionID: e.ClientSessionID,
		FieldPayload:         string(e.Payload),
	} {
		if strings.TrimSpace(value) == "" {
			return e, errors.Wrap(ErrEnvelope, "missing field", slog.String("field", field))
		}
	}
	return e, nil
}

// Transport delivers an envelope to the forms backend.
type Transport interface {
	Send(ctx context.Context, envelope Envelope) error
}

// FormsClient posts envelopes as application/x-www-form-urlencoded bodies. Any status below 400 is success.
type FormsClient struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewFormsClient returns a client posting to formsURL. A nil client means [http.DefaultClient].
func NewFormsClient(formsURL string, client *http.Client, logger *slog.Logger) *FormsClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &FormsClient{url: formsURL, client: client, logger: logger}
}

func (c *FormsClient) Send(ctx context.Context, envelope Envelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(envelope.Values().Encode()))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post form", slog.String("url", c.url))
	}
	if err = resp.Body.Close(); err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "failed to close response body", errors.SlogError(err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.New("forms backend rejected submission",
			slog.String("url", c.url), slog.Int("status", resp.StatusCode))
	}
	return nil
}
