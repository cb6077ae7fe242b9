// Package controller owns the survey of every browser profile: it loads the assignment and session for a request,
// applies one event or submission and persists the result.
package controller

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/logging"
	"github.com/myrjola/clustereval/internal/metrics"
	"github.com/myrjola/clustereval/internal/render"
	"github.com/myrjola/clustereval/internal/store"
	"github.com/myrjola/clustereval/internal/submission"
	"github.com/myrjola/clustereval/internal/survey"
)

// Profile is one browser profile and its key/value persistence.
type Profile struct {
	ID    string
	State store.KV
}

// Context is the survey of one expert as seen by one browser profile.
type Context struct {
	ExpertID        string
	Assignment      *assignment.Assignment
	Machine         *survey.Machine
	Session         survey.Session
	ClientSessionID string
}

func (c *Context) Screen() survey.Screen {
	return c.Machine.Screen(c.Session)
}

// CursorKey is the navigation token pages post back with Next and Back.
func (c *Context) CursorKey() string {
	return c.Machine.CursorKey(c.Session)
}

// CurrentView renders the current task. ok is false outside the task screen.
func (c *Context) CurrentView() (render.View, bool) {
	task, _, ok := c.Machine.CurrentTask(c.Session)
	if !ok {
		return render.View{}, false //nolint:exhaustruct // no task
	}
	return render.Task(c.Assignment, task, c.Session.Answer(task.Key())), true
}

// View renders any task of the assignment.
func (c *Context) View(taskKey string) (render.View, bool) {
	task, _, ok := c.Assignment.Find(taskKey)
	if !ok {
		return render.View{}, false //nolint:exhaustruct // no task
	}
	return render.Task(c.Assignment, task, c.Session.Answer(taskKey)), true
}

type Config struct {
	// StoragePrefix namespaces persisted keys, e.g. pap_eval_v2.
	StoragePrefix string
}

type Controller struct {
	loader   assignment.Loader
	pipeline *submission.Pipeline
	metrics  *metrics.Metrics
	config   Config
	logger   *slog.Logger
	locks    *keyedMutex
	now      func() time.Time
}

func New(
	loader assignment.Loader,
	pipeline *submission.Pipeline,
	m *metrics.Metrics,
	config Config,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		loader:   loader,
		pipeline: pipeline,
		metrics:  m,
		config:   config,
		logger:   logger,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

func (c *Controller) store(profile Profile) *store.Store {
	return store.New(profile.State, c.config.StoragePrefix, c.logger)
}

// Open loads the assignment and the persisted session. An *assignment.LoadError blocks the survey.
func (c *Controller) Open(ctx context.Context, profile Profile, expertID string) (*Context, error) {
	a, err := c.loader.Load(ctx, expertID)
	if err != nil {
		return nil, errors.Wrap(err, "load assignment", slog.String("expert_id", expertID))
	}
	ctx = logging.WithAttrs(ctx, slog.String("assignment_id", a.ID))
	session, err := c.store(profile).LoadSession(ctx, expertID, a.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	return &Context{
		ExpertID:        expertID,
		Assignment:      a,
		Machine:         survey.NewMachine(a),
		Session:         session,
		ClientSessionID: session.ClientSessionID,
	}, nil
}

func (c *Controller) lock(profile Profile, expertID string) func() {
	return c.locks.Lock(profile.ID + "\x00" + expertID)
}

// Dispatch applies ev and persists the session. The returned context reflects the stored session, also when ev
// was rejected.
func (c *Controller) Dispatch(ctx context.Context, profile Profile, expertID string, ev survey.Event) (*Context, error) {
	unlock := c.lock(profile, expertID)
	defer unlock()

	sc, err := c.Open(ctx, profile, expertID)
	if err != nil {
		return nil, err
	}
	return sc, c.apply(ctx, profile, sc, ev)
}

func (c *Controller) apply(ctx context.Context, profile Profile, sc *Context, ev survey.Event) error {
	next, err := sc.Machine.Apply(sc.Session, ev, c.now())
	if err != nil {
		var validationErr *survey.ValidationError
		switch {
		case errors.As(err, &validationErr):
			c.metrics.NavigationRejected("validation")
		case errors.Is(err, survey.ErrStale):
			c.metrics.NavigationRejected("stale")
		}
		return err
	}
	if err = c.store(profile).SaveSession(ctx, sc.ExpertID, sc.Assignment.ID, next); err != nil {
		return errors.Wrap(err, "save session")
	}
	sc.Session = next
	return nil
}

// UpdateAnswer decodes the posted task form and stores the answer. restructure reports whether the task view must
// be rendered again because a conditional field appeared or disappeared.
func (c *Controller) UpdateAnswer(
	ctx context.Context,
	profile Profile,
	expertID string,
	taskKey string,
	form url.Values,
) (*Context, bool, error) {
	unlock := c.lock(profile, expertID)
	defer unlock()

	sc, err := c.Open(ctx, profile, expertID)
	if err != nil {
		return nil, false, err
	}
	restructure, err := c.saveAnswer(ctx, profile, sc, taskKey, form)
	return sc, restructure, err
}

// Navigate stores the task form posted together with a navigation event and then applies ev. The answer is only
// stored while taskKey is still the current task, so a stale page never overwrites newer answers.
func (c *Controller) Navigate(
	ctx context.Context,
	profile Profile,
	expertID string,
	taskKey string,
	form url.Values,
	ev survey.Event,
) (*Context, error) {
	unlock := c.lock(profile, expertID)
	defer unlock()

	sc, err := c.Open(ctx, profile, expertID)
	if err != nil {
		return nil, err
	}
	if taskKey != "" && taskKey == sc.CursorKey() {
		if _, err = c.saveAnswer(ctx, profile, sc, taskKey, form); err != nil {
			return sc, err
		}
	}
	return sc, c.apply(ctx, profile, sc, ev)
}

func (c *Controller) saveAnswer(
	ctx context.Context,
	profile Profile,
	sc *Context,
	taskKey string,
	form url.Values,
) (bool, error) {
	task, _, ok := sc.Assignment.Find(taskKey)
	if !ok {
		return false, errors.Wrap(survey.ErrUnknownTask, "update answer", slog.String("task", taskKey))
	}
	answer, err := render.DecodeAnswer(task, form)
	if err != nil {
		return false, errors.Wrap(err, "decode answer", slog.String("task", taskKey))
	}
	before := sc.Session.Answer(taskKey)
	if err = c.apply(ctx, profile, sc, survey.UpdateAnswer{TaskKey: taskKey, Answer: answer}); err != nil {
		return false, err
	}
	c.metrics.AnswerSaved(task.Common().Type)
	return render.NeedsRestructure(task, before, answer), nil
}

// Submit runs the submission pipeline. Holding the profile lock for the whole attempt rules out double submits.
func (c *Controller) Submit(
	ctx context.Context,
	profile Profile,
	expertID string,
	meta submission.Meta,
) (*Context, submission.Result, error) {
	unlock := c.lock(profile, expertID)
	defer unlock()

	start := c.now()
	sc, err := c.Open(ctx, profile, expertID)
	if err != nil {
		return nil, submission.Result{}, err //nolint:exhaustruct // error path
	}
	st := c.store(profile)
	result, err := c.pipeline.Submit(ctx, submission.Request{
		Assignment: sc.Assignment,
		ExpertID:   expertID,
		Session:    sc.Session,
		Meta:       meta,
		Save: func(ctx context.Context, session survey.Session) error {
			return st.SaveSession(ctx, expertID, sc.Assignment.ID, session)
		},
	})
	sc.Session = result.Session

	var incomplete *submission.IncompleteError
	switch {
	case err == nil && result.AlreadySubmitted:
		c.metrics.Submission(metrics.OutcomeAlreadySubmitted, c.now().Sub(start))
	case err == nil:
		c.metrics.Submission(metrics.OutcomeDelivered, c.now().Sub(start))
	case errors.As(err, &incomplete):
		c.metrics.Submission(metrics.OutcomeIncomplete, c.now().Sub(start))
	case errors.Is(err, submission.ErrTransport):
		c.metrics.Submission(metrics.OutcomeTransportError, c.now().Sub(start))
		c.logger.LogAttrs(ctx, slog.LevelWarn, "submission not delivered", errors.SlogError(err))
	default:
		c.metrics.Submission(metrics.OutcomeError, c.now().Sub(start))
	}
	return sc, result, err
}
