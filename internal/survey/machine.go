// Package survey holds the answer model and the pure state machine of a survey session.
package survey

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/errors"
)

// Screen is what the expert sees. It is always derived from persisted session fields.
type Screen string

const (
	ScreenWelcome Screen = "welcome"
	ScreenTask    Screen = "task"
	ScreenSubmit  Screen = "submit"
	ScreenThanks  Screen = "thanks"
)

var (
	ErrConsentRequired = errors.NewSentinel("consent must be acknowledged")
	ErrNotStarted      = errors.NewSentinel("survey not started")
	ErrSubmitted       = errors.NewSentinel("survey already submitted")
	ErrStale           = errors.NewSentinel("page no longer shows the current task")
	ErrUnknownTask     = errors.NewSentinel("unknown task")
	ErrAnswerKind      = errors.NewSentinel("answer kind does not match task")
)

// ValidationError blocks navigation or submission because an answer is incomplete.
type ValidationError struct {
	TaskKey string
	Index   int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("task %s incomplete: %s", e.TaskKey, e.Message)
}

// Event is one of Consent, Next, Back or UpdateAnswer.
type Event interface {
	isEvent()
}

// Consent moves from the welcome screen to the first unfinished task.
type Consent struct {
	Acknowledged bool
}

// Next advances past the current task once it validates. From is the CursorKey the page was rendered with.
type Next struct {
	From string
}

// Back moves to the previous task without validation. From is the CursorKey the page was rendered with.
type Back struct {
	From string
}

// UpdateAnswer stores the answer of any task of the assignment.
type UpdateAnswer struct {
	TaskKey string
	Answer  Answer
}

func (Consent) isEvent()      {}
func (Next) isEvent()         {}
func (Back) isEvent()         {}
func (UpdateAnswer) isEvent() {}

// Machine computes session transitions for one assignment.
type Machine struct {
	assignment *assignment.Assignment
}

func NewMachine(a *assignment.Assignment) *Machine {
	return &Machine{assignment: a}
}

func (m *Machine) Assignment() *assignment.Assignment {
	return m.assignment
}

// index clamps the persisted cursor to [0, taskCount].
func (m *Machine) index(s Session) int {
	return min(max(s.TaskIndex, 0), len(m.assignment.Tasks))
}

// Screen reconstructs the screen from the session alone.
func (m *Machine) Screen(s Session) Screen {
	switch {
	case s.Submitted:
		return ScreenThanks
	case !s.Started:
		return ScreenWelcome
	case m.index(s) >= len(m.assignment.Tasks):
		return ScreenSubmit
	default:
		return ScreenTask
	}
}

// CurrentTask returns the task under the cursor and its index. ok is false outside the task screen.
func (m *Machine) CurrentTask(s Session) (assignment.Task, int, bool) {
	if m.Screen(s) != ScreenTask {
		return nil, -1, false
	}
	i := m.index(s)
	return m.assignment.Tasks[i], i, true
}

// CursorKey identifies the position of the cursor: the current task identity, or "" past the last task.
func (m *Machine) CursorKey(s Session) string {
	if task, _, ok := m.CurrentTask(s); ok {
		return task.Key()
	}
	return ""
}

// Apply returns the session after ev. The input session is never modified.
func (m *Machine) Apply(s Session, ev Event, now time.Time) (Session, error) {
	if s.Submitted {
		return s, ErrSubmitted
	}
	next := s.Clone()
	switch e := ev.(type) {
	case Consent:
		return m.consent(next, e, now)
	case Next:
		return m.forward(next, e, now)
	case Back:
		return m.back(next, e, now)
	case UpdateAnswer:
		return m.update(next, e)
	}
	return s, errors.New("unsupported event", slog.String("event", fmt.Sprintf("%T", ev)))
}

func (m *Machine) consent(s Session, e Consent, now time.Time) (Session, error) {
	if !e.Acknowledged {
		return s, ErrConsentRequired
	}
	if !s.Started {
		s.Started = true
		s.TaskIndex = m.index(s)
		accumulate(&s, m.CursorKey(s), now)
	}
	if s.StartedAt == nil {
		t := now.UTC()
		s.StartedAt = &t
	}
	return s, nil
}

func (m *Machine) forward(s Session, e Next, now time.Time) (Session, error) {
	if err := m.checkNavigation(s, e.From); err != nil {
		return s, err
	}
	task, i, ok := m.CurrentTask(s)
	if !ok {
		// Already past the last task.
		return s, nil
	}
	if result := Validate(task, s.Answers[task.Key()]); !result.OK {
		return s, &ValidationError{TaskKey: task.Key(), Index: i, Message: result.Message}
	}
	return m.moveTo(s, i+1, now), nil
}

func (m *Machine) back(s Session, e Back, now time.Time) (Session, error) {
	if err := m.checkNavigation(s, e.From); err != nil {
		return s, err
	}
	return m.moveTo(s, m.index(s)-1, now), nil
}

func (m *Machine) checkNavigation(s Session, from string) error {
	if !s.Started {
		return ErrNotStarted
	}
	if from != m.CursorKey(s) {
		return errors.Wrap(ErrStale, "navigate",
			slog.String("from", from), slog.String("current", m.CursorKey(s)))
	}
	return nil
}

func (m *Machine) moveTo(s Session, index int, now time.Time) Session {
	index = min(max(index, 0), len(m.assignment.Tasks))
	if index == m.index(s) && index == s.TaskIndex {
		return s
	}
	s.TaskIndex = index
	accumulate(&s, m.CursorKey(s), now)
	return s
}

func (m *Machine) update(s Session, e UpdateAnswer) (Session, error) {
	if !s.Started {
		return s, ErrNotStarted
	}
	task, _, ok := m.assignment.Find(e.TaskKey)
	if !ok {
		return s, errors.Wrap(ErrUnknownTask, "update answer", slog.String("task", e.TaskKey))
	}
	if e.Answer == nil || e.Answer.Kind() != task.Common().Type {
		return s, errors.Wrap(ErrAnswerKind, "update answer", slog.String("task", e.TaskKey))
	}
	if s.Answers == nil {
		s.Answers = Answers{}
	}
	s.Answers[e.TaskKey] = e.Answer.clone()
	return s, nil
}
