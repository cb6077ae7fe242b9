package survey

import (
	"strings"

	"github.com/myrjola/clustereval/internal/assignment"
)

// Messages shown inline when an answer is incomplete.
const (
	MsgRateEveryItem     = "Please rate the coherence of every document before continuing."
	MsgRateRelatedness   = "Please rate how related the two documents are before continuing."
	MsgCommonThemeNeeded = "A common theme is required when relatedness is 4 or higher."
	MsgWrongAnswerKind   = "The stored answer does not match this task. Please answer it again."
)

// RelatednessThemeThreshold is the relatedness from which a common theme is required.
const RelatednessThemeThreshold Rating = 4

type Result struct {
	OK      bool
	Message string
}

var passed = Result{OK: true, Message: ""}

// Validate checks that answer completes task. A nil answer is incomplete.
func Validate(task assignment.Task, answer Answer) Result {
	switch t := task.(type) {
	case *assignment.ClusterTask:
		if answer == nil {
			return Result{OK: false, Message: MsgRateEveryItem}
		}
		a, isCluster := answer.(ClusterAnswer)
		if !isCluster {
			return Result{OK: false, Message: MsgWrongAnswerKind}
		}
		for _, item := range t.Items {
			if !a.Items[item.DocID].Coherence.Set() {
				return Result{OK: false, Message: MsgRateEveryItem}
			}
		}
		return passed
	case *assignment.PairTask:
		if answer == nil {
			return Result{OK: false, Message: MsgRateRelatedness}
		}
		a, isPair := answer.(PairAnswer)
		if !isPair {
			return Result{OK: false, Message: MsgWrongAnswerKind}
		}
		if !a.Relatedness.Set() {
			return Result{OK: false, Message: MsgRateRelatedness}
		}
		if a.Relatedness >= RelatednessThemeThreshold && strings.TrimSpace(a.CommonTheme) == "" {
			return Result{OK: false, Message: MsgCommonThemeNeeded}
		}
		return passed
	}
	return Result{OK: false, Message: MsgWrongAnswerKind}
}

// Failure is an incomplete task found by ValidateAll.
type Failure struct {
	TaskKey string
	Index   int
	Message string
}

// ValidateAll checks every task of the assignment, not only the current one.
func ValidateAll(a *assignment.Assignment, answers Answers) []Failure {
	var failures []Failure
	for i, task := range a.Tasks {
		if result := Validate(task, answers[task.Key()]); !result.OK {
			failures = append(failures, Failure{TaskKey: task.Key(), Index: i, Message: result.Message})
		}
	}
	return failures
}
