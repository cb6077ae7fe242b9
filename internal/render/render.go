// Package render turns tasks and answers into view models and decodes posted task forms back into answers.
//
// Views are blinded: they never expose clustering or cluster identifiers or the same-cluster flag.
package render

import (
	"log/slog"
	"net/url"
	"slices"

	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/survey"
)

// Form field names. Per-item fields are suffixed with "." and the doc_id.
const (
	FieldCoherence    = "coherence"
	FieldMisplaced    = "misplaced"
	FieldItemNote     = "note"
	FieldClusterLabel = "cluster_label"
	FieldClusterNote  = "cluster_note"
	FieldRelatedness  = "relatedness"
	FieldCommonTheme  = "common_theme"
	FieldPairNote     = "note"
)

// ItemField returns the form field name of an item-level field.
func ItemField(field, docID string) string {
	return field + "." + docID
}

// Option is one point of the rating scale.
type Option struct {
	Value   int
	Checked bool
}

func scale(r survey.Rating) []Option {
	options := make([]Option, 0, survey.MaxRating)
	for v := survey.MinRating; v <= survey.MaxRating; v++ {
		options = append(options, Option{Value: int(v), Checked: v == r})
	}
	return options
}

type ItemView struct {
	DocID          string
	Title          string
	Excerpt        string
	CoherenceField string
	MisplacedField string
	NoteField      string
	Scale          []Option
	Misplaced      bool
	Note           string
}

type ClusterView struct {
	Items        []ItemView
	Part         int
	Parts        int
	ClusterLabel string
	ClusterNote  string
}

type DocView struct {
	DocID string
	Title string
}

type PairView struct {
	Doc1            DocView
	Doc2            DocView
	Scale           []Option
	ShowCommonTheme bool
	CommonTheme     string
	Note            string
}

// View is the interactive view of one task. Exactly one of Cluster and Pair is set.
type View struct {
	Key       string
	Kind      string
	Index     int
	TaskCount int
	Cluster   *ClusterView
	Pair      *PairView
}

// Number is the 1-based position of the task.
func (v View) Number() int {
	return v.Index + 1
}

// Task renders task with its current answer, which may be nil. Inputs are not modified.
func Task(a *assignment.Assignment, task assignment.Task, answer survey.Answer) View {
	_, index, _ := a.Find(task.Key())
	view := View{
		Key:       task.Key(),
		Kind:      task.Common().Type,
		Index:     index,
		TaskCount: len(a.Tasks),
		Cluster:   nil,
		Pair:      nil,
	}
	switch t := task.(type) {
	case *assignment.ClusterTask:
		view.Cluster = clusterView(a.Tasks, t, answer)
	case *assignment.PairTask:
		view.Pair = pairView(t, answer)
	}
	return view
}

func clusterView(tasks []assignment.Task, t *assignment.ClusterTask, answer survey.Answer) *ClusterView {
	a, _ := answer.(survey.ClusterAnswer)
	part, parts := BatchPart(tasks, t)
	view := &ClusterView{
		Items:        make([]ItemView, 0, len(t.Items)),
		Part:         part,
		Parts:        parts,
		ClusterLabel: a.ClusterLabel,
		ClusterNote:  a.ClusterNote,
	}
	for _, item := range t.Items {
		itemAnswer := a.Items[item.DocID]
		view.Items = append(view.Items, ItemView{
			DocID:          item.DocID,
			Title:          item.Title,
			Excerpt:        item.Excerpt,
			CoherenceField: ItemField(FieldCoherence, item.DocID),
			MisplacedField: ItemField(FieldMisplaced, item.DocID),
			NoteField:      ItemField(FieldItemNote, item.DocID),
			Scale:          scale(itemAnswer.Coherence),
			Misplaced:      itemAnswer.Misplaced,
			Note:           itemAnswer.Note,
		})
	}
	return view
}

func pairView(t *assignment.PairTask, answer survey.Answer) *PairView {
	a, _ := answer.(survey.PairAnswer)
	return &PairView{
		Doc1:            DocView{DocID: t.Doc1.DocID, Title: t.Doc1.Title},
		Doc2:            DocView{DocID: t.Doc2.DocID, Title: t.Doc2.Title},
		Scale:           scale(a.Relatedness),
		ShowCommonTheme: a.Relatedness >= survey.RelatednessThemeThreshold,
		CommonTheme:     a.CommonTheme,
		Note:            a.Note,
	}
}

// BatchPart returns the 1-based position k of task among the K cluster tasks that share its clustering and
// cluster, stable-sorted by batch_index.
func BatchPart(tasks []assignment.Task, task *assignment.ClusterTask) (int, int) {
	var group []*assignment.ClusterTask
	for _, candidate := range tasks {
		c, ok := candidate.(*assignment.ClusterTask)
		if ok && c.ClusteringID == task.ClusteringID && c.ClusterID == task.ClusterID {
			group = append(group, c)
		}
	}
	slices.SortStableFunc(group, func(a, b *assignment.ClusterTask) int {
		return a.BatchIndex - b.BatchIndex
	})
	for i, c := range group {
		if c.Key() == task.Key() {
			return i + 1, len(group)
		}
	}
	return 1, 1
}

// NeedsRestructure reports whether replacing before with after changes which fields the view shows.
//
// Only the common theme field of pair tasks is conditional, it appears at relatedness 4. Every other edit keeps
// the structure so that the page can keep input focus.
func NeedsRestructure(task assignment.Task, before, after survey.Answer) bool {
	if _, ok := task.(*assignment.PairTask); !ok {
		return false
	}
	b, _ := before.(survey.PairAnswer)
	a, _ := after.(survey.PairAnswer)
	return (b.Relatedness >= survey.RelatednessThemeThreshold) != (a.Relatedness >= survey.RelatednessThemeThreshold)
}

// DecodeAnswer builds the answer of task from its posted form.
//
// The form is authoritative: missing ratings are unset and missing misplaced checkboxes are false.
func DecodeAnswer(task assignment.Task, form url.Values) (survey.Answer, error) {
	switch t := task.(type) {
	case *assignment.ClusterTask:
		answer := survey.ClusterAnswer{
			Items:        make(map[string]survey.ItemAnswer, len(t.Items)),
			ClusterLabel: form.Get(FieldClusterLabel),
			ClusterNote:  form.Get(FieldClusterNote),
		}
		for _, item := range t.Items {
			coherence, err := survey.ParseRating(form.Get(ItemField(FieldCoherence, item.DocID)))
			if err != nil {
				return nil, errors.Wrap(err, "decode coherence", slog.String("doc_id", item.DocID))
			}
			answer.Items[item.DocID] = survey.ItemAnswer{
				Coherence: coherence,
				Misplaced: form.Get(ItemField(FieldMisplaced, item.DocID)) != "",
				Note:      form.Get(ItemField(FieldItemNote, item.DocID)),
			}
		}
		return answer, nil
	case *assignment.PairTask:
		relatedness, err := survey.ParseRating(form.Get(FieldRelatedness))
		if err != nil {
			return nil, errors.Wrap(err, "decode relatedness")
		}
		return survey.PairAnswer{
			Relatedness: relatedness,
			CommonTheme: form.Get(FieldCommonTheme),
			Note:        form.Get(FieldPairNote),
		}, nil
	}
	return nil, errors.New("unsupported task", slog.String("task", task.Key()))
}
