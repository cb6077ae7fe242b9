package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/errors"
)

// Rating bounds. The zero Rating means not rated and encodes as JSON null.
const (
	MinRating Rating = 1
	MaxRating Rating = 5
)

// ErrRatingRange is returned for ratings outside MinRating..MaxRating.
var ErrRatingRange = errors.NewSentinel("rating out of range")

// Rating is a 1..5 Likert rating.
type Rating int

// Set reports whether the rating has a valid value.
func (r Rating) Set() bool {
	return r >= MinRating && r <= MaxRating
}

// ParseRating parses a form value. The empty string is an unset rating.
func ParseRating(s string) (Rating, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || !Rating(n).Set() {
		return 0, errors.Wrap(ErrRatingRange, fmt.Sprintf("parse rating %q", s))
	}
	return Rating(n), nil
}

func (r Rating) MarshalJSON() ([]byte, error) {
	if !r.Set() {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(r))), nil
}

func (r *Rating) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*r = 0
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrap(err, "decode rating")
	}
	if !Rating(n).Set() {
		return errors.Wrap(ErrRatingRange, fmt.Sprintf("decode rating %d", n))
	}
	*r = Rating(n)
	return nil
}

// Answer is either a ClusterAnswer or a PairAnswer.
type Answer interface {
	// Kind matches the type discriminator of the task the answer belongs to.
	Kind() string
	clone() Answer
}

// ItemAnswer is the rating of one document of a cluster task.
type ItemAnswer struct {
	Coherence Rating `json:"coherence"`
	Misplaced bool   `json:"misplaced"`
	Note      string `json:"note"`
}

type ClusterAnswer struct {
	Items        map[string]ItemAnswer `json:"items"`
	ClusterLabel string                `json:"cluster_label"`
	ClusterNote  string                `json:"cluster_note"`
}

func (ClusterAnswer) Kind() string { return assignment.KindCluster }

func (a ClusterAnswer) clone() Answer {
	items := make(map[string]ItemAnswer, len(a.Items))
	for k, v := range a.Items {
		items[k] = v
	}
	a.Items = items
	return a
}

type PairAnswer struct {
	Relatedness Rating `json:"relatedness"`
	CommonTheme string `json:"common_theme"`
	Note        string `json:"note"`
}

func (PairAnswer) Kind() string { return assignment.KindPair }

func (a PairAnswer) clone() Answer { return a }

// Answers maps task identity to answer. Variants are told apart by the items field of cluster answers.
type Answers map[string]Answer

func (a *Answers) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "decode answers")
	}
	decoded := make(Answers, len(raw))
	for key, value := range raw {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(value, &probe); err != nil {
			return errors.Wrap(err, "decode answer")
		}
		if probe == nil {
			continue
		}
		if _, ok := probe["items"]; ok {
			var cluster ClusterAnswer
			if err := json.Unmarshal(value, &cluster); err != nil {
				return errors.Wrap(err, "decode cluster answer")
			}
			if cluster.Items == nil {
				cluster.Items = map[string]ItemAnswer{}
			}
			decoded[key] = cluster
			continue
		}
		var pair PairAnswer
		if err := json.Unmarshal(value, &pair); err != nil {
			return errors.Wrap(err, "decode pair answer")
		}
		decoded[key] = pair
	}
	*a = decoded
	return nil
}
