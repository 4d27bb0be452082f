package models

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

type SentimentClass string

const (
	Positive SentimentClass = "positive"
	Negative SentimentClass = "negative"
	Neutral  SentimentClass = "neutral"
)

// SentimentClasses is the fixed display order used for distributions.
var SentimentClasses = []SentimentClass{Positive, Negative, Neutral}

const (
	MaxTextLength        = 1000
	ProbabilityTolerance = 1e-3
)

func (c SentimentClass) Valid() bool {
	switch c {
	case Positive, Negative, Neutral:
		return true
	default:
		return false
	}
}

// SentimentResult is a classified text. Immutable once created by the oracle;
// the store assigns ID and CreatedAt when it persists a copy.
type SentimentResult struct {
	ID               string                     `json:"id,omitempty"`
	Text             string                     `json:"text"`
	PredictedClass   SentimentClass             `json:"predicted_class"`
	Confidence       float64                    `json:"confidence"`
	AllProbabilities map[SentimentClass]float64 `json:"all_probabilities"`
	CreatedAt        time.Time                  `json:"created_at"`
}

// Validate checks the classification invariants: known class, bounded text,
// probabilities summing to one, and confidence/class matching the arg-max.
func (r SentimentResult) Validate() error {
	if utf8.RuneCountInString(r.Text) > MaxTextLength {
		return fmt.Errorf("text exceeds %d characters", MaxTextLength)
	}
	if !r.PredictedClass.Valid() {
		return fmt.Errorf("unknown predicted_class %q", r.PredictedClass)
	}
	if r.Confidence < 0 || r.Confidence > 1 || math.IsNaN(r.Confidence) {
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	if len(r.AllProbabilities) == 0 {
		return fmt.Errorf("all_probabilities is empty")
	}

	sum := 0.0
	for class, p := range r.AllProbabilities {
		if !class.Valid() {
			return fmt.Errorf("unknown probability class %q", class)
		}
		if p < 0 || p > 1 || math.IsNaN(p) {
			return fmt.Errorf("probability %v for %s outside [0,1]", p, class)
		}
		sum += p
	}
	if math.Abs(sum-1) > ProbabilityTolerance {
		return fmt.Errorf("probabilities sum to %.4f, want 1", sum)
	}

	best, bestP := ArgMax(r.AllProbabilities)
	if math.Abs(r.Confidence-bestP) > ProbabilityTolerance {
		return fmt.Errorf("confidence %.4f does not match max probability %.4f", r.Confidence, bestP)
	}
	if r.AllProbabilities[r.PredictedClass] < bestP-ProbabilityTolerance {
		return fmt.Errorf("predicted_class %s is not the arg-max (%s)", r.PredictedClass, best)
	}
	return nil
}

// ArgMax returns the most probable class. Ties resolve in SentimentClasses
// order so the result is deterministic.
func ArgMax(probs map[SentimentClass]float64) (SentimentClass, float64) {
	var (
		best  SentimentClass
		bestP = -1.0
	)
	for _, class := range SentimentClasses {
		p, ok := probs[class]
		if ok && p > bestP {
			best, bestP = class, p
		}
	}
	return best, bestP
}

// ConfidencePercent renders confidence the way notifications show it: "94.0%".
func (r SentimentResult) ConfidencePercent() string {
	return fmt.Sprintf("%.1f%%", r.Confidence*100)
}

type DistributionEntry struct {
	Class       SentimentClass
	Probability float64
	Percent     string
}

// Distribution lists the probabilities in display order.
func (r SentimentResult) Distribution() []DistributionEntry {
	out := make([]DistributionEntry, 0, len(SentimentClasses))
	for _, class := range SentimentClasses {
		p, ok := r.AllProbabilities[class]
		if !ok {
			continue
		}
		out = append(out, DistributionEntry{
			Class:       class,
			Probability: p,
			Percent:     fmt.Sprintf("%.1f%%", p*100),
		})
	}
	return out
}

// Clone copies the probability map so callers cannot mutate a shared result.
func (r SentimentResult) Clone() SentimentResult {
	out := r
	if r.AllProbabilities != nil {
		out.AllProbabilities = make(map[SentimentClass]float64, len(r.AllProbabilities))
		for k, v := range r.AllProbabilities {
			out.AllProbabilities[k] = v
		}
	}
	return out
}
