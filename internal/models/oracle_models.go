package models

type PredictRequest struct {
	Text string `json:"text"`
}

type PredictResponse struct {
	PredictedClass   SentimentClass             `json:"predicted_class"`
	Confidence       float64                    `json:"confidence"`
	AllProbabilities map[SentimentClass]float64 `json:"all_probabilities"`
	Text             string                     `json:"text"`
}

func (p PredictResponse) Result() SentimentResult {
	return SentimentResult{
		Text:             p.Text,
		PredictedClass:   p.PredictedClass,
		Confidence:       p.Confidence,
		AllProbabilities: p.AllProbabilities,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ItemStatus string

const (
	StatusSuccess ItemStatus = "success"
	StatusFailure ItemStatus = "failure"
)

type (
	BatchPredictRequest struct {
		Texts []string `json:"texts"`
	}
	BatchPredictResponse struct {
		Results        []BatchPredictItem `json:"results"`
		TotalProcessed int                `json:"total_processed"`
	}
	BatchPredictItem struct {
		Status           ItemStatus                 `json:"status"`
		PredictedClass   SentimentClass             `json:"predicted_class,omitempty"`
		Confidence       float64                    `json:"confidence,omitempty"`
		AllProbabilities map[SentimentClass]float64 `json:"all_probabilities,omitempty"`
		Text             string                     `json:"text"`
		Error            string                     `json:"error,omitempty"`
	}
)

// PredictOutcome is either PredictSuccess or PredictFailure.
type PredictOutcome interface {
	isPredictOutcome()
}

type PredictSuccess struct {
	Result SentimentResult
}

type PredictFailure struct {
	Reason string
}

func (PredictSuccess) isPredictOutcome() {}
func (PredictFailure) isPredictOutcome() {}

// Outcome converts the oracle's per-item status into a tagged variant. The
// status field is authoritative; anything other than "success" is a failure.
func (b BatchPredictItem) Outcome() PredictOutcome {
	if b.Status != StatusSuccess {
		reason := b.Error
		if reason == "" {
			reason = "oracle reported failure"
		}
		return PredictFailure{Reason: reason}
	}
	return PredictSuccess{Result: SentimentResult{
		Text:             b.Text,
		PredictedClass:   b.PredictedClass,
		Confidence:       b.Confidence,
		AllProbabilities: b.AllProbabilities,
	}}
}

type BatchItem struct {
	Text    string
	Outcome PredictOutcome
}

// BatchOutcome holds one item per submitted non-blank line, in input order.
type BatchOutcome struct {
	Items          []BatchItem
	TotalProcessed int
	Saved          int
	SaveFailures   int
}

func (o BatchOutcome) Successes() int {
	n := 0
	for _, item := range o.Items {
		if _, ok := item.Outcome.(PredictSuccess); ok {
			n++
		}
	}
	return n
}

func (o BatchOutcome) Failures() int {
	return len(o.Items) - o.Successes()
}
