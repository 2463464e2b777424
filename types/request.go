package types

import (
	"sort"
	"time"
)

// Priority is the scheduling class of a classification request. Higher
// priorities are dispatched first, subject to starvation escalation.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParsePriority converts a string into a Priority. Unknown values map to
// PriorityNormal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// ClassificationRequest is a single image classification request. It is
// immutable after creation; the pipeline writes exactly one terminal
// PredictionResult for every accepted request.
type ClassificationRequest struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Model       string    `json:"model"`
	Priority    Priority  `json:"priority"`
	Payload     []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	SubmittedAt time.Time `json:"submitted_at"`
	Deadline    time.Time `json:"deadline"`
}

// Category is a single predicted category with its confidence score.
type Category struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// PredictionResult is the terminal outcome of a classification request:
// either a ranked category list or an error, never both.
type PredictionResult struct {
	RequestID  string        `json:"request_id"`
	Categories []Category    `json:"categories,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        *Error        `json:"error,omitempty"`
}

// Top returns the highest-confidence category, or a zero Category when the
// result carries no predictions.
func (r *PredictionResult) Top() Category {
	if len(r.Categories) == 0 {
		return Category{}
	}
	return r.Categories[0]
}

// SortCategories orders categories by descending confidence, preserving the
// relative order of equal scores.
func SortCategories(cats []Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Confidence > cats[j].Confidence
	})
}
