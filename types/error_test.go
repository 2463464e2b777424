package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrWorkerTimeout, "worker did not complete batch")
	assert.Equal(t, "[WORKER_TIMEOUT] worker did not complete batch", err.Error())

	cause := errors.New("connection reset")
	err = NewError(ErrModelError, "inference failed").WithCause(cause)
	assert.Contains(t, err.Error(), "MODEL_ERROR")
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_Builders(t *testing.T) {
	err := NewError(ErrRejectedOverloaded, "global ceiling reached").
		WithRetryable(true).
		WithModel("resnet50")

	assert.True(t, err.Retryable)
	assert.Equal(t, "resnet50", err.Model)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrRejectedOverloaded, GetErrorCode(err))
}

func TestGetErrorCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestPriority_RoundTrip(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh} {
		assert.Equal(t, p, ParsePriority(p.String()))
	}
	assert.Equal(t, PriorityNormal, ParsePriority("bogus"))
}

func TestSortCategories(t *testing.T) {
	cats := []Category{
		{Label: "cat", Confidence: 0.1},
		{Label: "dog", Confidence: 0.7},
		{Label: "bird", Confidence: 0.2},
	}
	SortCategories(cats)
	assert.Equal(t, "dog", cats[0].Label)
	assert.Equal(t, "bird", cats[1].Label)
	assert.Equal(t, "cat", cats[2].Label)

	res := &PredictionResult{Categories: cats}
	assert.Equal(t, "dog", res.Top().Label)
	assert.Equal(t, Category{}, (&PredictionResult{}).Top())
}
