package scheduler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/internal/limiter"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

func admissionRequest(clientID string, payloadLen int) *types.ClassificationRequest {
	return &types.ClassificationRequest{
		ID:       fmt.Sprintf("req-%s-%d", clientID, payloadLen),
		ClientID: clientID,
		Model:    "m",
		Priority: types.PriorityNormal,
		Payload:  make([]byte, payloadLen),
	}
}

func TestAdmission_GlobalCeiling(t *testing.T) {
	a := newAdmissionController(2, 10, 1024, nil)
	ctx := context.Background()

	require.Nil(t, a.admit(ctx, admissionRequest("a", 1)))
	require.Nil(t, a.admit(ctx, admissionRequest("b", 1)))

	aerr := a.admit(ctx, admissionRequest("c", 1))
	require.NotNil(t, aerr)
	assert.Equal(t, types.ErrRejectedOverloaded, aerr.Code)
	assert.True(t, aerr.Retryable)
	assert.Equal(t, 2, a.inflight())
}

func TestAdmission_PerClientCeiling(t *testing.T) {
	a := newAdmissionController(10, 1, 1024, nil)
	ctx := context.Background()

	require.Nil(t, a.admit(ctx, admissionRequest("a", 1)))

	aerr := a.admit(ctx, admissionRequest("a", 1))
	require.NotNil(t, aerr)
	assert.Equal(t, types.ErrRejectedRateLimited, aerr.Code)

	// Another client is unaffected.
	assert.Nil(t, a.admit(ctx, admissionRequest("b", 1)))
}

func TestAdmission_PayloadTooLarge(t *testing.T) {
	a := newAdmissionController(10, 10, 16, nil)
	ctx := context.Background()

	aerr := a.admit(ctx, admissionRequest("a", 17))
	require.NotNil(t, aerr)
	assert.Equal(t, types.ErrRejectedPayloadTooLarge, aerr.Code)
	// Rejections never consume capacity.
	assert.Equal(t, 0, a.inflight())
}

func TestAdmission_CheckOrder(t *testing.T) {
	// Global ceiling wins over payload size when both would reject.
	a := newAdmissionController(1, 1, 16, nil)
	ctx := context.Background()

	require.Nil(t, a.admit(ctx, admissionRequest("a", 1)))
	aerr := a.admit(ctx, admissionRequest("b", 1000))
	require.NotNil(t, aerr)
	assert.Equal(t, types.ErrRejectedOverloaded, aerr.Code)
}

func TestAdmission_ReleaseRestoresCapacity(t *testing.T) {
	a := newAdmissionController(1, 1, 1024, nil)
	ctx := context.Background()

	require.Nil(t, a.admit(ctx, admissionRequest("a", 1)))
	require.NotNil(t, a.admit(ctx, admissionRequest("a", 1)))

	a.release("a")
	assert.Equal(t, 0, a.inflight())
	assert.Nil(t, a.admit(ctx, admissionRequest("a", 1)))
}

func TestAdmission_ReleaseUnknownClient(t *testing.T) {
	a := newAdmissionController(1, 1, 1024, nil)
	a.release("never-seen")
	assert.Equal(t, 0, a.inflight())
}

func TestAdmission_OversizedPayloadKeepsRateToken(t *testing.T) {
	// A payload rejection must not charge the client's rate budget.
	a := newAdmissionController(10, 10, 16, limiter.NewTokenBucket(1, 1))
	ctx := context.Background()

	aerr := a.admit(ctx, admissionRequest("a", 64))
	require.NotNil(t, aerr)
	assert.Equal(t, types.ErrRejectedPayloadTooLarge, aerr.Code)

	// The single burst token is still available.
	assert.Nil(t, a.admit(ctx, admissionRequest("a", 1)))
}

func TestAdmission_RateLimiter(t *testing.T) {
	a := newAdmissionController(10, 10, 1024, limiter.NewTokenBucket(1, 1))
	ctx := context.Background()

	require.Nil(t, a.admit(ctx, admissionRequest("a", 1)))

	aerr := a.admit(ctx, admissionRequest("a", 1))
	require.NotNil(t, aerr)
	assert.Equal(t, types.ErrRejectedRateLimited, aerr.Code)
}
