package scheduler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/testutil"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// sealRecorder collects sealed batches in seal order.
type sealRecorder struct {
	mu      sync.Mutex
	batches []*Batch
}

func (r *sealRecorder) onSealed(b *Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *sealRecorder) sealed() []*Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Batch(nil), r.batches...)
}

func assemblerPending(id, model string, prio types.Priority) *pending {
	return newPending(&types.ClassificationRequest{
		ID:       id,
		ClientID: "client",
		Model:    model,
		Priority: prio,
		Payload:  []byte{1},
	})
}

func TestAssembler_SealsOnSize(t *testing.T) {
	rec := &sealRecorder{}
	a := newAssembler(3, time.Hour, rec.onSealed, zap.NewNop(), nil)

	for i := 0; i < 3; i++ {
		require.True(t, a.add(assemblerPending(fmt.Sprintf("r%d", i), "m", types.PriorityNormal)))
	}

	sealed := rec.sealed()
	require.Len(t, sealed, 1)
	assert.Equal(t, 3, sealed[0].Size())
	assert.Equal(t, BatchSealed, sealed[0].State())

	// Request order inside the batch is arrival order.
	for i, p := range sealed[0].reqs {
		assert.Equal(t, fmt.Sprintf("r%d", i), p.req.ID)
	}
}

func TestAssembler_SealsOnTimer(t *testing.T) {
	rec := &sealRecorder{}
	a := newAssembler(100, 20*time.Millisecond, rec.onSealed, zap.NewNop(), nil)

	require.True(t, a.add(assemblerPending("r0", "m", types.PriorityNormal)))

	testutil.AssertEventuallyTrue(t, func() bool {
		return len(rec.sealed()) == 1
	}, time.Second, "partial batch should seal when max wait elapses")
	assert.Equal(t, 1, rec.sealed()[0].Size())
}

func TestAssembler_EmptyBucketNeverSeals(t *testing.T) {
	rec := &sealRecorder{}
	a := newAssembler(4, 10*time.Millisecond, rec.onSealed, zap.NewNop(), nil)

	// Warm the bucket, withdraw the only request, and let the timer pass.
	p := assemblerPending("r0", "m", types.PriorityNormal)
	require.True(t, a.add(p))
	require.True(t, a.remove(p))
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, rec.sealed())
}

func TestAssembler_BucketsByModelAndPriority(t *testing.T) {
	rec := &sealRecorder{}
	a := newAssembler(2, time.Hour, rec.onSealed, zap.NewNop(), nil)

	// Interleave two buckets; neither fills until its second request.
	require.True(t, a.add(assemblerPending("a0", "m1", types.PriorityHigh)))
	require.True(t, a.add(assemblerPending("b0", "m1", types.PriorityNormal)))
	require.Empty(t, rec.sealed())

	require.True(t, a.add(assemblerPending("a1", "m1", types.PriorityHigh)))
	require.True(t, a.add(assemblerPending("b1", "m1", types.PriorityNormal)))

	sealed := rec.sealed()
	require.Len(t, sealed, 2)
	assert.Equal(t, types.PriorityHigh, sealed[0].Priority())
	assert.Equal(t, types.PriorityNormal, sealed[1].Priority())
}

func TestAssembler_WaitBudgetStartsAtFirstRequest(t *testing.T) {
	rec := &sealRecorder{}
	a := newAssembler(100, 40*time.Millisecond, rec.onSealed, zap.NewNop(), nil)

	// Let the bucket sit empty well past max wait before the first add.
	require.True(t, a.add(assemblerPending("warm", "m", types.PriorityNormal)))
	testutil.AssertEventuallyTrue(t, func() bool { return len(rec.sealed()) == 1 }, time.Second)

	time.Sleep(100 * time.Millisecond)
	before := time.Now()
	require.True(t, a.add(assemblerPending("r0", "m", types.PriorityNormal)))

	testutil.AssertEventuallyTrue(t, func() bool { return len(rec.sealed()) == 2 }, time.Second)
	b := rec.sealed()[1]
	assert.False(t, b.CreatedAt().Before(before), "age must be measured from the first request, not bucket creation")
}

func TestAssembler_RemoveMissesSealedBatch(t *testing.T) {
	rec := &sealRecorder{}
	a := newAssembler(1, time.Hour, rec.onSealed, zap.NewNop(), nil)

	p := assemblerPending("r0", "m", types.PriorityNormal)
	require.True(t, a.add(p))
	require.Len(t, rec.sealed(), 1)

	// Sealing already transferred ownership; withdrawal must fail.
	assert.False(t, a.remove(p))
	assert.Equal(t, 1, rec.sealed()[0].Size())
}

func TestAssembler_CloseReturnsOrphans(t *testing.T) {
	rec := &sealRecorder{}
	a := newAssembler(100, time.Hour, rec.onSealed, zap.NewNop(), nil)

	require.True(t, a.add(assemblerPending("r0", "m1", types.PriorityNormal)))
	require.True(t, a.add(assemblerPending("r1", "m2", types.PriorityHigh)))

	orphans := a.close()
	assert.Len(t, orphans, 2)
	assert.Empty(t, rec.sealed())

	// A closed assembler accepts nothing.
	assert.False(t, a.add(assemblerPending("r2", "m1", types.PriorityNormal)))
}
