package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

func agedBatch(prio types.Priority, age, maxWait time.Duration, now time.Time) *Batch {
	b := newBatch("m", prio, maxWait)
	b.createdAt = now.Add(-age)
	return b
}

func TestDefaultComparator_PriorityWinsWhenFresh(t *testing.T) {
	now := time.Now()
	maxWait := time.Second

	high := agedBatch(types.PriorityHigh, 10*time.Millisecond, maxWait, now)
	low := agedBatch(types.PriorityLow, 500*time.Millisecond, maxWait, now)

	assert.True(t, DefaultComparator(now, high, low))
	assert.False(t, DefaultComparator(now, low, high))
}

func TestDefaultComparator_EscalationBeatsPriority(t *testing.T) {
	now := time.Now()
	maxWait := 50 * time.Millisecond

	// The low batch waited past its budget; a fresh high batch must yield.
	high := agedBatch(types.PriorityHigh, 10*time.Millisecond, maxWait, now)
	low := agedBatch(types.PriorityLow, 200*time.Millisecond, maxWait, now)

	assert.True(t, DefaultComparator(now, low, high))
	assert.False(t, DefaultComparator(now, high, low))
}

func TestDefaultComparator_OldestEscalatedFirst(t *testing.T) {
	now := time.Now()
	maxWait := 50 * time.Millisecond

	older := agedBatch(types.PriorityLow, 300*time.Millisecond, maxWait, now)
	newer := agedBatch(types.PriorityHigh, 100*time.Millisecond, maxWait, now)

	assert.True(t, DefaultComparator(now, older, newer))
}

func TestDefaultComparator_SamePriorityByAge(t *testing.T) {
	now := time.Now()
	maxWait := time.Second

	older := agedBatch(types.PriorityNormal, 30*time.Millisecond, maxWait, now)
	newer := agedBatch(types.PriorityNormal, 5*time.Millisecond, maxWait, now)

	assert.True(t, DefaultComparator(now, older, newer))
	assert.False(t, DefaultComparator(now, newer, older))
}

func TestBatchStateString(t *testing.T) {
	assert.Equal(t, "open", BatchOpen.String())
	assert.Equal(t, "sealed", BatchSealed.String())
	assert.Equal(t, "dispatched", BatchDispatched.String())
	assert.Equal(t, "completed", BatchCompleted.String())
	assert.Equal(t, "failed", BatchFailed.String())
	assert.Equal(t, "unknown", BatchState(99).String())
}

// TestAssembler_Properties drives a random add sequence through the
// assembler and checks the structural invariants: no sealed batch
// exceeds the size cap, every request lands in exactly one batch, and
// per-bucket order is preserved.
func TestAssembler_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxSize := rapid.IntRange(1, 8).Draw(t, "maxSize")
		models := rapid.SliceOfN(rapid.SampledFrom([]string{"m1", "m2", "m3"}), 1, 3).Draw(t, "models")
		n := rapid.IntRange(0, 64).Draw(t, "requests")

		rec := &sealRecorder{}
		// A huge max wait keeps the timer out of the picture.
		a := newAssembler(maxSize, time.Hour, rec.onSealed, zap.NewNop(), nil)

		type slot struct {
			key bucketKey
			id  string
		}
		added := make([]slot, 0, n)
		for i := 0; i < n; i++ {
			model := rapid.SampledFrom(models).Draw(t, "model")
			prio := types.Priority(rapid.IntRange(0, 2).Draw(t, "priority"))
			p := assemblerPending(fmt.Sprintf("req-%d", i), model, prio)
			if a.add(p) {
				added = append(added, slot{key: bucketKey{model: model, priority: prio}, id: p.req.ID})
			}
		}
		orphans := a.close()

		seen := make(map[string]int)
		perBucket := make(map[bucketKey][]string)
		for _, b := range rec.sealed() {
			if b.Size() > maxSize {
				t.Fatalf("sealed batch of %d exceeds cap %d", b.Size(), maxSize)
			}
			key := bucketKey{model: b.Model(), priority: b.Priority()}
			for _, p := range b.reqs {
				seen[p.req.ID]++
				perBucket[key] = append(perBucket[key], p.req.ID)
			}
		}
		for _, p := range orphans {
			seen[p.req.ID]++
			perBucket[bucketKey{model: p.req.Model, priority: p.req.Priority}] = append(
				perBucket[bucketKey{model: p.req.Model, priority: p.req.Priority}], p.req.ID)
		}

		want := make(map[bucketKey][]string)
		for _, s := range added {
			want[s.key] = append(want[s.key], s.id)
			if seen[s.id] != 1 {
				t.Fatalf("request %s delivered to %d batches", s.id, seen[s.id])
			}
		}
		for key, ids := range want {
			got := perBucket[key]
			if len(got) != len(ids) {
				t.Fatalf("bucket %v: got %d requests, want %d", key, len(got), len(ids))
			}
			for i := range ids {
				if got[i] != ids[i] {
					t.Fatalf("bucket %v: order broken at %d: got %s, want %s", key, i, got[i], ids[i])
				}
			}
		}
	})
}
