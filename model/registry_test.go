package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

func TestRegistry_LoadKnown(t *testing.T) {
	reg := NewRegistry()
	reg.Register("resnet50", func(ctx context.Context) (Model, error) {
		return NewMock("resnet50"), nil
	})

	assert.True(t, reg.Known("resnet50"))
	assert.False(t, reg.Known("efficientnet"))
	assert.ElementsMatch(t, []string{"resnet50"}, reg.Names())

	m, err := reg.Load(context.Background(), "resnet50")
	require.NoError(t, err)
	assert.Equal(t, "resnet50", m.ID())
}

func TestRegistry_LoadUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Load(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("model file corrupt")
	reg.Register("bad", func(ctx context.Context) (Model, error) {
		return nil, boom
	})

	_, err := reg.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestMock_Predict(t *testing.T) {
	m := NewMock("m")
	m.Categories = []types.Category{{Label: "dog", Confidence: 0.9}}

	preds, err := m.Predict(context.Background(), [][]byte{{1}, {2}, {3}})
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, "dog", preds[0].Categories[0].Label)
	assert.EqualValues(t, 1, m.Calls())
	assert.EqualValues(t, 3, m.Items())
}

func TestMock_PerItemError(t *testing.T) {
	m := NewMock("m")
	m.ItemErr = errors.New("decode failure")
	m.ItemErrIndex = 1

	preds, err := m.Predict(context.Background(), [][]byte{{1}, {2}, {3}})
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.NoError(t, preds[0].Err)
	assert.Error(t, preds[1].Err)
	assert.NoError(t, preds[2].Err)
}

func TestMock_BatchError(t *testing.T) {
	m := NewMock("m")
	m.BatchErr = errors.New("session crashed")

	_, err := m.Predict(context.Background(), [][]byte{{1}})
	assert.Error(t, err)
}

func TestMock_HangRespectsContext(t *testing.T) {
	m := NewMock("m")
	m.Hang = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Predict(ctx, [][]byte{{1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMock_Health(t *testing.T) {
	m := NewMock("m")
	assert.True(t, m.Healthy())
	m.Unhealthy.Store(true)
	assert.False(t, m.Healthy())

	m2 := NewMock("m2")
	require.NoError(t, m2.Close())
	assert.False(t, m2.Healthy())
}
