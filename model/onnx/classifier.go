// Package onnx adapts an ONNX Runtime session to the model.Model
// interface. One Classifier owns one session with fixed-shape input and
// output tensors; the batch dimension of the input shape bounds how many
// images a single Predict call can carry.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/model"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// Metadata describes the model file alongside the .onnx artifact.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	// TopK bounds the category list per prediction; zero means all classes.
	TopK int `json:"top_k"`
}

var (
	envOnce sync.Once
	envErr  error
	envRefs atomic.Int64
)

// initEnvironment initializes the shared ONNX runtime environment once per
// process. Sessions are cheap after that.
func initEnvironment() error {
	envOnce.Do(func() {
		envErr = ort.InitializeEnvironment()
	})
	if envErr == nil {
		envRefs.Add(1)
	}
	return envErr
}

// Classifier runs batched image classification through one ONNX session.
type Classifier struct {
	modelID      string
	metadata     Metadata
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	capacity     int // batch dimension of the input shape
	itemLen      int // floats per image in the input tensor
	closed       atomic.Bool
}

var _ model.Model = (*Classifier)(nil)

// New loads the model and metadata from disk and creates the session.
func New(modelID, modelPath, metadataPath string) (*Classifier, error) {
	if err := initEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx environment: %w", err)
	}

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("parse model metadata: %w", err)
	}
	if len(metadata.InputShape) < 2 || len(metadata.OutputShape) != 2 {
		return nil, fmt.Errorf("unsupported tensor shapes: input=%v output=%v",
			metadata.InputShape, metadata.OutputShape)
	}
	if len(metadata.Classes) == 0 {
		return nil, fmt.Errorf("model metadata declares no classes")
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	capacity := int(metadata.InputShape[0])
	itemLen := 1
	for _, d := range metadata.InputShape[1:] {
		itemLen *= int(d)
	}

	return &Classifier{
		modelID:      modelID,
		metadata:     metadata,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		capacity:     capacity,
		itemLen:      itemLen,
	}, nil
}

// Factory returns a model.Factory constructing classifiers from the given
// paths, so every worker owns an independent session.
func Factory(modelID, modelPath, metadataPath string) model.Factory {
	return func(_ context.Context) (model.Model, error) {
		return New(modelID, modelPath, metadataPath)
	}
}

func (c *Classifier) ID() string { return c.modelID }

// Capacity returns the maximum batch size a single Predict call accepts.
func (c *Classifier) Capacity() int { return c.capacity }

// Predict decodes and preprocesses each payload, runs one forward pass,
// and returns ranked categories per image. Undecodable payloads fail
// individually without failing the batch.
func (c *Classifier) Predict(ctx context.Context, payloads [][]byte) ([]model.Prediction, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("classifier %s is closed", c.modelID)
	}
	if len(payloads) > c.capacity {
		return nil, fmt.Errorf("batch of %d exceeds model capacity %d", len(payloads), c.capacity)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	preds := make([]model.Prediction, len(payloads))
	input := c.inputTensor.GetData()
	clear(input)

	for i, payload := range payloads {
		pixels, err := Preprocess(payload, c.metadata.ImageSize)
		if err != nil {
			preds[i] = model.Prediction{Err: fmt.Errorf("preprocess image: %w", err)}
			continue
		}
		copy(input[i*c.itemLen:(i+1)*c.itemLen], pixels)
	}

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	output := c.outputTensor.GetData()
	numClasses := int(c.metadata.OutputShape[1])
	for i := range payloads {
		if preds[i].Err != nil {
			continue
		}
		logits := output[i*numClasses : (i+1)*numClasses]
		preds[i] = model.Prediction{Categories: c.rank(logits)}
	}
	return preds, nil
}

// rank converts class logits into a confidence-sorted category list.
func (c *Classifier) rank(logits []float32) []types.Category {
	probs := softmax(logits)
	cats := make([]types.Category, 0, len(c.metadata.Classes))
	for i, class := range c.metadata.Classes {
		if i >= len(probs) {
			break
		}
		cats = append(cats, types.Category{Label: class, Confidence: probs[i]})
	}
	types.SortCategories(cats)
	if c.metadata.TopK > 0 && len(cats) > c.metadata.TopK {
		cats = cats[:c.metadata.TopK]
	}
	return cats
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	probs := make([]float32, len(logits))
	for i, v := range logits {
		e := math.Exp(float64(v - max))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}

func (c *Classifier) Healthy() bool {
	return !c.closed.Load()
}

// Close destroys the session and tensors. The shared runtime environment
// is torn down when the last classifier closes.
func (c *Classifier) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
	if envRefs.Add(-1) == 0 {
		ort.DestroyEnvironment()
	}
	return nil
}
