package scheduler

import (
	"time"

	"go.uber.org/zap"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/model"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/types"
)

// resultRouter correlates batch completions back to the originating
// per-request sinks. Results are positionally aligned with the batch's
// request order; any alignment doubt fails the whole batch rather than
// risking misattributed predictions.
type resultRouter struct {
	finish func(p *pending, res *types.PredictionResult, outcome string)
	logger *zap.Logger
}

func newResultRouter(finish func(*pending, *types.PredictionResult, string), logger *zap.Logger) *resultRouter {
	return &resultRouter{
		finish: finish,
		logger: logger.With(zap.String("component", "result_router")),
	}
}

// deliver fans a completed batch's results out to the request sinks.
func (r *resultRouter) deliver(b *Batch, preds []model.Prediction, modelErr error, dur time.Duration) {
	if modelErr != nil {
		b.setState(BatchFailed)
		r.failAll(b, types.NewError(types.ErrModelError, "model failed the batch").
			WithModel(b.model).WithCause(modelErr), "model_error")
		return
	}

	if len(preds) != b.Size() {
		b.setState(BatchFailed)
		r.logger.Error("worker returned misaligned results",
			zap.String("batch_id", b.id),
			zap.String("model", b.model),
			zap.Int("requests", b.Size()),
			zap.Int("results", len(preds)),
		)
		r.failAll(b, types.NewError(types.ErrInternalContract,
			"result count does not match batch size").WithModel(b.model), "contract_error")
		return
	}

	b.setState(BatchCompleted)
	for i, p := range b.reqs {
		pred := preds[i]
		if pred.Err != nil {
			// Documented per-item failure from the model, passed through.
			r.finish(p, &types.PredictionResult{
				RequestID: p.req.ID,
				Duration:  dur,
				Err: types.NewError(types.ErrModelError, "model failed this item").
					WithModel(b.model).WithCause(pred.Err),
			}, "model_error")
			continue
		}
		cats := make([]types.Category, len(pred.Categories))
		copy(cats, pred.Categories)
		types.SortCategories(cats)
		r.finish(p, &types.PredictionResult{
			RequestID:  p.req.ID,
			Categories: cats,
			Duration:   dur,
		}, "success")
	}
}

// failAll terminates every request in the batch with the same error.
func (r *resultRouter) failAll(b *Batch, err *types.Error, outcome string) {
	for _, p := range b.reqs {
		r.finish(p, &types.PredictionResult{RequestID: p.req.ID, Err: err}, outcome)
	}
}
