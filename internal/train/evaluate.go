package train

import (
	"time"

	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/mnist"
	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/quant"
	"github.com/born-ml/kan/internal/tensor"
)

// Model is anything that maps a batch of images to logits.
type Model interface {
	Forward(x *tensor.Tensor) *tensor.Tensor
}

// EvalResult is the outcome of one pass over a dataset.
type EvalResult struct {
	Loss     float64 // mean batch loss
	Accuracy float64 // mean batch accuracy
	Samples  int
	Duration time.Duration // wall-clock time of the whole pass
}

// Evaluate runs model over ds in dataset order, without gradients.
func Evaluate(model Model, ds *mnist.Dataset, batchSize int) EvalResult {
	criterion := nn.NewCrossEntropyLoss()
	start := time.Now()
	var result EvalResult
	batches := ds.Batches(batchSize, nil)
	for _, batch := range batches {
		logits := model.Forward(batch.Images)
		loss, _ := criterion.Forward(logits, batch.Labels)
		result.Loss += float64(loss)
		result.Accuracy += nn.Accuracy(logits, batch.Labels)
		result.Samples += batch.Size()
	}
	result.Duration = time.Since(start)
	if len(batches) > 0 {
		result.Loss /= float64(len(batches))
		result.Accuracy /= float64(len(batches))
	}
	return result
}

// QuantizationResult compares a model with its dynamically quantized copy.
type QuantizationResult struct {
	Report    *quant.Report
	Quantized EvalResult
	Original  EvalResult
}

// Speedup returns the original evaluation time over the quantized one.
func (r QuantizationResult) Speedup() float64 {
	if r.Quantized.Duration == 0 {
		return 0
	}
	return float64(r.Original.Duration) / float64(r.Quantized.Duration)
}

// QuantizeAndEvaluate quantizes model, then evaluates the quantized copy and the original on
// ds, in that order, timing both.
func QuantizeAndEvaluate(model *kan.Stack, ds *mnist.Dataset, batchSize int) (*kan.Stack, QuantizationResult) {
	quantized, report := quant.QuantizeDynamic(model)
	result := QuantizationResult{Report: report}
	result.Quantized = Evaluate(quantized, ds, batchSize)
	result.Original = Evaluate(model, ds, batchSize)
	return quantized, result
}
