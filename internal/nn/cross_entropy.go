package nn

import (
	"math"

	"github.com/gomlx/exceptions"

	"github.com/born-ml/kan/internal/tensor"
)

// CrossEntropyLoss computes cross-entropy loss for multi-class classification.
//
// This implementation uses the LogSoftmax + NLLLoss decomposition for
// numerical stability.
//
// Mathematical Formulation:
//
//	Loss = mean_b(-log_probs[b, target_b])
//	where log_probs = LogSoftmax(logits)
//
// Gradient:
//
//	∂L/∂logits = (Softmax(logits) - y_one_hot) / batch_size
//
// Usage:
//
//	criterion := nn.NewCrossEntropyLoss()
//	logits := model.Forward(input)                // [batch_size, num_classes]
//	loss, grad := criterion.Forward(logits, labels) // labels: class indices
type CrossEntropyLoss struct{}

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

// Forward computes the mean cross-entropy loss and its gradient with respect to logits.
//
// Panics if logits is not [batch_size, num_classes], if len(targets) != batch_size or if a
// target is out of range: these are wiring bugs, not data errors.
func (c *CrossEntropyLoss) Forward(logits *tensor.Tensor, targets []int) (float32, *tensor.Tensor) {
	if logits.Rank() != 2 {
		exceptions.Panicf("CrossEntropyLoss: logits must be 2D [batch_size, num_classes], got %s", logits.Shape())
	}
	batchSize, numClasses := logits.Dim(0), logits.Dim(1)
	if len(targets) != batchSize {
		exceptions.Panicf("CrossEntropyLoss: got %d targets for batch of %d", len(targets), batchSize)
	}

	grad := tensor.Zeros(logits.Shape())
	invBatch := 1.0 / float64(batchSize)
	totalLoss := 0.0
	for b := 0; b < batchSize; b++ {
		target := targets[b]
		if target < 0 || target >= numClasses {
			exceptions.Panicf("CrossEntropyLoss: target %d out of range [0, %d)", target, numClasses)
		}
		logProbs := logSoftmax(logits.Row(b))
		totalLoss -= logProbs[target]

		g := grad.Row(b)
		for j, lp := range logProbs {
			p := math.Exp(lp)
			if j == target {
				p -= 1
			}
			g[j] = float32(p * invBatch)
		}
	}
	return float32(totalLoss * invBatch), grad
}

// Accuracy returns the fraction of rows whose argmax equals the target.
func Accuracy(logits *tensor.Tensor, targets []int) float64 {
	predictions := logits.ArgMaxRows()
	if len(predictions) == 0 {
		return 0
	}
	correct := 0
	for i, p := range predictions {
		if p == targets[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(predictions))
}

// logSoftmax computes log-softmax with the log-sum-exp trick, in float64.
func logSoftmax(logits []float32) []float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, float64(v))
	}
	sumExp := 0.0
	for _, v := range logits {
		sumExp += math.Exp(float64(v) - maxLogit)
	}
	logSumExp := maxLogit + math.Log(sumExp)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = float64(v) - logSumExp
	}
	return out
}
