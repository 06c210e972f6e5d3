package optim

import "math"

// ExponentialLR multiplies the learning rate by gamma every Step:
//
//	lr_epoch = base_lr * gamma^epoch
type ExponentialLR struct {
	optimizer Optimizer
	baseLR    float32
	gamma     float64
	epoch     int
}

// NewExponentialLR wraps optimizer, taking its current learning rate as the base.
func NewExponentialLR(optimizer Optimizer, gamma float64) *ExponentialLR {
	return &ExponentialLR{
		optimizer: optimizer,
		baseLR:    optimizer.GetLR(),
		gamma:     gamma,
	}
}

// Step advances one epoch and updates the optimizer's learning rate.
func (s *ExponentialLR) Step() {
	s.epoch++
	s.optimizer.SetLR(s.LRAt(s.epoch))
}

// LRAt returns the learning rate after epoch steps.
func (s *ExponentialLR) LRAt(epoch int) float32 {
	return float32(float64(s.baseLR) * math.Pow(s.gamma, float64(epoch)))
}

// Epoch returns the number of Step calls so far.
func (s *ExponentialLR) Epoch() int {
	return s.epoch
}

// SetEpoch sets the epoch count, e.g. when resuming from a checkpoint, and updates the
// learning rate accordingly.
func (s *ExponentialLR) SetEpoch(epoch int) {
	s.epoch = epoch
	s.optimizer.SetLR(s.LRAt(epoch))
}
