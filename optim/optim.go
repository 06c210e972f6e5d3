// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/optim"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// SGD (Stochastic Gradient Descent)

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}

// AdamW (Adam with decoupled weight decay)

// AdamW represents the AdamW optimizer.
type AdamW = optim.AdamW

// AdamWConfig contains configuration for the AdamW optimizer.
type AdamWConfig = optim.AdamWConfig

// NewAdamW creates a new AdamW optimizer with bias correction.
//
// Example:
//
//	optimizer := optim.NewAdamW(model.Parameters(), optim.AdamWConfig{
//	    LR:          0.001,
//	    Betas:       [2]float32{0.9, 0.999},
//	    WeightDecay: 1e-5,
//	})
func NewAdamW(params []*nn.Parameter, config AdamWConfig) *AdamW {
	return optim.NewAdamW(params, config)
}

// Schedules

// ExponentialLR decays the learning rate by gamma every epoch.
type ExponentialLR = optim.ExponentialLR

// NewExponentialLR wraps optimizer, taking its current learning rate as the base.
func NewExponentialLR(optimizer Optimizer, gamma float64) *ExponentialLR {
	return optim.NewExponentialLR(optimizer, gamma)
}
