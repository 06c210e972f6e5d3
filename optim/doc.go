// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers and learning rate schedules for KAN training.
//
// # Overview
//
// Optimizers read the gradients accumulated in each parameter by Backward:
//   - SGD with optional momentum
//   - AdamW: Adam with decoupled weight decay
//   - ExponentialLR: multiplies the learning rate by gamma once per epoch
//
// # Basic Usage
//
//	optimizer := optim.NewAdamW(model.Parameters(), optim.AdamWConfig{
//	    LR:          1e-3,
//	    WeightDecay: 1e-5,
//	})
//	scheduler := optim.NewExponentialLR(optimizer, 0.85)
//
//	for epoch := range epochs {
//	    for _, batch := range batches {
//	        optimizer.ZeroGrad()
//	        // forward, loss, backward
//	        optimizer.Step()
//	    }
//	    scheduler.Step()
//	}
package optim
