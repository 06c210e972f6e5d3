// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the neural network building blocks shared by KAN layers.
//
// # Overview
//
// This package contains:
//   - Parameter: a named tensor with its accumulated gradient
//   - Activations: identity, SiLU, ReLU, Tanh and GELU with their derivatives
//   - LayerNorm and PReLU, the optional post-processing of a KAN layer
//   - CrossEntropyLoss and Accuracy for classification
//   - Initializers: Kaiming and Xavier uniform, normal, constant
//   - Checkpoints: model and optimizer state in the .born format
//
// # Training step
//
// Layers compute their gradients explicitly: a traced forward pass followed by Backward.
//
//	criterion := nn.NewCrossEntropyLoss()
//	optimizer.ZeroGrad()
//	logits, trace := model.ForwardTrace(images)
//	loss, grad := criterion.Forward(logits, labels)
//	model.Backward(trace, grad)
//	optimizer.Step()
//
// # Checkpoints
//
//	checkpoint := &nn.Checkpoint{
//	    Model:     model,
//	    Optimizer: optimizer,
//	    Epoch:     epoch,
//	    Loss:      loss,
//	}
//	err := checkpoint.Save("checkpoint.born")
package nn
