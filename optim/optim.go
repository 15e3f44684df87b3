// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers that train engine variables.
//
// Example:
//
//	e := engine.Default()
//	w, _ := e.Variable(initial, true, "w")
//	sgd := optim.NewSGD(e, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
//	defer sgd.Dispose()
//
//	for range steps {
//	    if _, err := sgd.Minimize(loss, false); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"github.com/born-ml/engine/engine"
	"github.com/born-ml/engine/internal/optim"
)

// Optimizer updates variables to minimize a scalar loss.
type Optimizer = optim.Optimizer

// Config is the configuration shared by all optimizers.
type Config = optim.Config

// SGD is stochastic gradient descent with optional momentum.
type SGD = optim.SGD

// SGDConfig configures SGD.
type SGDConfig = optim.SGDConfig

// NewSGD creates an SGD optimizer for the variables of e.
func NewSGD(e *engine.Engine, config SGDConfig) *SGD {
	return optim.NewSGD(e, config)
}
