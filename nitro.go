/*
 * Copyright 2025 Nitro Project Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package nitro

import (
    `github.com/nitrovm/nitro/ssa`
)

// Options controls the optimization pipeline.
type Options struct {
    // AOT indicates that the generated code never deoptimizes back into an
    // unoptimized frame, which allows more aggressive catch-entry pruning.
    AOT bool

    // NoCatchEntryPruning disables catch-entry state pruning entirely.
    NoCatchEntryPruning bool
}

// Option is the property setter function for Options.
type Option func(*Options)

// WithAOT marks the graph as being compiled ahead-of-time.
func WithAOT() Option {
    return func(o *Options) {
        o.AOT = true
    }
}

// WithoutCatchEntryPruning keeps every catch-entry placeholder alive.
func WithoutCatchEntryPruning() Option {
    return func(o *Options) {
        o.NoCatchEntryPruning = true
    }
}

// Optimize removes redundant loads, stores and computations from cfg, and
// prunes the catch-entry states the handlers cannot observe.
func Optimize(cfg *ssa.CFG, options ...Option) {
    var o Options
    for _, fn := range options {
        fn(&o)
    }
    ssa.RunRedundancyElimination(cfg)
    if !o.NoCatchEntryPruning {
        ssa.OptimizeCatchEntryStates(cfg, o.AOT)
    }
}
