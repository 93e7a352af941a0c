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

package ssa

type Pass interface {
    Apply(*CFG)
}

type PassDescriptor struct {
    Pass Pass
    Name string
}

var Passes = [...]PassDescriptor {
    { Name: "Redundancy Elimination"       , Pass: new(RedundancyElim) },
    { Name: "Dead Store Elimination"       , Pass: new(DeadStoreElim) },
    { Name: "Trivial Dead Code Elimination", Pass: new(TDCE) },
}

/* RunRedundancyElimination applies the full redundancy-elimination pipeline
 * to the graph, the block structure is left untouched so the dominator tree
 * stays valid throughout. */
func RunRedundancyElimination(cfg *CFG) {
    for _, p := range Passes {
        p.Pass.Apply(cfg)
    }
}
