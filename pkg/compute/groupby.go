// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package compute

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
)

var _ Operator = &GroupBy{}

// GroupBy clusters tuples with equal group-by attributes together by
// sorting ascending on them. It computes no aggregates.
type GroupBy struct {
	sortBase
}

func NewGroupBy(ctx *ExecCtx, child Operator, attrs []common.Attribute, numBuffers int) *GroupBy {
	return &GroupBy{
		sortBase: newSortBase(ctx, OpTagGroupBy, child, attrs, false, numBuffers),
	}
}

func (gb *GroupBy) Open() error {
	if len(gb.attrs) == 0 {
		return common.PreconditionError("%s needs group-by attributes", OpTagGroupBy)
	}
	return gb.open()
}

func (gb *GroupBy) Next() (*chunk.Batch, error) {
	return gb.cursor.nextBatch()
}

func (gb *GroupBy) Close() error {
	return gb.close()
}

func (gb *GroupBy) Schema() *common.Schema {
	return gb.child.Schema()
}

func (gb *GroupBy) Stats() SortStats {
	return gb.stats()
}

func (gb *GroupBy) Print(tree treeprint.Tree) {
	branch := tree.AddMetaBranch(string(OpTagGroupBy),
		fmt.Sprintf("keys %s buffers %d", gb.keyString(), gb.numBuffers))
	gb.child.Print(branch)
}
