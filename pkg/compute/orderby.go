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

var _ Operator = &OrderBy{}

// OrderBy sorts its child on the order-by attributes, ascending or
// descending. Tuples with equal keys keep their input order.
type OrderBy struct {
	sortBase
}

func NewOrderBy(ctx *ExecCtx, child Operator, attrs []common.Attribute, desc bool, numBuffers int) *OrderBy {
	return &OrderBy{
		sortBase: newSortBase(ctx, OpTagOrderBy, child, attrs, desc, numBuffers),
	}
}

func (ob *OrderBy) Open() error {
	return ob.open()
}

func (ob *OrderBy) Next() (*chunk.Batch, error) {
	return ob.cursor.nextBatch()
}

func (ob *OrderBy) Close() error {
	return ob.close()
}

func (ob *OrderBy) Schema() *common.Schema {
	return ob.child.Schema()
}

func (ob *OrderBy) Stats() SortStats {
	return ob.stats()
}

func (ob *OrderBy) Print(tree treeprint.Tree) {
	dir := "asc"
	if ob.desc {
		dir = "desc"
	}
	branch := tree.AddMetaBranch(string(OpTagOrderBy),
		fmt.Sprintf("keys %s %s buffers %d", ob.keyString(), dir, ob.numBuffers))
	ob.child.Print(branch)
}
