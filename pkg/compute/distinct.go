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

var _ Operator = &Distinct{}

// Distinct sorts on all attributes and drops adjacent duplicates. The
// last distinct tuple seen is held back as pending until a different
// tuple or the end of the run proves it is the last of its group.
type Distinct struct {
	sortBase
	cmp        chunk.KeyComparator
	pending    chunk.Tuple
	hasPending bool
	done       bool
}

func NewDistinct(ctx *ExecCtx, child Operator, numBuffers int) *Distinct {
	return &Distinct{
		sortBase: newSortBase(ctx, OpTagDistinct, child, nil, false, numBuffers),
	}
}

func (d *Distinct) Open() error {
	if err := d.open(); err != nil {
		return err
	}
	d.cmp = chunk.NewKeyComparator(d.keys, false)
	return nil
}

func (d *Distinct) Next() (*chunk.Batch, error) {
	if d.done {
		return nil, nil
	}
	out := chunk.NewBatch(d.batchSize)
	for !out.IsFull() {
		t, ok, err := d.cursor.peek()
		if err != nil {
			return nil, err
		}
		if !ok {
			if d.hasPending {
				out.Append(d.pending)
				d.hasPending = false
			}
			d.done = true
			break
		}
		d.cursor.advance()
		if d.hasPending && d.cmp.Compare(d.pending, t) == 0 {
			continue
		}
		if d.hasPending {
			out.Append(d.pending)
		}
		d.pending, d.hasPending = t, true
	}
	if out.IsEmpty() {
		return nil, nil
	}
	return out, nil
}

func (d *Distinct) Close() error {
	d.done = true
	d.hasPending = false
	return d.close()
}

func (d *Distinct) Schema() *common.Schema {
	return d.child.Schema()
}

func (d *Distinct) Stats() SortStats {
	return d.stats()
}

func (d *Distinct) Print(tree treeprint.Tree) {
	branch := tree.AddMetaBranch(string(OpTagDistinct), fmt.Sprintf("buffers %d", d.numBuffers))
	d.child.Print(branch)
}
