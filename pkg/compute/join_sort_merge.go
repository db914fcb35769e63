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
	"github.com/xlab/treeprint"
	"go.uber.org/multierr"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/storage"
	"github.com/daviszhen/qexec/pkg/util"
)

var _ Join = &SortMergeJoin{}

// smjCursor is the merge position. partition holds the right tuples of
// the current equal-key group; partPos is the next one to pair with the
// current left tuple, so partPos > 0 means the left tuple has already
// produced output.
type smjCursor struct {
	left      runCursor
	right     runCursor
	partition []chunk.Tuple
	partPos   int
}

func (cur *smjCursor) clearPartition() {
	clear(cur.partition)
	cur.partition = cur.partition[:0]
	cur.partPos = 0
}

// SortMergeJoin sorts both inputs on their join attributes and merges
// the two sorted runs once. Every equal-key group yields its full cross
// product.
type SortMergeJoin struct {
	JoinBase
	leftScope  *storage.RunScope
	rightScope *storage.RunScope
	leftSort   *ExternalSort
	rightSort  *ExternalSort
	rightKeys  chunk.KeyComparator

	cur    smjCursor
	done   bool
	closed bool
}

func NewSortMergeJoin(
	ctx *ExecCtx,
	left, right Operator,
	conds []JoinCondition,
	numBuffers int,
) *SortMergeJoin {
	return &SortMergeJoin{
		JoinBase: newJoinBase(ctx, left, right, conds, numBuffers),
	}
}

func (j *SortMergeJoin) Kind() JoinKind {
	return JoinSortMerge
}

func (j *SortMergeJoin) LeftStats() SortStats {
	if j.leftSort == nil {
		return SortStats{}
	}
	return j.leftSort.Stats()
}

func (j *SortMergeJoin) RightStats() SortStats {
	if j.rightSort == nil {
		return SortStats{}
	}
	return j.rightSort.Stats()
}

func (j *SortMergeJoin) Open() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = util.ConvertPanicError(r)
		}
	}()
	if err = j.prepare(OpTagSMJ, MinJoinBuffers); err != nil {
		return err
	}
	leftSize, err := batchSizeOf(j.ctx, j.left.Schema())
	if err != nil {
		return err
	}
	rightSize, err := batchSizeOf(j.ctx, j.right.Schema())
	if err != nil {
		return err
	}
	j.rightKeys = chunk.NewKeyComparator(j.rightIdx, false)
	j.leftScope = j.ctx.Runs.NewScope(string(OpTagSMJ) + "Left")
	j.rightScope = j.ctx.Runs.NewScope(string(OpTagSMJ) + "Right")
	j.leftSort, err = NewExternalSort(j.leftScope, j.left.Schema(), j.leftIdx, false, j.numBuffers, leftSize)
	if err != nil {
		return err
	}
	j.rightSort, err = NewExternalSort(j.rightScope, j.right.Schema(), j.rightIdx, false, j.numBuffers, rightSize)
	if err != nil {
		return err
	}
	j.cur.left.reader, err = sortChild(j.left, j.leftSort)
	if err != nil {
		return err
	}
	j.cur.right.reader, err = sortChild(j.right, j.rightSort)
	return err
}

func sortChild(child Operator, sorter *ExternalSort) (*storage.RunReader, error) {
	if err := child.Open(); err != nil {
		return nil, err
	}
	final, err := sorter.Sort(child)
	if err != nil {
		return nil, err
	}
	return sorter.OpenResult(final)
}

func (j *SortMergeJoin) Next() (*chunk.Batch, error) {
	if j.done {
		return nil, nil
	}
	cur := &j.cur
	out := chunk.NewBatch(j.batchSize)
	for !out.IsFull() {
		l, ok, err := cur.left.peek()
		if err != nil {
			return nil, err
		}
		if !ok {
			j.done = true
			break
		}
		if len(cur.partition) > 0 {
			c := j.pair.Compare(l, cur.partition[0])
			if c == 0 {
				if cur.partPos < len(cur.partition) {
					out.Append(l.Join(cur.partition[cur.partPos]))
					cur.partPos++
				} else {
					cur.left.advance()
					cur.partPos = 0
				}
				continue
			}
			if c < 0 {
				cur.left.advance()
				continue
			}
			// left moved past the group
			cur.clearPartition()
		}
		r, ok, err := cur.right.peek()
		if err != nil {
			return nil, err
		}
		if !ok {
			j.done = true
			break
		}
		switch c := j.pair.Compare(l, r); {
		case c < 0:
			cur.left.advance()
		case c > 0:
			cur.right.advance()
		default:
			if err = j.loadPartition(r); err != nil {
				return nil, err
			}
		}
	}
	if out.IsEmpty() {
		return nil, nil
	}
	return out, nil
}

// loadPartition reads every right tuple whose key equals first's. The
// right cursor ends just past the group.
func (j *SortMergeJoin) loadPartition(first chunk.Tuple) error {
	cur := &j.cur
	cur.partition = append(cur.partition, first)
	cur.partPos = 0
	cur.right.advance()
	for {
		r, ok, err := cur.right.peek()
		if err != nil {
			return err
		}
		if !ok || j.rightKeys.Compare(first, r) != 0 {
			return nil
		}
		cur.partition = append(cur.partition, r)
		cur.right.advance()
	}
}

func (j *SortMergeJoin) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	j.done = true
	j.cur.clearPartition()
	err := multierr.Combine(j.cur.left.close(), j.cur.right.close())
	if j.leftScope != nil {
		err = multierr.Append(err, j.leftScope.RemoveAll())
	}
	if j.rightScope != nil {
		err = multierr.Append(err, j.rightScope.RemoveAll())
	}
	return multierr.Append(err, multierr.Combine(j.left.Close(), j.right.Close()))
}

func (j *SortMergeJoin) Print(tree treeprint.Tree) {
	j.print(tree, OpTagSMJ)
}
