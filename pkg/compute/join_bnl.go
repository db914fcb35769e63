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
	"go.uber.org/zap"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
	"github.com/daviszhen/qexec/pkg/storage"
	"github.com/daviszhen/qexec/pkg/util"
)

var _ Join = &BlockNestedLoopJoin{}

// bnljCursor is the scan position of the three nested loops:
// block[blockIdx].Get(leftRow) against rightBatch.Get(rightRow).
type bnljCursor struct {
	block      []*chunk.Batch
	blockIdx   int
	leftRow    int
	rightRow   int
	rightBatch *chunk.Batch
	reader     *storage.RunReader
	leftEOS    bool
}

func (cur *bnljCursor) closeReader() error {
	cur.rightBatch = nil
	if cur.reader == nil {
		return nil
	}
	err := cur.reader.Close()
	cur.reader = nil
	return err
}

// BlockNestedLoopJoin holds numBuffers-2 pages of the left input and
// rescans the materialized right input once per block.
type BlockNestedLoopJoin struct {
	JoinBase
	blockPages  int
	scope       *storage.RunScope
	rightTypes  []common.LType
	rightCap    int
	rightRun    string
	rightTuples int
	rightClosed bool
	blocks      int

	cur    bnljCursor
	done   bool
	closed bool
}

func NewBlockNestedLoopJoin(
	ctx *ExecCtx,
	left, right Operator,
	conds []JoinCondition,
	numBuffers int,
) *BlockNestedLoopJoin {
	return &BlockNestedLoopJoin{
		JoinBase: newJoinBase(ctx, left, right, conds, numBuffers),
	}
}

func (j *BlockNestedLoopJoin) Kind() JoinKind {
	return JoinBlockNested
}

// Blocks is the number of left blocks loaded so far.
func (j *BlockNestedLoopJoin) Blocks() int {
	return j.blocks
}

func (j *BlockNestedLoopJoin) Open() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = util.ConvertPanicError(r)
		}
	}()
	if err = j.prepare(OpTagBNLJ, MinJoinBuffers); err != nil {
		return err
	}
	j.blockPages = j.numBuffers - 2
	j.rightTypes = j.right.Schema().Types()
	j.rightCap, err = batchSizeOf(j.ctx, j.right.Schema())
	if err != nil {
		return err
	}
	j.scope = j.ctx.Runs.NewScope(string(OpTagBNLJ))
	if err = j.materializeRight(); err != nil {
		return err
	}
	if err = j.left.Open(); err != nil {
		return err
	}
	if j.rightTuples == 0 {
		j.done = true
	}
	return nil
}

// materializeRight drains the right input into one run and closes it.
func (j *BlockNestedLoopJoin) materializeRight() (err error) {
	if err = j.right.Open(); err != nil {
		return err
	}
	w, err := j.scope.Create(0, 0)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, w.Close())
	}()
	page := chunk.NewBatch(j.rightCap)
	for {
		batch, err := j.right.Next()
		if err != nil {
			return err
		}
		if batch == nil {
			break
		}
		for _, t := range batch.Tuples() {
			page.Append(t)
			if page.IsFull() {
				if err = w.WriteBatch(page); err != nil {
					return err
				}
				page.Clear()
			}
		}
	}
	if err = w.WriteBatch(page); err != nil {
		return err
	}
	j.rightRun = w.Name()
	j.rightTuples = w.Tuples()
	util.Debug("right input materialized",
		zap.String("run", j.rightRun),
		zap.Int("tuples", j.rightTuples),
		zap.Int("pages", w.Batches()))
	j.rightClosed = true
	return j.right.Close()
}

// nextBlock loads up to blockPages left batches and restarts the right
// scan. It reports false once the left input is exhausted.
func (j *BlockNestedLoopJoin) nextBlock() (bool, error) {
	cur := &j.cur
	if cur.leftEOS {
		return false, nil
	}
	block := make([]*chunk.Batch, 0, j.blockPages)
	for len(block) < j.blockPages {
		batch, err := j.left.Next()
		if err != nil {
			return false, err
		}
		if batch == nil {
			cur.leftEOS = true
			break
		}
		if batch.IsEmpty() {
			continue
		}
		block = append(block, batch)
	}
	if len(block) == 0 {
		return false, nil
	}
	reader, err := j.scope.Open(j.rightRun, j.rightTypes, j.rightCap)
	if err != nil {
		return false, err
	}
	cur.block = block
	cur.reader = reader
	cur.rightBatch = nil
	cur.blockIdx, cur.leftRow, cur.rightRow = 0, 0, 0
	j.blocks++
	return true, nil
}

func (j *BlockNestedLoopJoin) Next() (*chunk.Batch, error) {
	if j.done {
		return nil, nil
	}
	cur := &j.cur
	out := chunk.NewBatch(j.batchSize)
	for !out.IsFull() {
		if cur.block == nil {
			ok, err := j.nextBlock()
			if err != nil {
				return nil, err
			}
			if !ok {
				j.done = true
				break
			}
		}
		if cur.rightBatch == nil {
			batch, err := cur.reader.NextBatch()
			if err != nil {
				return nil, err
			}
			if batch == nil {
				if err = cur.closeReader(); err != nil {
					return nil, err
				}
				cur.block = nil
				continue
			}
			cur.rightBatch = batch
			cur.blockIdx, cur.leftRow, cur.rightRow = 0, 0, 0
		}
		if cur.rightRow >= cur.rightBatch.Size() {
			cur.rightRow = 0
			cur.leftRow++
			if cur.leftRow >= cur.block[cur.blockIdx].Size() {
				cur.leftRow = 0
				cur.blockIdx++
				if cur.blockIdx >= len(cur.block) {
					cur.rightBatch = nil
					continue
				}
			}
		}
		l := cur.block[cur.blockIdx].Get(cur.leftRow)
		r := cur.rightBatch.Get(cur.rightRow)
		cur.rightRow++
		if j.pair.Equal(l, r) {
			out.Append(l.Join(r))
		}
	}
	if out.IsEmpty() {
		return nil, nil
	}
	return out, nil
}

func (j *BlockNestedLoopJoin) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	j.done = true
	err := j.cur.closeReader()
	j.cur.block = nil
	if j.scope != nil {
		err = multierr.Append(err, j.scope.RemoveAll())
	}
	err = multierr.Append(err, j.left.Close())
	if !j.rightClosed {
		err = multierr.Append(err, j.right.Close())
	}
	return err
}

func (j *BlockNestedLoopJoin) Print(tree treeprint.Tree) {
	j.print(tree, OpTagBNLJ)
}
