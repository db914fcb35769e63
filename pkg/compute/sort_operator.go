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

	"go.uber.org/multierr"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
	"github.com/daviszhen/qexec/pkg/storage"
	"github.com/daviszhen/qexec/pkg/util"
)

// runCursor reads a sorted run one tuple at a time.
type runCursor struct {
	reader *storage.RunReader
	batch  *chunk.Batch
	pos    int
	eos    bool
}

func (rc *runCursor) peek() (chunk.Tuple, bool, error) {
	for rc.batch == nil || rc.pos >= rc.batch.Size() {
		if rc.eos || rc.reader == nil {
			return chunk.Tuple{}, false, nil
		}
		batch, err := rc.reader.NextBatch()
		if err != nil {
			return chunk.Tuple{}, false, err
		}
		if batch == nil {
			rc.eos = true
			rc.batch = nil
			return chunk.Tuple{}, false, nil
		}
		rc.batch, rc.pos = batch, 0
	}
	return rc.batch.Get(rc.pos), true, nil
}

func (rc *runCursor) advance() {
	rc.pos++
}

// nextBatch hands out the rest of the current page, or the next page.
func (rc *runCursor) nextBatch() (*chunk.Batch, error) {
	if rc.batch != nil && rc.pos < rc.batch.Size() {
		out := chunk.NewBatch(rc.batch.Cap())
		for ; rc.pos < rc.batch.Size(); rc.pos++ {
			out.Append(rc.batch.Get(rc.pos))
		}
		return out, nil
	}
	if rc.eos || rc.reader == nil {
		return nil, nil
	}
	batch, err := rc.reader.NextBatch()
	if err != nil {
		return nil, err
	}
	if batch == nil {
		rc.eos = true
	}
	rc.batch, rc.pos = nil, 0
	return batch, nil
}

func (rc *runCursor) close() error {
	rc.batch = nil
	rc.eos = true
	if rc.reader == nil {
		return nil
	}
	err := rc.reader.Close()
	rc.reader = nil
	return err
}

// sortBase is shared by the operators that consume one external sort of
// their child: OrderBy, GroupBy and Distinct.
type sortBase struct {
	ctx        *ExecCtx
	tag        OpTag
	child      Operator
	attrs      []common.Attribute
	desc       bool
	numBuffers int

	keys      []int
	batchSize int
	scope     *storage.RunScope
	sorter    *ExternalSort
	cursor    runCursor
	closed    bool
}

func newSortBase(
	ctx *ExecCtx,
	tag OpTag,
	child Operator,
	attrs []common.Attribute,
	desc bool,
	numBuffers int,
) sortBase {
	return sortBase{
		ctx:        ctx,
		tag:        tag,
		child:      child,
		attrs:      attrs,
		desc:       desc,
		numBuffers: numBuffers,
	}
}

// open checks the preconditions, then sorts the whole child into one
// run and positions the cursor at its beginning. Empty attrs sorts on
// every attribute.
func (sb *sortBase) open() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = util.ConvertPanicError(r)
		}
	}()
	if err = checkBuffers(sb.tag, sb.numBuffers, MinSortBuffers); err != nil {
		return err
	}
	schema := sb.child.Schema()
	if len(sb.attrs) == 0 {
		sb.keys = chunk.AllKeys(schema.Len())
	} else {
		sb.keys, err = schema.Resolve(sb.attrs)
		if err != nil {
			return err
		}
	}
	sb.batchSize, err = batchSizeOf(sb.ctx, schema)
	if err != nil {
		return err
	}
	sb.scope = sb.ctx.Runs.NewScope(string(sb.tag))
	sb.sorter, err = NewExternalSort(sb.scope, schema, sb.keys, sb.desc, sb.numBuffers, sb.batchSize)
	if err != nil {
		return err
	}
	if err = sb.child.Open(); err != nil {
		return err
	}
	final, err := sb.sorter.Sort(sb.child)
	if err != nil {
		return err
	}
	sb.cursor.reader, err = sb.sorter.OpenResult(final)
	return err
}

func (sb *sortBase) stats() SortStats {
	if sb.sorter == nil {
		return SortStats{}
	}
	return sb.sorter.Stats()
}

func (sb *sortBase) close() error {
	if sb.closed {
		return nil
	}
	sb.closed = true
	err := sb.cursor.close()
	if sb.scope != nil {
		err = multierr.Append(err, sb.scope.RemoveAll())
	}
	return multierr.Append(err, sb.child.Close())
}

func (sb *sortBase) keyString() string {
	if len(sb.attrs) == 0 {
		return "*"
	}
	return fmt.Sprint(sb.attrs)
}
