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

var _ Operator = &ValuesScan{}

// ValuesScan emits a fixed list of tuples in pages.
type ValuesScan struct {
	ctx       *ExecCtx
	schema    *common.Schema
	tuples    []chunk.Tuple
	batchSize int
	pos       int
}

func NewValuesScan(ctx *ExecCtx, schema *common.Schema, tuples []chunk.Tuple) *ValuesScan {
	return &ValuesScan{
		ctx:    ctx,
		schema: schema,
		tuples: tuples,
	}
}

func (scan *ValuesScan) Open() error {
	var err error
	scan.batchSize, err = batchSizeOf(scan.ctx, scan.schema)
	if err != nil {
		return err
	}
	for i, t := range scan.tuples {
		if t.Len() != scan.schema.Len() {
			return common.PreconditionError("tuple %d has %d fields, schema has %d", i, t.Len(), scan.schema.Len())
		}
	}
	scan.pos = 0
	return nil
}

func (scan *ValuesScan) Next() (*chunk.Batch, error) {
	if scan.pos >= len(scan.tuples) {
		return nil, nil
	}
	batch := chunk.NewBatch(scan.batchSize)
	for scan.pos < len(scan.tuples) && !batch.IsFull() {
		batch.Append(scan.tuples[scan.pos])
		scan.pos++
	}
	return batch, nil
}

func (scan *ValuesScan) Close() error {
	scan.pos = len(scan.tuples)
	return nil
}

func (scan *ValuesScan) Schema() *common.Schema {
	return scan.schema
}

func (scan *ValuesScan) Print(tree treeprint.Tree) {
	tree.AddMetaNode(string(OpTagValues), fmt.Sprintf("%s rows %d", scan.schema, len(scan.tuples)))
}
