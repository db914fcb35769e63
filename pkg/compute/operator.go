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
	"github.com/daviszhen/qexec/pkg/storage"
	"github.com/daviszhen/qexec/pkg/util"
)

// Operator is the pull based iterator every operator exposes.
//
// Open prepares the operator. Sort and join operators do all their run
// generation and merging here. Next returns the next batch, or nil at
// the end of the stream, and keeps returning nil afterwards. Close
// releases temporary runs and open streams and closes the children.
type Operator interface {
	Open() error
	Next() (*chunk.Batch, error)
	Close() error
	Schema() *common.Schema
	Print(tree treeprint.Tree)
}

type OpTag string

const (
	OpTagValues   OpTag = "Values"
	OpTagFileScan OpTag = "FileScan"
	OpTagProject  OpTag = "Project"
	OpTagOrderBy  OpTag = "Orderby"
	OpTagGroupBy  OpTag = "Groupby"
	OpTagDistinct OpTag = "Distinct"
	OpTagBNLJ     OpTag = "BlockNestedJoin"
	OpTagSMJ      OpTag = "SortMergeJoin"
)

const (
	MinSortBuffers = 3
	MinJoinBuffers = 3
)

// ExecCtx carries the settings and the run manager shared by the
// operators of one query.
type ExecCtx struct {
	Cfg  *util.Config
	Runs *storage.RunManager
}

func NewExecCtx(cfg *util.Config) (*ExecCtx, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	runs, err := storage.NewRunManager(cfg.Engine.TempDir, cfg.Engine.PageSize)
	if err != nil {
		return nil, err
	}
	return &ExecCtx{
		Cfg:  cfg,
		Runs: runs,
	}, nil
}

func (ctx *ExecCtx) PageSize() int {
	return ctx.Cfg.Engine.PageSize
}

func (ctx *ExecCtx) NumBuffers() int {
	return ctx.Cfg.Engine.NumBuffers
}

func (ctx *ExecCtx) Close() error {
	return ctx.Runs.Close()
}

// batchSizeOf is the page capacity for tuples of schema.
func batchSizeOf(ctx *ExecCtx, schema *common.Schema) (int, error) {
	size := chunk.BatchCapacity(ctx.PageSize(), schema.TupleSize())
	if size < 1 {
		return 0, common.PreconditionError("page size %d is smaller than tuple size %d",
			ctx.PageSize(), schema.TupleSize())
	}
	return size, nil
}

func checkBuffers(op OpTag, numBuffers, least int) error {
	if numBuffers < least {
		return common.PreconditionError("%s needs at least %d buffers, got %d", op, least, numBuffers)
	}
	return nil
}

// Explain renders the operator tree.
func Explain(op Operator) string {
	tree := treeprint.NewWithRoot("Operators:")
	op.Print(tree)
	return tree.String()
}

// Drain pulls every batch from an opened operator.
func Drain(op Operator) ([]chunk.Tuple, error) {
	ret := make([]chunk.Tuple, 0)
	for {
		batch, err := op.Next()
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return ret, nil
		}
		ret = append(ret, batch.Tuples()...)
	}
}

// Execute opens op, drains it and closes it.
func Execute(op Operator) (ret []chunk.Tuple, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = util.ConvertPanicError(r)
		}
	}()
	if err = op.Open(); err != nil {
		_ = op.Close()
		return nil, err
	}
	ret, err = Drain(op)
	cerr := op.Close()
	if err != nil {
		return nil, err
	}
	return ret, cerr
}
