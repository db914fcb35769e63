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

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
)

var _ Operator = &Project{}

// Project keeps the listed attributes of its child. It re-pages the
// output because the projected tuples are smaller.
type Project struct {
	ctx       *ExecCtx
	child     Operator
	attrs     []common.Attribute
	schema    *common.Schema
	attrIndex []int
	batchSize int

	inBatch *chunk.Batch
	inPos   int
	eos     bool
}

func NewProject(ctx *ExecCtx, child Operator, attrs []common.Attribute) (*Project, error) {
	schema, err := child.Schema().SubSchema(attrs)
	if err != nil {
		return nil, err
	}
	return &Project{
		ctx:    ctx,
		child:  child,
		attrs:  attrs,
		schema: schema,
	}, nil
}

func (proj *Project) Open() error {
	var err error
	proj.attrIndex, err = proj.child.Schema().Resolve(proj.attrs)
	if err != nil {
		return err
	}
	proj.batchSize, err = batchSizeOf(proj.ctx, proj.schema)
	if err != nil {
		return err
	}
	return proj.child.Open()
}

func (proj *Project) Next() (*chunk.Batch, error) {
	if proj.eos {
		return nil, nil
	}
	out := chunk.NewBatch(proj.batchSize)
	for !out.IsFull() {
		if proj.inBatch == nil || proj.inPos >= proj.inBatch.Size() {
			batch, err := proj.child.Next()
			if err != nil {
				return nil, err
			}
			if batch == nil {
				proj.eos = true
				break
			}
			proj.inBatch, proj.inPos = batch, 0
			continue
		}
		out.Append(proj.inBatch.Get(proj.inPos).Project(proj.attrIndex))
		proj.inPos++
	}
	if out.IsEmpty() {
		return nil, nil
	}
	return out, nil
}

func (proj *Project) Close() error {
	proj.inBatch = nil
	proj.eos = true
	return proj.child.Close()
}

func (proj *Project) Schema() *common.Schema {
	return proj.schema
}

func (proj *Project) Print(tree treeprint.Tree) {
	branch := tree.AddMetaBranch(string(OpTagProject), proj.schema.String())
	proj.child.Print(branch)
}
