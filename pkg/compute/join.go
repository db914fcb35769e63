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

	"github.com/huandu/go-clone"
	"github.com/xlab/treeprint"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
)

type JoinKind int

const (
	JoinBlockNested JoinKind = iota
	JoinSortMerge
)

func (kind JoinKind) String() string {
	switch kind {
	case JoinBlockNested:
		return string(OpTagBNLJ)
	case JoinSortMerge:
		return string(OpTagSMJ)
	default:
		return fmt.Sprintf("JoinKind(%d)", int(kind))
	}
}

// JoinCondition is one equality left.attr = right.attr.
type JoinCondition struct {
	Left  common.Attribute
	Right common.Attribute
}

func (cond JoinCondition) String() string {
	return fmt.Sprintf("%s = %s", cond.Left, cond.Right)
}

// Join is the common surface of the equi-join algorithms.
type Join interface {
	Operator
	Kind() JoinKind
	Conditions() []JoinCondition
	LeftIndex() []int
	RightIndex() []int
}

// JoinBase holds what every join algorithm shares. Algorithms embed it.
type JoinBase struct {
	ctx        *ExecCtx
	left       Operator
	right      Operator
	conds      []JoinCondition
	schema     *common.Schema
	numBuffers int

	leftIdx   []int
	rightIdx  []int
	pair      chunk.PairComparator
	batchSize int
}

func newJoinBase(ctx *ExecCtx, left, right Operator, conds []JoinCondition, numBuffers int) JoinBase {
	return JoinBase{
		ctx:        ctx,
		left:       left,
		right:      right,
		conds:      conds,
		schema:     left.Schema().Join(right.Schema()),
		numBuffers: numBuffers,
	}
}

// prepare resolves the join attributes and the output page capacity.
// It does no IO.
func (jb *JoinBase) prepare(tag OpTag, least int) error {
	if err := checkBuffers(tag, jb.numBuffers, least); err != nil {
		return err
	}
	if len(jb.conds) == 0 {
		return common.PreconditionError("%s needs at least one join condition", tag)
	}
	jb.leftIdx = make([]int, len(jb.conds))
	jb.rightIdx = make([]int, len(jb.conds))
	lschema, rschema := jb.left.Schema(), jb.right.Schema()
	for i, cond := range jb.conds {
		l := lschema.IndexOf(cond.Left)
		if l < 0 {
			return common.PreconditionError("no attribute %s in left input %s", cond.Left, lschema)
		}
		r := rschema.IndexOf(cond.Right)
		if r < 0 {
			return common.PreconditionError("no attribute %s in right input %s", cond.Right, rschema)
		}
		lt, rt := lschema.Attrs[l].Typ, rschema.Attrs[r].Typ
		if lt.Id != rt.Id {
			return common.PreconditionError("join condition %s compares %s with %s", cond, lt, rt)
		}
		jb.leftIdx[i], jb.rightIdx[i] = l, r
	}
	jb.pair = chunk.NewPairComparator(jb.leftIdx, jb.rightIdx)
	var err error
	jb.batchSize, err = batchSizeOf(jb.ctx, jb.schema)
	return err
}

func (jb *JoinBase) Conditions() []JoinCondition {
	return clone.Clone(jb.conds).([]JoinCondition)
}

func (jb *JoinBase) LeftIndex() []int {
	return jb.leftIdx
}

func (jb *JoinBase) RightIndex() []int {
	return jb.rightIdx
}

func (jb *JoinBase) Schema() *common.Schema {
	return jb.schema
}

func (jb *JoinBase) print(tree treeprint.Tree, tag OpTag) {
	branch := tree.AddMetaBranch(string(tag),
		fmt.Sprintf("on %v buffers %d", jb.conds, jb.numBuffers))
	jb.left.Print(branch.AddBranch("left"))
	jb.right.Print(branch.AddBranch("right"))
}

// NewJoin builds an equi-join of left and right with the given algorithm.
func NewJoin(
	kind JoinKind,
	ctx *ExecCtx,
	left, right Operator,
	conds []JoinCondition,
	numBuffers int,
) (Join, error) {
	switch kind {
	case JoinBlockNested:
		return NewBlockNestedLoopJoin(ctx, left, right, conds, numBuffers), nil
	case JoinSortMerge:
		return NewSortMergeJoin(ctx, left, right, conds, numBuffers), nil
	default:
		return nil, common.PreconditionError("unknown join kind %s", kind)
	}
}

// ParseJoinKind accepts "bnlj", "block" and "smj", "sortmerge".
func ParseJoinKind(s string) (JoinKind, error) {
	switch s {
	case "bnlj", "block", "blocknested":
		return JoinBlockNested, nil
	case "smj", "sortmerge", "merge":
		return JoinSortMerge, nil
	default:
		return 0, common.PreconditionError("unknown join algorithm %q", s)
	}
}
