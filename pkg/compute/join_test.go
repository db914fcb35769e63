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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
	"github.com/daviszhen/qexec/pkg/storage"
	"github.com/daviszhen/qexec/pkg/util"
)

func on(pairs ...string) []JoinCondition {
	ret := make([]JoinCondition, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ret = append(ret, JoinCondition{
			Left:  common.ParseAttribute(pairs[i]),
			Right: common.ParseAttribute(pairs[i+1]),
		})
	}
	return ret
}

var joinKinds = []JoinKind{JoinBlockNested, JoinSortMerge}

// runJoin opens, drains and closes a join, checking page bounds and
// cleanup on the way.
func runJoin(
	t *testing.T,
	ctx *ExecCtx,
	kind JoinKind,
	left, right Operator,
	conds []JoinCondition,
	numBuffers int,
) []chunk.Tuple {
	join, err := NewJoin(kind, ctx, left, right, conds, numBuffers)
	require.NoError(t, err)
	require.Equal(t, kind, join.Kind())
	require.NoError(t, join.Open())
	batchSize, err := batchSizeOf(ctx, join.Schema())
	require.NoError(t, err)
	got := flatten(drainBatches(t, join, batchSize))
	require.NoError(t, join.Close())
	requireNoRuns(t, ctx)
	return got
}

func exampleInputs(ctx *ExecCtx, t *testing.T) (*ValuesScan, *ValuesScan) {
	left := NewValuesScan(ctx, mustSchema(t, "l", "id:int,s:varchar"),
		makeTuples([]any{1, "a"}, []any{2, "b"}, []any{3, "a"}))
	right := NewValuesScan(ctx, mustSchema(t, "r", "id:int,s:varchar"),
		makeTuples([]any{1, "x"}, []any{3, "y"}, []any{3, "z"}))
	return left, right
}

func Test_blockNestedLoopJoinExample(t *testing.T) {
	want := []string{"(1,a,1,x)", "(3,a,3,y)", "(3,a,3,z)"}
	for _, pageSize := range []int{40, 60, 100} {
		for numBuffers := 4; numBuffers <= 7; numBuffers++ {
			t.Run(fmt.Sprintf("p%d_b%d", pageSize, numBuffers), func(t *testing.T) {
				ctx := newTestCtx(t, pageSize)
				left, right := exampleInputs(ctx, t)
				got := runJoin(t, ctx, JoinBlockNested, left, right, on("l.id", "r.id"), numBuffers)
				assert.ElementsMatch(t, want, tupleStrings(got))
			})
		}
	}
}

func Test_blockNestedLoopJoinBlocks(t *testing.T) {
	// left pages hold one tuple; three left tuples need ceil(3/block) blocks
	cases := []struct {
		numBuffers int
		blocks     int
	}{
		{numBuffers: 3, blocks: 3},
		{numBuffers: 4, blocks: 2},
		{numBuffers: 5, blocks: 1},
		{numBuffers: 9, blocks: 1},
	}
	for _, c := range cases {
		ctx := newTestCtx(t, 40)
		left := NewValuesScan(ctx, mustSchema(t, "l", "id:int,s:varchar,pad:varchar"),
			makeTuples([]any{1, "a", ""}, []any{2, "b", ""}, []any{3, "a", ""}))
		right := NewValuesScan(ctx, mustSchema(t, "r", "id:int"),
			makeTuples([]any{1}, []any{3}, []any{3}))
		join := NewBlockNestedLoopJoin(ctx, left, right, on("id", "id"), c.numBuffers)
		require.NoError(t, join.Open())
		got := flatten(drainBatches(t, join, 1))
		assert.ElementsMatch(t, []string{"(1,a,,1)", "(3,a,,3)", "(3,a,,3)"}, tupleStrings(got))
		assert.Equal(t, c.blocks, join.Blocks())
		require.NoError(t, join.Close())
		requireNoRuns(t, ctx)
	}
}

func Test_sortMergeJoinMultiMatch(t *testing.T) {
	want := []string{"(2,p,2,x)", "(2,p,2,y)", "(2,q,2,x)", "(2,q,2,y)"}
	for _, pageSize := range []int{40, 80, 120, 400} {
		for numBuffers := 3; numBuffers <= 5; numBuffers++ {
			t.Run(fmt.Sprintf("p%d_b%d", pageSize, numBuffers), func(t *testing.T) {
				ctx := newTestCtx(t, pageSize)
				left := NewValuesScan(ctx, mustSchema(t, "l", "id:int,s:varchar"),
					makeTuples([]any{2, "p"}, []any{2, "q"}))
				right := NewValuesScan(ctx, mustSchema(t, "r", "id:int,s:varchar"),
					makeTuples([]any{2, "x"}, []any{2, "y"}))
				got := runJoin(t, ctx, JoinSortMerge, left, right, on("l.id", "r.id"), numBuffers)
				require.Len(t, got, 4)
				assert.ElementsMatch(t, want, tupleStrings(got))
			})
		}
	}
}

func Test_sortMergeJoinExample(t *testing.T) {
	ctx := newTestCtx(t, 40)
	left, right := exampleInputs(ctx, t)
	got := runJoin(t, ctx, JoinSortMerge, left, right, on("l.id", "r.id"), 3)
	// sorted on the key, ties in input order
	assert.Equal(t, []string{"(1,a,1,x)", "(3,a,3,y)", "(3,a,3,z)"}, tupleStrings(got))
}

func Test_joinsMatchNaive(t *testing.T) {
	lschema := intSchema("l", "k", "v", "pos")
	rschema := intSchema("r", "k", "v", "pos")
	left := randomIntTuples(100, 37, 3, 5)
	right := randomIntTuples(200, 29, 3, 5)
	condSets := []struct {
		conds []JoinCondition
		lkeys []int
		rkeys []int
	}{
		{conds: on("l.k", "r.k"), lkeys: []int{0}, rkeys: []int{0}},
		{conds: on("l.k", "r.k", "l.v", "r.v"), lkeys: []int{0, 1}, rkeys: []int{0, 1}},
		{conds: on("l.k", "r.v"), lkeys: []int{0}, rkeys: []int{1}},
	}
	for ci, cs := range condSets {
		want := tupleStrings(naiveJoin(left, right, cs.lkeys, cs.rkeys))
		for _, kind := range joinKinds {
			for _, pageSize := range []int{24, 48, 100} {
				for numBuffers := 3; numBuffers <= 5; numBuffers++ {
					name := fmt.Sprintf("c%d_%s_p%d_b%d", ci, kind, pageSize, numBuffers)
					t.Run(name, func(t *testing.T) {
						ctx := newTestCtx(t, pageSize)
						got := runJoin(t, ctx, kind,
							NewValuesScan(ctx, lschema, left),
							NewValuesScan(ctx, rschema, right),
							cs.conds, numBuffers)
						assert.ElementsMatch(t, want, tupleStrings(got))
					})
				}
			}
		}
	}
}

func Test_joinResumeMidGroup(t *testing.T) {
	// a single key group larger than the output page
	lschema := intSchema("l", "k", "pos")
	rschema := intSchema("r", "k", "pos")
	left := makeTuples([]any{0, 0}, []any{1, 1}, []any{1, 2}, []any{1, 3}, []any{2, 4}, []any{1, 5})
	right := makeTuples([]any{1, 10}, []any{3, 11}, []any{1, 12}, []any{1, 13}, []any{0, 14}, []any{1, 15})
	want := tupleStrings(naiveJoin(left, right, []int{0}, []int{0}))
	require.Len(t, want, 17)
	for _, kind := range joinKinds {
		for _, pageSize := range []int{16, 32, 48, 1024} {
			ctx := newTestCtx(t, pageSize)
			join, err := NewJoin(kind, ctx,
				NewValuesScan(ctx, lschema, left),
				NewValuesScan(ctx, rschema, right),
				on("k", "k"), 3)
			require.NoError(t, err)
			require.NoError(t, join.Open())
			batches := drainBatches(t, join, pageSize/16)
			require.NoError(t, join.Close())
			requireNoRuns(t, ctx)
			if pageSize/16 < len(want) {
				require.Greater(t, len(batches), 1)
			}
			assert.ElementsMatch(t, want, tupleStrings(flatten(batches)), "%s page %d", kind, pageSize)
		}
	}
}

func Test_joinEmptyInputs(t *testing.T) {
	schema := intSchema("t", "k")
	some := makeTuples([]any{1}, []any{2})
	for _, kind := range joinKinds {
		for _, c := range []struct{ left, right []chunk.Tuple }{
			{left: nil, right: some},
			{left: some, right: nil},
			{left: nil, right: nil},
		} {
			ctx := newTestCtx(t, 16)
			left := newProbe(NewValuesScan(ctx, schema, c.left))
			right := newProbe(NewValuesScan(ctx, schema, c.right))
			got := runJoin(t, ctx, kind, left, right, on("k", "k"), 3)
			assert.Empty(t, got)
			assert.Equal(t, 1, left.closes)
			assert.Equal(t, 1, right.closes)
		}
	}
}

func Test_joinPreconditions(t *testing.T) {
	cases := []struct {
		name       string
		conds      []JoinCondition
		numBuffers int
		pageSize   int
	}{
		{name: "buffers", conds: on("l.id", "r.id"), numBuffers: 2, pageSize: 64},
		{name: "noCondition", conds: nil, numBuffers: 3, pageSize: 64},
		{name: "leftAttr", conds: on("l.nope", "r.id"), numBuffers: 3, pageSize: 64},
		{name: "rightAttr", conds: on("l.id", "x.id"), numBuffers: 3, pageSize: 64},
		{name: "typeMismatch", conds: on("l.id", "r.s"), numBuffers: 3, pageSize: 64},
		{name: "page", conds: on("l.id", "r.id"), numBuffers: 3, pageSize: 30},
	}
	for _, kind := range joinKinds {
		for _, c := range cases {
			t.Run(fmt.Sprintf("%s_%s", kind, c.name), func(t *testing.T) {
				ctx := newTestCtx(t, c.pageSize)
				left, right := exampleInputs(ctx, t)
				lp, rp := newProbe(left), newProbe(right)
				join, err := NewJoin(kind, ctx, lp, rp, c.conds, c.numBuffers)
				require.NoError(t, err)
				err = join.Open()
				require.ErrorIs(t, err, common.ErrPrecondition)
				assert.Equal(t, 0, lp.opens)
				assert.Equal(t, 0, rp.opens)
				requireNoRuns(t, ctx)
				require.NoError(t, join.Close())
				assert.Equal(t, 1, lp.closes)
				assert.Equal(t, 1, rp.closes)
			})
		}
	}
}

func Test_joinCloseEarly(t *testing.T) {
	schema := intSchema("t", "k", "v")
	input := randomIntTuples(8, 40, 2, 3)
	for _, kind := range joinKinds {
		ctx := newTestCtx(t, 16)
		left := newProbe(NewValuesScan(ctx, schema, input))
		right := newProbe(NewValuesScan(ctx, schema, input))
		join, err := NewJoin(kind, ctx, left, right, on("k", "k"), 3)
		require.NoError(t, err)
		require.NoError(t, join.Open())
		batch, err := join.Next()
		require.NoError(t, err)
		require.NotNil(t, batch)
		live, err := ctx.Runs.Live()
		require.NoError(t, err)
		require.NotEmpty(t, live)

		require.NoError(t, join.Close())
		requireNoRuns(t, ctx)
		assert.Equal(t, 1, left.closes)
		assert.Equal(t, 1, right.closes)
		batch, err = join.Next()
		require.NoError(t, err)
		require.Nil(t, batch)
	}
}

func Test_joinChildFailure(t *testing.T) {
	schema := intSchema("t", "k", "v")
	input := randomIntTuples(8, 40, 2, 3)
	boom := common.IOError(errors.New("boom"), "scan")
	for _, kind := range joinKinds {
		ctx := newTestCtx(t, 16)
		left := NewValuesScan(ctx, schema, input)
		right := newProbe(NewValuesScan(ctx, schema, input))
		right.failNext, right.failAt = boom, 3
		join, err := NewJoin(kind, ctx, left, right, on("k", "k"), 3)
		require.NoError(t, err)
		require.ErrorIs(t, join.Open(), boom)
		require.NoError(t, join.Close())
		requireNoRuns(t, ctx)
	}
}

func Test_joinWriteFault(t *testing.T) {
	schema := intSchema("t", "k", "v")
	input := randomIntTuples(8, 10, 2, 3)
	for _, kind := range joinKinds {
		t.Run(kind.String(), func(t *testing.T) {
			util.Open(util.FAULTS_SCOPE_RUN)
			defer util.Close(util.FAULTS_SCOPE_RUN)
			util.Register(util.FAULTS_SCOPE_RUN, storage.FaultRunWrite, nil, func([]string) error {
				return errors.New("no space")
			})
			ctx := newTestCtx(t, 16)
			join, err := NewJoin(kind, ctx,
				NewValuesScan(ctx, schema, input), NewValuesScan(ctx, schema, input), on("k", "k"), 3)
			require.NoError(t, err)
			err = join.Open()
			require.ErrorIs(t, err, common.ErrIO)
			require.NoError(t, join.Close())
			requireNoRuns(t, ctx)
		})
	}
}

func Test_joinTypeMismatchAtRuntime(t *testing.T) {
	// the declared schema says int but the rows carry strings
	ctx := newTestCtx(t, 64)
	left := NewValuesScan(ctx, intSchema("l", "k"), makeTuples([]any{"1"}, []any{2}))
	right := NewValuesScan(ctx, intSchema("r", "k"), makeTuples([]any{1}, []any{2}))
	join := NewSortMergeJoin(ctx, left, right, on("k", "k"), 3)
	err := join.Open()
	require.ErrorIs(t, err, common.ErrFormat)
	require.NoError(t, join.Close())
	requireNoRuns(t, ctx)

	// uniform strings sort fine but do not read back as integers
	left = NewValuesScan(ctx, intSchema("l", "k"), makeTuples([]any{"1"}, []any{"2"}))
	right = NewValuesScan(ctx, intSchema("r", "k"), makeTuples([]any{1}, []any{2}))
	join = NewSortMergeJoin(ctx, left, right, on("k", "k"), 3)
	require.NoError(t, join.Open())
	_, err = join.Next()
	require.ErrorIs(t, err, common.ErrFormat)
	require.True(t, common.IsFatal(err))
	require.NoError(t, join.Close())
	requireNoRuns(t, ctx)
}

func Test_joinInterface(t *testing.T) {
	ctx := newTestCtx(t, 64)
	left, right := exampleInputs(ctx, t)
	conds := on("l.id", "r.id", "l.s", "r.s")
	join, err := NewJoin(JoinSortMerge, ctx, left, right, conds, 3)
	require.NoError(t, err)
	require.NoError(t, join.Open())
	assert.Equal(t, []int{0, 1}, join.LeftIndex())
	assert.Equal(t, []int{0, 1}, join.RightIndex())
	assert.Equal(t, 4, join.Schema().Len())

	got := join.Conditions()
	require.Len(t, got, 2)
	got[0].Left.Name = "changed"
	assert.Equal(t, "id", join.Conditions()[0].Left.Name)
	require.NoError(t, join.Close())

	_, err = NewJoin(JoinKind(9), ctx, left, right, conds, 3)
	require.ErrorIs(t, err, common.ErrPrecondition)

	for s, want := range map[string]JoinKind{"bnlj": JoinBlockNested, "smj": JoinSortMerge, "sortmerge": JoinSortMerge} {
		kind, err := ParseJoinKind(s)
		require.NoError(t, err)
		assert.Equal(t, want, kind)
	}
	_, err = ParseJoinKind("hash")
	require.ErrorIs(t, err, common.ErrPrecondition)
}

func Test_joinRunNames(t *testing.T) {
	ctx := newTestCtx(t, 16)
	schema := intSchema("t", "k", "v")
	input := randomIntTuples(4, 20, 2, 3)
	bnlj := NewBlockNestedLoopJoin(ctx, NewValuesScan(ctx, schema, input), NewValuesScan(ctx, schema, input), on("k", "k"), 3)
	smj := NewSortMergeJoin(ctx, NewValuesScan(ctx, schema, input), NewValuesScan(ctx, schema, input), on("k", "k"), 3)
	require.NoError(t, bnlj.Open())
	require.NoError(t, smj.Open())
	live, err := ctx.Runs.Live()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"BlockNestedJoin-1-pass0-run0",
		smj.leftScope.Live()[0],
		smj.rightScope.Live()[0],
	}, live)
	assert.Regexp(t, "^SortMergeJoinLeft-1-pass[0-9]+-run0$", smj.leftScope.Live()[0])
	assert.Regexp(t, "^SortMergeJoinRight-1-pass[0-9]+-run0$", smj.rightScope.Live()[0])
	require.NoError(t, bnlj.Close())
	require.NoError(t, smj.Close())
	requireNoRuns(t, ctx)
}
