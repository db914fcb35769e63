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
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
	"github.com/daviszhen/qexec/pkg/util"
)

func loadTestConfig(t *testing.T) *util.Config {
	cfg, err := util.LoadConfig("../../etc/ut_config.toml")
	require.NoError(t, err)
	cfg.Engine.TempDir = t.TempDir()
	return cfg
}

// newTestCtx returns an execution context whose pages hold pageSize
// bytes.
func newTestCtx(t *testing.T, pageSize int) *ExecCtx {
	cfg := loadTestConfig(t)
	cfg.Engine.PageSize = pageSize
	util.InitLogger(cfg.Log)
	ctx, err := NewExecCtx(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, ctx.Close())
	})
	return ctx
}

func requireNoRuns(t *testing.T, ctx *ExecCtx) {
	live, err := ctx.Runs.Live()
	require.NoError(t, err)
	require.Empty(t, live)
}

// probeOp counts the protocol calls that reach the wrapped operator and
// can fail on demand.
type probeOp struct {
	Operator
	opens    int
	nexts    int
	closes   int
	failOpen error
	// failNext is returned by the failAt-th call of Next.
	failNext error
	failAt   int
}

func newProbe(op Operator) *probeOp {
	return &probeOp{Operator: op}
}

func (p *probeOp) Open() error {
	p.opens++
	if p.failOpen != nil {
		return p.failOpen
	}
	return p.Operator.Open()
}

func (p *probeOp) Next() (*chunk.Batch, error) {
	p.nexts++
	if p.failNext != nil && p.nexts == p.failAt {
		return nil, p.failNext
	}
	return p.Operator.Next()
}

func (p *probeOp) Close() error {
	p.closes++
	return p.Operator.Close()
}

func intSchema(table string, names ...string) *common.Schema {
	attrs := make([]common.Attribute, len(names))
	for i, name := range names {
		attrs[i] = common.NewAttribute(table, name, common.IntegerType())
	}
	return common.NewSchema(attrs...)
}

func mustSchema(t *testing.T, table, def string) *common.Schema {
	schema, err := common.ParseSchema(table, def)
	require.NoError(t, err)
	return schema
}

func makeTuples(rows ...[]any) []chunk.Tuple {
	ret := make([]chunk.Tuple, len(rows))
	for i, row := range rows {
		ret[i] = chunk.MakeTuple(row...)
	}
	return ret
}

// randomIntTuples returns n tuples of width columns. The first column
// has few distinct values and the last one is the input position, so
// stability is observable.
func randomIntTuples(seed int64, n, width, distinct int) []chunk.Tuple {
	r := rand.New(rand.NewSource(seed))
	ret := make([]chunk.Tuple, n)
	for i := range ret {
		vals := make([]any, width)
		for j := 0; j < width-1; j++ {
			vals[j] = r.Intn(distinct)
		}
		vals[width-1] = i
		ret[i] = chunk.MakeTuple(vals...)
	}
	return ret
}

func tupleStrings(tuples []chunk.Tuple) []string {
	ret := make([]string, len(tuples))
	for i, t := range tuples {
		ret[i] = t.String()
	}
	return ret
}

func stableSorted(tuples []chunk.Tuple, keys []int, desc bool) []chunk.Tuple {
	ret := slices.Clone(tuples)
	slices.SortStableFunc(ret, chunk.NewKeyComparator(keys, desc).Compare)
	return ret
}

func naiveJoin(left, right []chunk.Tuple, lkeys, rkeys []int) []chunk.Tuple {
	pair := chunk.NewPairComparator(lkeys, rkeys)
	ret := make([]chunk.Tuple, 0)
	for _, l := range left {
		for _, r := range right {
			if pair.Equal(l, r) {
				ret = append(ret, l.Join(r))
			}
		}
	}
	return ret
}

// drainBatches returns every batch of an opened operator and checks
// that end of stream is sticky.
func drainBatches(t *testing.T, op Operator, batchSize int) []*chunk.Batch {
	ret := make([]*chunk.Batch, 0)
	for {
		batch, err := op.Next()
		require.NoError(t, err)
		if batch == nil {
			break
		}
		require.False(t, batch.IsEmpty())
		require.LessOrEqual(t, batch.Size(), batchSize)
		ret = append(ret, batch)
	}
	for i := 0; i < 3; i++ {
		batch, err := op.Next()
		require.NoError(t, err)
		require.Nil(t, batch)
	}
	return ret
}

func flatten(batches []*chunk.Batch) []chunk.Tuple {
	ret := make([]chunk.Tuple, 0)
	for _, batch := range batches {
		ret = append(ret, batch.Tuples()...)
	}
	return ret
}
