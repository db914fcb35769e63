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
	"slices"

	"github.com/tidwall/btree"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
	"github.com/daviszhen/qexec/pkg/storage"
	"github.com/daviszhen/qexec/pkg/util"
)

// BatchSource is anything that yields batches until nil.
type BatchSource interface {
	Next() (*chunk.Batch, error)
}

type SortStats struct {
	InputTuples int
	// Runs is the number of sorted runs written by run generation.
	Runs   int
	Passes int
	// MaxResidentInputs is the largest number of input pages held by
	// one merge step. MaxResidentPages adds the output page.
	MaxResidentInputs int
	MaxResidentPages  int
}

// ExternalSort sorts an arbitrarily large input with numBuffers pages of
// memory. Run generation writes runs of numBuffers pages each. Merge
// passes then combine up to numBuffers-1 runs at a time until a single
// run remains.
type ExternalSort struct {
	scope      *storage.RunScope
	types      []common.LType
	cmp        chunk.KeyComparator
	numBuffers int
	batchSize  int
	stats      SortStats
}

func NewExternalSort(
	scope *storage.RunScope,
	schema *common.Schema,
	keys []int,
	desc bool,
	numBuffers int,
	batchSize int,
) (*ExternalSort, error) {
	if numBuffers < MinSortBuffers {
		return nil, common.PreconditionError("external sort needs at least %d buffers, got %d",
			MinSortBuffers, numBuffers)
	}
	if batchSize < 1 {
		return nil, common.PreconditionError("invalid batch size %d", batchSize)
	}
	for _, k := range keys {
		if k < 0 || k >= schema.Len() {
			return nil, common.PreconditionError("sort key %d out of schema %s", k, schema)
		}
	}
	return &ExternalSort{
		scope:      scope,
		types:      schema.Types(),
		cmp:        chunk.NewKeyComparator(keys, desc),
		numBuffers: numBuffers,
		batchSize:  batchSize,
	}, nil
}

func (es *ExternalSort) Stats() SortStats {
	return es.stats
}

func (es *ExternalSort) MaxTuples() int {
	return es.numBuffers * es.batchSize
}

func (es *ExternalSort) FanIn() int {
	return es.numBuffers - 1
}

// Sort drains src and returns the name of the single sorted run.
func (es *ExternalSort) Sort(src BatchSource) (string, error) {
	runs, err := es.generateRuns(src)
	if err != nil {
		return "", err
	}
	final, err := es.mergeRuns(runs)
	if err != nil {
		return "", err
	}
	util.Debug("external sort done",
		zap.String("scope", es.scope.Tag()),
		zap.Int("instance", es.scope.Instance()),
		zap.Int("tuples", es.stats.InputTuples),
		zap.Int("runs", es.stats.Runs),
		zap.Int("passes", es.stats.Passes))
	return final, nil
}

// OpenResult opens the sorted run for sequential reading.
func (es *ExternalSort) OpenResult(name string) (*storage.RunReader, error) {
	return es.scope.Open(name, es.types, es.batchSize)
}

func (es *ExternalSort) generateRuns(src BatchSource) ([]string, error) {
	maxTuples := es.MaxTuples()
	work := make([]chunk.Tuple, 0, maxTuples)
	runs := make([]string, 0)
	for {
		batch, err := src.Next()
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for _, t := range batch.Tuples() {
			work = append(work, t)
			if len(work) == maxTuples {
				name, err := es.spill(work, len(runs))
				if err != nil {
					return nil, err
				}
				runs = append(runs, name)
				clear(work)
				work = work[:0]
			}
		}
		es.stats.InputTuples += batch.Size()
	}
	// an empty input still produces one (empty) run
	if len(work) > 0 || len(runs) == 0 {
		name, err := es.spill(work, len(runs))
		if err != nil {
			return nil, err
		}
		runs = append(runs, name)
	}
	es.stats.Runs = len(runs)
	return runs, nil
}

// spill sorts the working set and writes it as run <run> of pass 0.
func (es *ExternalSort) spill(work []chunk.Tuple, run int) (name string, err error) {
	slices.SortStableFunc(work, es.cmp.Compare)
	w, err := es.scope.Create(0, run)
	if err != nil {
		return "", err
	}
	defer func() {
		err = multierr.Append(err, w.Close())
	}()
	page := chunk.NewBatch(es.batchSize)
	for _, t := range work {
		page.Append(t)
		if page.IsFull() {
			if err = w.WriteBatch(page); err != nil {
				return "", err
			}
			page.Clear()
		}
	}
	if err = w.WriteBatch(page); err != nil {
		return "", err
	}
	util.Debug("sorted run spilled",
		zap.String("run", w.Name()),
		zap.Int("tuples", len(work)))
	return w.Name(), nil
}

func (es *ExternalSort) mergeRuns(runs []string) (string, error) {
	pass := 0
	for len(runs) > 1 {
		pass++
		next := make([]string, 0, util.CeilDiv(len(runs), es.FanIn()))
		for i, group := range util.Chunks(runs, es.FanIn()) {
			name, err := es.mergeStep(group, pass, i)
			if err != nil {
				return "", err
			}
			for _, consumed := range group {
				if err = es.scope.Remove(consumed); err != nil {
					return "", err
				}
			}
			next = append(next, name)
		}
		util.Debug("merge pass done",
			zap.String("scope", es.scope.Tag()),
			zap.Int("pass", pass),
			zap.Int("inputs", len(runs)),
			zap.Int("outputs", len(next)))
		runs = next
		es.stats.Passes = pass
	}
	return runs[0], nil
}

type mergeInput struct {
	reader *storage.RunReader
	buf    *chunk.Batch
	pos    int
	eof    bool
}

// head returns the smallest unconsumed tuple of the input, refilling
// the page from the run when it is exhausted.
func (in *mergeInput) head() (chunk.Tuple, bool, error) {
	for in.buf == nil || in.pos >= in.buf.Size() {
		if in.eof {
			return chunk.Tuple{}, false, nil
		}
		batch, err := in.reader.NextBatch()
		if err != nil {
			return chunk.Tuple{}, false, err
		}
		if batch == nil {
			in.eof = true
			in.buf = nil
			return chunk.Tuple{}, false, nil
		}
		in.buf, in.pos = batch, 0
	}
	return in.buf.Get(in.pos), true, nil
}

type mergeItem struct {
	t   chunk.Tuple
	src int
}

// mergeStep merges inputs into run <run> of <pass>. One page per input
// and one output page are resident. The frontier holds the head of each
// input; equal keys are taken from the lowest input first.
func (es *ExternalSort) mergeStep(inputs []string, pass, run int) (name string, err error) {
	util.AssertFunc(len(inputs) <= es.FanIn())
	ins := make([]*mergeInput, 0, len(inputs))
	defer func() {
		for _, in := range ins {
			err = multierr.Append(err, in.reader.Close())
		}
	}()
	for _, input := range inputs {
		reader, err := es.scope.Open(input, es.types, es.batchSize)
		if err != nil {
			return "", err
		}
		ins = append(ins, &mergeInput{reader: reader})
	}
	es.stats.MaxResidentInputs = max(es.stats.MaxResidentInputs, len(ins))
	es.stats.MaxResidentPages = max(es.stats.MaxResidentPages, len(ins)+1)

	w, err := es.scope.Create(pass, run)
	if err != nil {
		return "", err
	}
	defer func() {
		err = multierr.Append(err, w.Close())
	}()

	frontier := btree.NewBTreeG[mergeItem](func(a, b mergeItem) bool {
		if c := es.cmp.Compare(a.t, b.t); c != 0 {
			return c < 0
		}
		return a.src < b.src
	})
	for i, in := range ins {
		t, ok, err := in.head()
		if err != nil {
			return "", err
		}
		if ok {
			frontier.Set(mergeItem{t: t, src: i})
		}
	}

	out := chunk.NewBatch(es.batchSize)
	for frontier.Len() > 0 {
		item, _ := frontier.PopMin()
		out.Append(item.t)
		if out.IsFull() {
			if err = w.WriteBatch(out); err != nil {
				return "", err
			}
			out.Clear()
		}
		in := ins[item.src]
		in.pos++
		t, ok, err := in.head()
		if err != nil {
			return "", err
		}
		if ok {
			frontier.Set(mergeItem{t: t, src: item.src})
		}
	}
	if err = w.WriteBatch(out); err != nil {
		return "", err
	}
	return w.Name(), nil
}
