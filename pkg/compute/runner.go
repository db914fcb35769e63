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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
	"github.com/daviszhen/qexec/pkg/util"
)

const (
	QueryOrderBy  = "orderby"
	QueryGroupBy  = "groupby"
	QueryDistinct = "distinct"
	QueryJoin     = "join"
)

func parseAttrs(s string) []common.Attribute {
	ret := make([]common.Attribute, 0)
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, common.ParseAttribute(part))
		}
	}
	return ret
}

// ParseJoinConditions parses "l.a = r.a, l.b = r.c".
func ParseJoinConditions(s string) ([]JoinCondition, error) {
	ret := make([]JoinCondition, 0)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		l, r, ok := strings.Cut(part, "=")
		if !ok {
			return nil, common.PreconditionError("join condition %q is not an equality", part)
		}
		ret = append(ret, JoinCondition{
			Left:  common.ParseAttribute(l),
			Right: common.ParseAttribute(r),
		})
	}
	return ret, nil
}

func newDataScan(ctx *ExecCtx, table string, opts util.DataOptions) (Operator, error) {
	if opts.Path == "" {
		return nil, common.PreconditionError("no data path for %s", table)
	}
	schema, err := common.ParseSchema(table, opts.Schema)
	if err != nil {
		return nil, common.PreconditionError("schema of %s: %v", table, err)
	}
	format := opts.Format
	if format == "" {
		format = FormatCsv
	}
	return NewFileScan(ctx, schema, opts.Path, format), nil
}

// BuildQuery assembles the operator tree of a tester query. The left
// input is table "l" and the right input is table "r".
func BuildQuery(ctx *ExecCtx, query string) (Operator, error) {
	opts := ctx.Cfg.Tester
	left, err := newDataScan(ctx, "l", opts.Left)
	if err != nil {
		return nil, err
	}
	keys := parseAttrs(opts.Keys)
	numBuffers := ctx.NumBuffers()
	switch query {
	case QueryOrderBy:
		return NewOrderBy(ctx, left, keys, opts.Desc, numBuffers), nil
	case QueryGroupBy:
		return NewGroupBy(ctx, left, keys, numBuffers), nil
	case QueryDistinct:
		if len(keys) == 0 {
			return NewDistinct(ctx, left, numBuffers), nil
		}
		proj, err := NewProject(ctx, left, keys)
		if err != nil {
			return nil, err
		}
		return NewDistinct(ctx, proj, numBuffers), nil
	case QueryJoin:
		right, err := newDataScan(ctx, "r", opts.Right)
		if err != nil {
			return nil, err
		}
		conds, err := ParseJoinConditions(opts.On)
		if err != nil {
			return nil, err
		}
		kind, err := ParseJoinKind(opts.Algo)
		if err != nil {
			return nil, err
		}
		return NewJoin(kind, ctx, left, right, conds, numBuffers)
	default:
		return nil, common.PreconditionError("unknown query %q", query)
	}
}

// Run executes a tester query and writes its rows as csv to the result
// path, or stdout when it is empty.
func Run(cfg *util.Config, query string) (err error) {
	util.InitLogger(cfg.Log)
	defer util.SyncLogger()
	ctx, err := NewExecCtx(cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, ctx.Close())
	}()
	root, err := BuildQuery(ctx, query)
	if err != nil {
		return err
	}
	if cfg.Debug.PrintPlan {
		fmt.Println(Explain(root))
	}

	var out io.Writer = os.Stdout
	if cfg.Tester.ResultPath != "" {
		var file *os.File
		file, err = os.OpenFile(cfg.Tester.ResultPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			return common.ResourceError(err, "open result file %s", cfg.Tester.ResultPath)
		}
		defer func() {
			err = multierr.Append(err, file.Close())
		}()
		out = file
	}

	start := time.Now()
	rowCnt, err := writeResult(root, csv.NewWriter(out), cfg.Debug)
	if err != nil {
		util.Error("query failed",
			zap.String("query", query),
			zap.Error(err))
		return err
	}
	util.Info("query done",
		zap.String("query", query),
		zap.Int("rows", rowCnt),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func writeResult(root Operator, writer *csv.Writer, debug util.DebugOptions) (rowCnt int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = util.ConvertPanicError(r)
		}
		err = multierr.Append(err, root.Close())
	}()
	if err = root.Open(); err != nil {
		return 0, err
	}
	for {
		var batch *chunk.Batch
		batch, err = root.Next()
		if err != nil {
			return rowCnt, err
		}
		if batch == nil {
			break
		}
		for _, t := range batch.Tuples() {
			rec := make([]string, t.Len())
			for i := range rec {
				rec[i] = t.At(i).String()
			}
			if debug.PrintResult && rowCnt < debug.MaxOutputRowCount {
				fmt.Println(t.String())
			}
			if err = writer.Write(rec); err != nil {
				return rowCnt, err
			}
			rowCnt++
		}
	}
	writer.Flush()
	return rowCnt, writer.Error()
}
