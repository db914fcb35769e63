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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/qexec/pkg/common"
	"github.com/daviszhen/qexec/pkg/util"
)

func runnerConfig(t *testing.T) *util.Config {
	cfg := loadTestConfig(t)
	cfg.Tester.Left = util.DataOptions{
		Path:   writeFile(t, "emp.csv", "3,ann,10\n1,bob,20\n2,cat,10\n1,dan,30\n3,eve,20\n"),
		Format: FormatCsv,
		Schema: "id:int,name:varchar,dept:int",
	}
	cfg.Tester.Right = util.DataOptions{
		Path:   writeFile(t, "dept.csv", "10,sales\n20,ops\n40,hr\n"),
		Schema: "dept:int,title:varchar",
	}
	cfg.Tester.ResultPath = filepath.Join(t.TempDir(), "result.csv")
	return cfg
}

func readResult(t *testing.T, cfg *util.Config) []string {
	data, err := os.ReadFile(cfg.Tester.ResultPath)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func Test_runOrderBy(t *testing.T) {
	cfg := runnerConfig(t)
	cfg.Tester.Keys = "l.id"
	cfg.Tester.Desc = true
	require.NoError(t, Run(cfg, QueryOrderBy))
	assert.Equal(t, []string{"3,ann,10", "3,eve,20", "2,cat,10", "1,bob,20", "1,dan,30"}, readResult(t, cfg))
}

func Test_runGroupByDistinct(t *testing.T) {
	cfg := runnerConfig(t)
	cfg.Tester.Keys = "dept"
	require.NoError(t, Run(cfg, QueryGroupBy))
	assert.Equal(t, []string{"3,ann,10", "2,cat,10", "1,bob,20", "3,eve,20", "1,dan,30"}, readResult(t, cfg))

	require.NoError(t, Run(cfg, QueryDistinct))
	assert.Equal(t, []string{"10", "20", "30"}, readResult(t, cfg))
}

func Test_runJoin(t *testing.T) {
	for _, algo := range []string{"bnlj", "smj"} {
		cfg := runnerConfig(t)
		cfg.Tester.On = "l.dept = r.dept"
		cfg.Tester.Algo = algo
		require.NoError(t, Run(cfg, QueryJoin))
		assert.ElementsMatch(t, []string{
			"3,ann,10,10,sales",
			"2,cat,10,10,sales",
			"1,bob,20,20,ops",
			"3,eve,20,20,ops",
		}, readResult(t, cfg), algo)
	}
}

func Test_runErrors(t *testing.T) {
	cfg := runnerConfig(t)
	require.ErrorIs(t, Run(cfg, "explain"), common.ErrPrecondition)

	cfg.Tester.On = "l.dept"
	cfg.Tester.Algo = "smj"
	require.ErrorIs(t, Run(cfg, QueryJoin), common.ErrPrecondition)

	cfg.Tester.On = "l.dept = r.dept"
	cfg.Tester.Algo = "hash"
	require.ErrorIs(t, Run(cfg, QueryJoin), common.ErrPrecondition)

	cfg.Tester.Keys = "salary"
	require.ErrorIs(t, Run(cfg, QueryOrderBy), common.ErrPrecondition)

	cfg.Tester.Left.Schema = "id"
	require.ErrorIs(t, Run(cfg, QueryOrderBy), common.ErrPrecondition)

	cfg.Tester.Left.Schema = "id:int"
	cfg.Tester.Left.Path = filepath.Join(t.TempDir(), "none.csv")
	cfg.Tester.Keys = ""
	require.ErrorIs(t, Run(cfg, QueryDistinct), common.ErrResource)
}

func Test_parseJoinConditions(t *testing.T) {
	conds, err := ParseJoinConditions(" l.a = r.b ,l.c=r.d, ")
	require.NoError(t, err)
	assert.Equal(t, on("l.a", "r.b", "l.c", "r.d"), conds)
}
