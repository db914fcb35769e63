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
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.uber.org/zap"

	"github.com/daviszhen/qexec/pkg/compute"
	"github.com/daviszhen/qexec/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initEngineFlags()
	initQueryCmds()
}

var testerCfg = util.DefaultConfig()

///root cmd

var info = "tester runs page-budgeted sorts and joins over csv or parquet files"
var RootCmd = &cobra.Command{
	Use:          "tester",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use tester --help or -h")
	},
}

func initEngineFlags() {
	flags := RootCmd.PersistentFlags()
	flags.IntVar(&testerCfg.Engine.PageSize, "page_size", util.DefaultPageSize, "page size in bytes")
	flags.IntVar(&testerCfg.Engine.NumBuffers, "num_buffers", util.DefaultNumBuffers, "pages of memory per operator")
	flags.StringVar(&testerCfg.Engine.TempDir, "temp_dir", "", "directory for temporary runs")
	flags.StringVar(&testerCfg.Log.Level, "log_level", "info", "debug, info, warn, error")

	viper.BindPFlag("engine.pageSize", flags.Lookup("page_size"))
	viper.BindPFlag("engine.numBuffers", flags.Lookup("num_buffers"))
	viper.BindPFlag("engine.tempDir", flags.Lookup("temp_dir"))
	viper.BindPFlag("log.level", flags.Lookup("log_level"))
}

func initEngineOptions() {
	testerCfg.Engine.PageSize = viper.GetInt("engine.pageSize")
	testerCfg.Engine.NumBuffers = viper.GetInt("engine.numBuffers")
	testerCfg.Engine.TempDir = viper.GetString("engine.tempDir")
	if testerCfg.Engine.TempDir == "" {
		testerCfg.Engine.TempDir = os.TempDir()
	}
	testerCfg.Log.Level = viper.GetString("log.level")
	testerCfg.Log.Format = viper.GetString("log.format")
}

func initDebugOptions() {
	testerCfg.Debug.MaxOutputRowCount = viper.GetInt("debug.maxOutputRowCount")
	testerCfg.Debug.PrintResult = viper.GetBool("debug.printResult")
	testerCfg.Debug.PrintPlan = viper.GetBool("debug.printPlan")
}

func initDataOptions(prefix string, opts *util.DataOptions) {
	opts.Path = viper.GetString(prefix + ".path")
	opts.Format = viper.GetString(prefix + ".format")
	opts.Schema = viper.GetString(prefix + ".schema")
}

func initTesterCfg() {
	initEngineOptions()
	initDebugOptions()
	initDataOptions("tester.left", &testerCfg.Tester.Left)
	initDataOptions("tester.right", &testerCfg.Tester.Right)
	testerCfg.Tester.Keys = viper.GetString("tester.keys")
	testerCfg.Tester.Desc = viper.GetBool("tester.desc")
	testerCfg.Tester.On = viper.GetString("tester.on")
	testerCfg.Tester.Algo = viper.GetString("tester.algo")
	testerCfg.Tester.ResultPath = viper.GetString("tester.resultPath")
}

//query cmds

// flag name -> config key
var queryFlagKeys = map[string]string{
	"left_path":    "tester.left.path",
	"left_format":  "tester.left.format",
	"left_schema":  "tester.left.schema",
	"right_path":   "tester.right.path",
	"right_format": "tester.right.format",
	"right_schema": "tester.right.schema",
	"keys":         "tester.keys",
	"desc":         "tester.desc",
	"on":           "tester.on",
	"algo":         "tester.algo",
	"result_path":  "tester.resultPath",
}

// bindQueryFlags binds the flags of the command being run. Every query
// command declares its own copies, so binding happens at run time.
func bindQueryFlags(cmd *cobra.Command) error {
	for name, key := range queryFlagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := viper.BindPFlag(key, flag); err != nil {
				return err
			}
		}
	}
	return nil
}

func newQueryCmd(query, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   query,
		Short: short,
		Long:  short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindQueryFlags(cmd); err != nil {
				return err
			}
			initTesterCfg()
			return compute.Run(testerCfg, query)
		},
	}
	addDataFlags(cmd, "left")
	cmd.Flags().String("result_path", "", "result csv path. stdout if empty")
	return cmd
}

func addDataFlags(cmd *cobra.Command, side string) {
	cmd.Flags().String(side+"_path", "", side+" input path")
	cmd.Flags().String(side+"_format", "", side+" input format. csv, parquet")
	cmd.Flags().String(side+"_schema", "", side+" input schema. a:int,b:varchar")
}

func initQueryCmds() {
	orderbyCmd := newQueryCmd(compute.QueryOrderBy, "sort the input on keys")
	groupbyCmd := newQueryCmd(compute.QueryGroupBy, "cluster the input on keys")
	distinctCmd := newQueryCmd(compute.QueryDistinct, "remove duplicate rows, or duplicate keys")
	joinCmd := newQueryCmd(compute.QueryJoin, "equi-join the left and right inputs")

	for _, cmd := range []*cobra.Command{orderbyCmd, groupbyCmd, distinctCmd} {
		cmd.Flags().String("keys", "", "attributes, comma separated")
	}
	orderbyCmd.Flags().Bool("desc", false, "descending order")

	addDataFlags(joinCmd, "right")
	joinCmd.Flags().String("on", "", "join conditions. l.a = r.a, l.b = r.b")
	joinCmd.Flags().String("algo", "smj", "join algorithm. bnlj, smj")

	RootCmd.AddCommand(orderbyCmd, groupbyCmd, distinctCmd, joinCmd)
	viper.SetDefault("log.format", "console")
	viper.SetDefault("debug.maxOutputRowCount", 10)
}

var defCfgFilePaths = []string{".", "etc"}
var cfgFileName = "tester.toml"

// loadConfig reads tester.toml when present. Flags override it.
func loadConfig() {
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if util.FileIsValid(fpath) {
			viper.SetConfigFile(fpath)
			err := viper.ReadInConfig()
			if err != nil {
				util.Error("viper load config file failed",
					zap.String("fpath", fpath),
					zap.Error(err))
				continue
			}
			return
		}
	}
	util.Info("tester.toml does not exist, using flags only")
}

func main() {
	defer util.SyncLogger()
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
