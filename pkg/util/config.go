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

package util

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPageSize   = 4096
	DefaultNumBuffers = 8
)

type EngineOptions struct {
	PageSize   int    `tag:"pageSize"`
	NumBuffers int    `tag:"numBuffers"`
	TempDir    string `tag:"tempDir"`
}

type LogOptions struct {
	Level  string `tag:"level"`
	Format string `tag:"format"`
}

type DebugOptions struct {
	PrintPlan         bool `tag:"printPlan"`
	PrintResult       bool `tag:"printResult"`
	MaxOutputRowCount int  `tag:"maxOutputRowCount"`
}

type DataOptions struct {
	Path   string `tag:"path"`
	Format string `tag:"format"`
	Schema string `tag:"schema"`
}

type TesterOptions struct {
	Left       DataOptions `tag:"left"`
	Right      DataOptions `tag:"right"`
	Keys       string      `tag:"keys"`
	Desc       bool        `tag:"desc"`
	On         string      `tag:"on"`
	Algo       string      `tag:"algo"`
	ResultPath string      `tag:"resultPath"`
}

type Config struct {
	Engine EngineOptions `tag:"engine"`
	Log    LogOptions    `tag:"log"`
	Debug  DebugOptions  `tag:"debug"`
	Tester TesterOptions `tag:"tester"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineOptions{
			PageSize:   DefaultPageSize,
			NumBuffers: DefaultNumBuffers,
			TempDir:    os.TempDir(),
		},
		Log: LogOptions{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig decodes a toml file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if !FileIsValid(path) {
		return nil, fmt.Errorf("config file %s does not exist", path)
	}
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (cfg *Config) fillDefaults() {
	if cfg.Engine.PageSize <= 0 {
		cfg.Engine.PageSize = DefaultPageSize
	}
	if cfg.Engine.NumBuffers <= 0 {
		cfg.Engine.NumBuffers = DefaultNumBuffers
	}
	if cfg.Engine.TempDir == "" {
		cfg.Engine.TempDir = os.TempDir()
	}
}
