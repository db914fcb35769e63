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
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/daviszhen/qexec/pkg/common"
	"github.com/daviszhen/qexec/pkg/util"
)

// RunManager owns a private directory for the temporary runs of one
// execution context and hands out run scopes. Instance numbers are
// counted per operator tag and never reused by the same manager.
type RunManager struct {
	dir     string
	bufSize int

	lock      sync.Mutex
	instances map[string]int
}

// NewRunManager creates a fresh directory under root. Two managers on
// the same root never share file names.
func NewRunManager(root string, bufSize int) (*RunManager, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, common.ResourceError(err, "create run root %s", root)
	}
	dir, err := os.MkdirTemp(root, "qexec-")
	if err != nil {
		return nil, common.ResourceError(err, "create run directory under %s", root)
	}
	return &RunManager{
		dir:       dir,
		bufSize:   bufSize,
		instances: make(map[string]int),
	}, nil
}

func (m *RunManager) Dir() string {
	return m.dir
}

// NewScope allocates the next instance number of tag.
func (m *RunManager) NewScope(tag string) *RunScope {
	m.lock.Lock()
	m.instances[tag]++
	inst := m.instances[tag]
	m.lock.Unlock()
	return &RunScope{
		mgr:      m,
		tag:      tag,
		instance: inst,
		live:     make(map[string]struct{}),
	}
}

// Live lists the run files currently present in the directory.
func (m *RunManager) Live() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, common.ResourceError(err, "list %s", m.dir)
	}
	ret := make([]string, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			ret = append(ret, ent.Name())
		}
	}
	return ret, nil
}

// Close removes the directory and everything left in it.
func (m *RunManager) Close() error {
	if err := os.RemoveAll(m.dir); err != nil {
		return common.ResourceError(err, "remove %s", m.dir)
	}
	return nil
}

func (m *RunManager) path(name string) string {
	return filepath.Join(m.dir, name)
}

// RunScope names and tracks the runs of one operator instance. It is
// not safe for concurrent use.
type RunScope struct {
	mgr      *RunManager
	tag      string
	instance int
	live     map[string]struct{}
}

func (s *RunScope) Tag() string {
	return s.tag
}

func (s *RunScope) Instance() int {
	return s.instance
}

// RunName is <tag>-<instance>-pass<N>-run<M>.
func (s *RunScope) RunName(pass, run int) string {
	return fmt.Sprintf("%s-%d-pass%d-run%d", s.tag, s.instance, pass, run)
}

func (s *RunScope) Create(pass, run int) (*RunWriter, error) {
	name := s.RunName(pass, run)
	w, err := newRunWriter(s.mgr.path(name), name, s.mgr.bufSize)
	if err != nil {
		return nil, err
	}
	s.live[name] = struct{}{}
	return w, nil
}

func (s *RunScope) Open(name string, types []common.LType, cap int) (*RunReader, error) {
	if _, has := s.live[name]; !has {
		return nil, common.ResourceError(nil, "run %s does not belong to %s-%d", name, s.tag, s.instance)
	}
	return openRunReader(s.mgr.path(name), name, types, cap, s.mgr.bufSize)
}

func (s *RunScope) Remove(name string) error {
	if _, has := s.live[name]; !has {
		return nil
	}
	delete(s.live, name)
	err := os.Remove(s.mgr.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return common.ResourceError(err, "remove run %s", name)
	}
	util.Debug("run removed", zap.String("run", name))
	return nil
}

// RemoveAll deletes every run of this scope still present.
func (s *RunScope) RemoveAll() error {
	var err error
	for _, name := range s.Live() {
		err = multierr.Append(err, s.Remove(name))
	}
	return err
}

// Live lists the runs created and not yet removed, in name order.
func (s *RunScope) Live() []string {
	ret := make([]string, 0, len(s.live))
	for name := range s.live {
		ret = append(ret, name)
	}
	slices.Sort(ret)
	return ret
}
