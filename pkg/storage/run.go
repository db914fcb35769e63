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
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
	"github.com/daviszhen/qexec/pkg/util"
)

const (
	FaultRunCreate = "run.create"
	FaultRunWrite  = "run.write"
	FaultRunRead   = "run.read"
)

// RunWriter appends batches to a new run file.
type RunWriter struct {
	name    string
	serial  *util.FileSerialize
	payload util.BytesSerialize
	batches int
	tuples  int
	closed  bool
}

func newRunWriter(path, name string, bufSize int) (*RunWriter, error) {
	if err := util.Inject(util.FAULTS_SCOPE_RUN, FaultRunCreate); err != nil {
		return nil, common.ResourceError(err, "create run %s", name)
	}
	serial, err := util.NewFileSerialize(path, bufSize)
	if err != nil {
		return nil, common.ResourceError(err, "create run %s", name)
	}
	w := &RunWriter{
		name:   name,
		serial: serial,
	}
	if err = writeRunHeader(serial); err != nil {
		_ = serial.Close()
		_ = os.Remove(path)
		return nil, common.IOError(err, "write header of run %s", name)
	}
	return w, nil
}

func (w *RunWriter) Name() string {
	return w.name
}

// WriteBatch appends one record. Empty batches are skipped.
func (w *RunWriter) WriteBatch(batch *chunk.Batch) error {
	util.AssertFunc(!w.closed)
	if batch.IsEmpty() {
		return nil
	}
	if err := util.Inject(util.FAULTS_SCOPE_RUN, FaultRunWrite); err != nil {
		return common.IOError(err, "write run %s", w.name)
	}
	payload, err := encodeBatch(batch, &w.payload)
	if err != nil {
		return common.IOError(err, "encode batch of run %s", w.name)
	}
	if len(payload) > maxPayloadLen {
		return common.FormatError(nil, "record of %d bytes in run %s is too large", len(payload), w.name)
	}
	err = util.Write[uint32](uint32(batch.Size()), w.serial)
	if err == nil {
		err = util.Write[uint32](uint32(len(payload)), w.serial)
	}
	if err == nil {
		err = util.Write[uint64](checksum(payload), w.serial)
	}
	if err == nil {
		err = w.serial.WriteData(payload, len(payload))
	}
	if err != nil {
		return common.IOError(err, "write run %s", w.name)
	}
	w.batches++
	w.tuples += batch.Size()
	return nil
}

func (w *RunWriter) Batches() int {
	return w.batches
}

func (w *RunWriter) Tuples() int {
	return w.tuples
}

func (w *RunWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.serial.Close(); err != nil {
		return common.IOError(err, "close run %s", w.name)
	}
	util.Debug("run written",
		zap.String("run", w.name),
		zap.Int("batches", w.batches),
		zap.Int("tuples", w.tuples))
	return nil
}

// RunReader reads the batches of a run sequentially. Each batch read is
// one resident page.
type RunReader struct {
	name     string
	deserial *util.FileDeserialize
	types    []common.LType
	cap      int
	eof      bool
	closed   bool
}

func openRunReader(path, name string, types []common.LType, cap int, bufSize int) (*RunReader, error) {
	deserial, err := util.NewFileDeserialize(path, bufSize)
	if err != nil {
		return nil, common.ResourceError(err, "open run %s", name)
	}
	if err = readRunHeader(deserial); err != nil {
		_ = deserial.Close()
		if errors.Is(err, common.ErrFormat) {
			return nil, err
		}
		return nil, common.IOError(err, "read header of run %s", name)
	}
	return &RunReader{
		name:     name,
		deserial: deserial,
		types:    types,
		cap:      cap,
	}, nil
}

func (r *RunReader) Name() string {
	return r.name
}

// NextBatch returns the next batch, or nil at the end of the run.
func (r *RunReader) NextBatch() (*chunk.Batch, error) {
	if r.eof || r.closed {
		return nil, nil
	}
	if err := util.Inject(util.FAULTS_SCOPE_RUN, FaultRunRead); err != nil {
		return nil, common.IOError(err, "read run %s", r.name)
	}
	var count, plen uint32
	var sum uint64
	err := util.Read[uint32](&count, r.deserial)
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.eof = true
			return nil, nil
		}
		return nil, r.readError(err)
	}
	if err = util.Read[uint32](&plen, r.deserial); err != nil {
		return nil, r.readError(err)
	}
	if err = util.Read[uint64](&sum, r.deserial); err != nil {
		return nil, r.readError(err)
	}
	if int(count) > r.cap || count == 0 {
		return nil, common.FormatError(nil, "record of %d tuples in run %s, page holds %d", count, r.name, r.cap)
	}
	if plen > maxPayloadLen {
		return nil, common.FormatError(nil, "record length %d in run %s", plen, r.name)
	}
	payload := make([]byte, plen)
	if err = r.deserial.ReadData(payload, int(plen)); err != nil {
		return nil, r.readError(err)
	}
	if checksum(payload) != sum {
		return nil, common.FormatError(nil, "checksum mismatch in run %s", r.name)
	}
	batch, err := decodeBatch(payload, int(count), r.types, r.cap)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", r.name, err)
	}
	return batch, nil
}

func (r *RunReader) readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return common.FormatError(err, "truncated record in run %s", r.name)
	}
	return common.IOError(err, "read run %s", r.name)
}

func (r *RunReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.deserial.Close(); err != nil {
		return common.IOError(err, "close run %s", r.name)
	}
	return nil
}
