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
package chunk

import (
	"errors"
	"fmt"
)

var ErrBatchFull = errors.New("batch is full")

// Batch is one page of tuples. Size never exceeds Cap.
type Batch struct {
	tuples []Tuple
	_cap   int
}

func NewBatch(cap int) *Batch {
	if cap <= 0 {
		panic(fmt.Sprintf("invalid batch capacity %d", cap))
	}
	return &Batch{
		tuples: make([]Tuple, 0, cap),
		_cap:   cap,
	}
}

// BatchCapacity is the number of tuples of tupleSize bytes that fit in
// one page. It is zero when a tuple does not fit.
func BatchCapacity(pageSize, tupleSize int) int {
	if tupleSize <= 0 {
		return 0
	}
	return pageSize / tupleSize
}

func (b *Batch) Add(t Tuple) error {
	if b.IsFull() {
		return ErrBatchFull
	}
	b.tuples = append(b.tuples, t)
	return nil
}

// Append adds t. The caller checks IsFull first.
func (b *Batch) Append(t Tuple) {
	if err := b.Add(t); err != nil {
		panic(err)
	}
}

func (b *Batch) Get(i int) Tuple {
	return b.tuples[i]
}

func (b *Batch) Size() int {
	return len(b.tuples)
}

func (b *Batch) Cap() int {
	return b._cap
}

func (b *Batch) IsFull() bool {
	return len(b.tuples) >= b._cap
}

func (b *Batch) IsEmpty() bool {
	return len(b.tuples) == 0
}

// Tuples exposes the backing slice. Callers must not modify it.
func (b *Batch) Tuples() []Tuple {
	return b.tuples
}

func (b *Batch) Clear() {
	clear(b.tuples)
	b.tuples = b.tuples[:0]
}

func (b *Batch) String() string {
	return fmt.Sprintf("batch(%d/%d)", len(b.tuples), b._cap)
}
