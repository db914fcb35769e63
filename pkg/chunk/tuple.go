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
	"strings"

	"github.com/daviszhen/qexec/pkg/common"
)

// Tuple is an immutable row of scalar fields.
type Tuple struct {
	fields []common.Value
}

func NewTuple(vals ...common.Value) Tuple {
	return Tuple{fields: vals}
}

// MakeTuple builds a tuple from Go scalars (int, float64, string).
func MakeTuple(args ...any) Tuple {
	vals := make([]common.Value, len(args))
	for i, arg := range args {
		vals[i] = common.AnyValue(arg)
	}
	return Tuple{fields: vals}
}

func (t Tuple) Len() int {
	return len(t.fields)
}

func (t Tuple) At(i int) common.Value {
	return t.fields[i]
}

// Values returns a copy of the fields.
func (t Tuple) Values() []common.Value {
	ret := make([]common.Value, len(t.fields))
	copy(ret, t.fields)
	return ret
}

// Join returns the fields of t followed by the fields of right.
func (t Tuple) Join(right Tuple) Tuple {
	vals := make([]common.Value, 0, len(t.fields)+len(right.fields))
	vals = append(vals, t.fields...)
	vals = append(vals, right.fields...)
	return Tuple{fields: vals}
}

// Project picks the fields at idx.
func (t Tuple) Project(idx []int) Tuple {
	vals := make([]common.Value, len(idx))
	for i, j := range idx {
		vals[i] = t.fields[j]
	}
	return Tuple{fields: vals}
}

func (t Tuple) Equal(other Tuple) bool {
	if len(t.fields) != len(other.fields) {
		return false
	}
	for i := range t.fields {
		if !t.fields[i].Equal(other.fields[i]) {
			return false
		}
	}
	return true
}

func (t Tuple) String() string {
	sb := strings.Builder{}
	sb.WriteByte('(')
	for i, val := range t.fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(val.String())
	}
	sb.WriteByte(')')
	return sb.String()
}
