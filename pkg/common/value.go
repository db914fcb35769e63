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
package common

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a tagged scalar. Only the field selected by Typ.Id is
// meaningful.
type Value struct {
	Typ LType
	I64 int64
	F64 float64
	Str string
}

func IntValue(v int64) Value {
	return Value{Typ: IntegerType(), I64: v}
}

func FloatValue(v float64) Value {
	return Value{Typ: FloatType(), F64: v}
}

func StringValue(v string) Value {
	return Value{Typ: VarcharType(), Str: v}
}

// AnyValue converts a Go scalar into a Value. It panics on other types.
func AnyValue(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case int:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case float32:
		return FloatValue(float64(x))
	case float64:
		return FloatValue(x)
	case string:
		return StringValue(x)
	default:
		panic(fmt.Sprintf("usp value type %T", v))
	}
}

func (val Value) String() string {
	switch val.Typ.Id {
	case LTID_INTEGER:
		return strconv.FormatInt(val.I64, 10)
	case LTID_FLOAT:
		return strconv.FormatFloat(val.F64, 'g', -1, 64)
	case LTID_VARCHAR:
		return val.Str
	default:
		panic("usp")
	}
}

// Compare orders two values of the same type id. Floats use a total
// order in which NaN is greater than every number. Different type ids
// panic with a format error.
func (val Value) Compare(other Value) int {
	if val.Typ.Id != other.Typ.Id {
		panic(FormatError(nil, "compare %s with %s", val.Typ.Id, other.Typ.Id))
	}
	switch val.Typ.Id {
	case LTID_INTEGER:
		return cmp.Compare(val.I64, other.I64)
	case LTID_FLOAT:
		lNan, rNan := math.IsNaN(val.F64), math.IsNaN(other.F64)
		switch {
		case lNan && rNan:
			return 0
		case lNan:
			return 1
		case rNan:
			return -1
		}
		return cmp.Compare(val.F64, other.F64)
	case LTID_VARCHAR:
		return strings.Compare(val.Str, other.Str)
	default:
		panic("usp")
	}
}

func (val Value) Equal(other Value) bool {
	return val.Typ.Id == other.Typ.Id && val.Compare(other) == 0
}

// ParseValue converts text into a value of type typ.
func ParseValue(field string, typ LType) (Value, error) {
	val := Value{Typ: typ}
	var err error
	switch typ.Id {
	case LTID_INTEGER:
		val.I64, err = strconv.ParseInt(strings.TrimSpace(field), 10, 64)
	case LTID_FLOAT:
		val.F64, err = strconv.ParseFloat(strings.TrimSpace(field), 64)
	case LTID_VARCHAR:
		val.Str = field
	default:
		err = fmt.Errorf("usp type %s", typ)
	}
	if err != nil {
		return Value{}, err
	}
	return val, nil
}
