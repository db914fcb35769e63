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
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_valueCompare(t *testing.T) {
	cases := []struct {
		a, b Value
		want int
	}{
		{IntValue(1), IntValue(2), -1},
		{IntValue(-5), IntValue(-5), 0},
		{IntValue(math.MaxInt64), IntValue(math.MinInt64), 1},
		{FloatValue(0.5), FloatValue(0.25), 1},
		{FloatValue(math.Inf(-1)), FloatValue(-1e300), -1},
		{FloatValue(math.NaN()), FloatValue(math.Inf(1)), 1},
		{FloatValue(math.NaN()), FloatValue(math.NaN()), 0},
		{StringValue("abc"), StringValue("abd"), -1},
		{StringValue(""), StringValue("a"), -1},
		{StringValue("b"), StringValue("B"), 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.a.Compare(c.b), "%v vs %v", c.a, c.b)
		assert.Equal(t, -c.want, c.b.Compare(c.a), "%v vs %v", c.b, c.a)
		assert.Equal(t, c.want == 0, c.a.Equal(c.b))
	}
}

func Test_valueCompareMismatch(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrFormat))
	}()
	IntValue(1).Compare(StringValue("1"))
}

func Test_parseValue(t *testing.T) {
	v, err := ParseValue(" 42 ", IntegerType())
	require.NoError(t, err)
	assert.Equal(t, IntValue(42), v)

	v, err = ParseValue("2.5", FloatType())
	require.NoError(t, err)
	assert.Equal(t, FloatValue(2.5), v)

	v, err = ParseValue(" keep spaces ", VarcharType())
	require.NoError(t, err)
	assert.Equal(t, " keep spaces ", v.Str)

	_, err = ParseValue("x", IntegerType())
	require.Error(t, err)
	_, err = ParseValue("1", LType{})
	require.Error(t, err)

	assert.Equal(t, "7", AnyValue(int32(7)).String())
	assert.Equal(t, "1.5", AnyValue(float32(1.5)).String())
	assert.Panics(t, func() { AnyValue(true) })
}

func Test_errorKinds(t *testing.T) {
	cause := errors.New("disk")
	err := IOError(cause, "read run %s", "r1")
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "read run r1")
	assert.True(t, IsFatal(err))

	assert.True(t, IsFatal(ResourceError(nil, "x")))
	assert.True(t, IsFatal(FormatError(nil, "x")))
	pre := PreconditionError("need %d", 3)
	assert.ErrorIs(t, pre, ErrPrecondition)
	assert.False(t, IsFatal(pre))
	assert.False(t, IsFatal(nil))
}
