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

// KeyComparator orders tuples lexicographically on Keys. The first key
// dominates and ties cascade to the next. Desc reverses the whole key.
type KeyComparator struct {
	Keys []int
	Desc bool
}

func NewKeyComparator(keys []int, desc bool) KeyComparator {
	return KeyComparator{Keys: keys, Desc: desc}
}

// AllKeys returns 0..n-1.
func AllKeys(n int) []int {
	ret := make([]int, n)
	for i := range ret {
		ret[i] = i
	}
	return ret
}

func (kc KeyComparator) Compare(a, b Tuple) int {
	for _, k := range kc.Keys {
		if c := a.At(k).Compare(b.At(k)); c != 0 {
			if kc.Desc {
				return -c
			}
			return c
		}
	}
	return 0
}

func (kc KeyComparator) Less(a, b Tuple) bool {
	return kc.Compare(a, b) < 0
}

// PairComparator compares a left tuple with a right tuple on paired
// attribute positions.
type PairComparator struct {
	Left  []int
	Right []int
}

func NewPairComparator(left, right []int) PairComparator {
	if len(left) != len(right) {
		panic("unbalanced join keys")
	}
	return PairComparator{Left: left, Right: right}
}

func (pc PairComparator) Compare(l, r Tuple) int {
	for i := range pc.Left {
		if c := l.At(pc.Left[i]).Compare(r.At(pc.Right[i])); c != 0 {
			return c
		}
	}
	return 0
}

func (pc PairComparator) Equal(l, r Tuple) bool {
	for i := range pc.Left {
		if !l.At(pc.Left[i]).Equal(r.At(pc.Right[i])) {
			return false
		}
	}
	return true
}
