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

// Chunks splits data into consecutive groups of at most size elements.
func Chunks[T any](data []T, size int) [][]T {
	AssertFunc(size > 0)
	ret := make([][]T, 0, (len(data)+size-1)/size)
	for i := 0; i < len(data); i += size {
		j := min(i+size, len(data))
		ret = append(ret, data[i:j])
	}
	return ret
}
