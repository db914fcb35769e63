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

import "fmt"

type LTypeId uint8

const (
	LTID_INVALID LTypeId = 0
	LTID_INTEGER LTypeId = 13
	LTID_FLOAT   LTypeId = 22
	LTID_VARCHAR LTypeId = 25
)

var lTypeIdToStr = map[LTypeId]string{
	LTID_INVALID: "LTID_INVALID",
	LTID_INTEGER: "LTID_INTEGER",
	LTID_FLOAT:   "LTID_FLOAT",
	LTID_VARCHAR: "LTID_VARCHAR",
}

func (id LTypeId) String() string {
	if s, has := lTypeIdToStr[id]; has {
		return s
	}
	return fmt.Sprintf("LTID_%d", uint8(id))
}
