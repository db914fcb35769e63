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
	"fmt"
	"strconv"
	"strings"
)

const (
	IntegerWidth        = 4
	FloatWidth          = 4
	DefaultVarcharWidth = 16
)

// LType is a scalar type. Width is the byte size charged to one
// attribute of this type when sizing pages.
type LType struct {
	Id    LTypeId
	Width int
}

func IntegerType() LType {
	return LType{Id: LTID_INTEGER, Width: IntegerWidth}
}

func FloatType() LType {
	return LType{Id: LTID_FLOAT, Width: FloatWidth}
}

func VarcharType() LType {
	return LType{Id: LTID_VARCHAR, Width: DefaultVarcharWidth}
}

func VarcharTypeWithWidth(width int) LType {
	return LType{Id: LTID_VARCHAR, Width: width}
}

func (lt LType) String() string {
	switch lt.Id {
	case LTID_INTEGER:
		return "int"
	case LTID_FLOAT:
		return "float"
	case LTID_VARCHAR:
		return fmt.Sprintf("varchar(%d)", lt.Width)
	default:
		return lt.Id.String()
	}
}

// ParseLType accepts "int", "integer", "float", "real", "varchar",
// "string" and "varchar(n)".
func ParseLType(s string) (LType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "int", "integer":
		return IntegerType(), nil
	case "float", "real", "double":
		return FloatType(), nil
	case "varchar", "string", "text":
		return VarcharType(), nil
	}
	if strings.HasPrefix(s, "varchar(") && strings.HasSuffix(s, ")") {
		w, err := strconv.Atoi(s[len("varchar(") : len(s)-1])
		if err != nil || w <= 0 {
			return LType{}, fmt.Errorf("invalid varchar width in %q", s)
		}
		return VarcharTypeWithWidth(w), nil
	}
	return LType{}, fmt.Errorf("unsupported type %q", s)
}
