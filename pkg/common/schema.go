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
	"strings"

	"github.com/huandu/go-clone"
)

type Attribute struct {
	Table string
	Name  string
	Typ   LType
}

func NewAttribute(table, name string, typ LType) Attribute {
	return Attribute{Table: table, Name: name, Typ: typ}
}

func (attr Attribute) String() string {
	if attr.Table == "" {
		return attr.Name
	}
	return attr.Table + "." + attr.Name
}

// Match reports whether probe names attr. A probe without a table
// matches on the column name alone.
func (attr Attribute) Match(probe Attribute) bool {
	if !strings.EqualFold(attr.Name, probe.Name) {
		return false
	}
	return probe.Table == "" || strings.EqualFold(attr.Table, probe.Table)
}

// ParseAttribute parses "t.a" or "a".
func ParseAttribute(s string) Attribute {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return Attribute{Table: s[:i], Name: s[i+1:]}
	}
	return Attribute{Name: s}
}

type Schema struct {
	Attrs []Attribute
}

func NewSchema(attrs ...Attribute) *Schema {
	return &Schema{Attrs: attrs}
}

// ParseSchema parses "a:int,b:varchar(8)" into attributes of table.
func ParseSchema(table, s string) (*Schema, error) {
	ret := &Schema{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, typStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("attribute %q has no type", part)
		}
		typ, err := ParseLType(typStr)
		if err != nil {
			return nil, err
		}
		ret.Attrs = append(ret.Attrs, NewAttribute(table, strings.TrimSpace(name), typ))
	}
	if len(ret.Attrs) == 0 {
		return nil, fmt.Errorf("empty schema")
	}
	return ret, nil
}

func (s *Schema) Len() int {
	return len(s.Attrs)
}

func (s *Schema) Types() []LType {
	ret := make([]LType, len(s.Attrs))
	for i, attr := range s.Attrs {
		ret[i] = attr.Typ
	}
	return ret
}

// TupleSize is the byte size charged to one tuple of this schema.
func (s *Schema) TupleSize() int {
	size := 0
	for _, attr := range s.Attrs {
		size += attr.Typ.Width
	}
	return size
}

// IndexOf returns the position of the first attribute matching
// probe, or -1.
func (s *Schema) IndexOf(probe Attribute) int {
	for i, attr := range s.Attrs {
		if attr.Match(probe) {
			return i
		}
	}
	return -1
}

// Resolve maps attributes to their positions. A missing attribute is a
// precondition violation.
func (s *Schema) Resolve(attrs []Attribute) ([]int, error) {
	ret := make([]int, len(attrs))
	for i, attr := range attrs {
		idx := s.IndexOf(attr)
		if idx < 0 {
			return nil, PreconditionError("attribute %s is not in schema %s", attr, s)
		}
		ret[i] = idx
	}
	return ret, nil
}

// Join concatenates s and right without eliminating shared columns.
func (s *Schema) Join(right *Schema) *Schema {
	ret := s.Copy()
	ret.Attrs = append(ret.Attrs, right.Copy().Attrs...)
	return ret
}

func (s *Schema) SubSchema(attrs []Attribute) (*Schema, error) {
	idx, err := s.Resolve(attrs)
	if err != nil {
		return nil, err
	}
	ret := &Schema{Attrs: make([]Attribute, len(idx))}
	for i, j := range idx {
		ret.Attrs[i] = s.Attrs[j]
	}
	return ret, nil
}

func (s *Schema) Copy() *Schema {
	return clone.Clone(s).(*Schema)
}

func (s *Schema) String() string {
	sb := strings.Builder{}
	sb.WriteByte('[')
	for i, attr := range s.Attrs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(attr.String())
		sb.WriteByte(':')
		sb.WriteString(attr.Typ.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
