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
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
	"github.com/daviszhen/qexec/pkg/util"
)

// Run file layout:
//
//	header: magic "QRUN" | version uint16
//	record: tupleCount uint32 | payloadLen uint32 | xxhash64(payload) uint64 | payload
//	tuple:  fieldCount uint16 | { tag uint8 | int64 | float64 | uint32 len + bytes }...
const (
	runMagic          = "QRUN"
	runVersion uint16 = 1

	maxPayloadLen = 1 << 30
	maxStringLen  = 1 << 24
)

func writeRunHeader(serial util.Serialize) error {
	err := serial.WriteData([]byte(runMagic), len(runMagic))
	if err != nil {
		return err
	}
	return util.Write[uint16](runVersion, serial)
}

func readRunHeader(deserial util.Deserialize) error {
	magic := make([]byte, len(runMagic))
	err := deserial.ReadData(magic, len(magic))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return common.FormatError(err, "truncated run header")
		}
		return err
	}
	if string(magic) != runMagic {
		return common.FormatError(nil, "bad run magic %q", magic)
	}
	var version uint16
	err = util.Read[uint16](&version, deserial)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return common.FormatError(err, "truncated run header")
		}
		return err
	}
	if version != runVersion {
		return common.FormatError(nil, "unsupported run version %d", version)
	}
	return nil
}

func encodeTuple(t chunk.Tuple, serial util.Serialize) error {
	err := util.Write[uint16](uint16(t.Len()), serial)
	if err != nil {
		return err
	}
	for i := 0; i < t.Len(); i++ {
		val := t.At(i)
		err = util.Write[uint8](uint8(val.Typ.Id), serial)
		if err != nil {
			return err
		}
		switch val.Typ.Id {
		case common.LTID_INTEGER:
			err = util.Write[int64](val.I64, serial)
		case common.LTID_FLOAT:
			err = util.Write[float64](val.F64, serial)
		case common.LTID_VARCHAR:
			err = util.WriteString(val.Str, serial)
		default:
			panic("usp")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// encodeBatch serializes the tuples of batch into a record payload.
func encodeBatch(batch *chunk.Batch, serial *util.BytesSerialize) ([]byte, error) {
	serial.Reset()
	for _, t := range batch.Tuples() {
		if err := encodeTuple(t, serial); err != nil {
			return nil, err
		}
	}
	return serial.Bytes(), nil
}

func decodeTuple(deserial util.Deserialize, types []common.LType) (chunk.Tuple, error) {
	var cnt uint16
	err := util.Read[uint16](&cnt, deserial)
	if err != nil {
		return chunk.Tuple{}, err
	}
	if int(cnt) != len(types) {
		return chunk.Tuple{}, common.FormatError(nil, "tuple has %d fields, expected %d", cnt, len(types))
	}
	vals := make([]common.Value, cnt)
	for i := range vals {
		var tag uint8
		err = util.Read[uint8](&tag, deserial)
		if err != nil {
			return chunk.Tuple{}, err
		}
		if common.LTypeId(tag) != types[i].Id {
			return chunk.Tuple{}, common.FormatError(nil, "field %d has tag %s, expected %s",
				i, common.LTypeId(tag), types[i].Id)
		}
		vals[i].Typ = types[i]
		switch types[i].Id {
		case common.LTID_INTEGER:
			err = util.Read[int64](&vals[i].I64, deserial)
		case common.LTID_FLOAT:
			err = util.Read[float64](&vals[i].F64, deserial)
		case common.LTID_VARCHAR:
			vals[i].Str, err = util.ReadString(deserial, maxStringLen)
		default:
			return chunk.Tuple{}, common.FormatError(nil, "unknown field tag %d", tag)
		}
		if err != nil {
			return chunk.Tuple{}, err
		}
	}
	return chunk.NewTuple(vals...), nil
}

func decodeBatch(payload []byte, count int, types []common.LType, cap int) (*chunk.Batch, error) {
	deserial := util.NewBytesDeserialize(payload)
	batch := chunk.NewBatch(cap)
	for i := 0; i < count; i++ {
		t, err := decodeTuple(deserial, types)
		if err != nil {
			if errors.Is(err, common.ErrFormat) {
				return nil, err
			}
			return nil, common.FormatError(err, "decode tuple %d", i)
		}
		batch.Append(t)
	}
	if deserial.Remaining() != 0 {
		return nil, common.FormatError(nil, "%d trailing bytes in record", deserial.Remaining())
	}
	return batch, nil
}

func checksum(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}
