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

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
)

type Serialize interface {
	WriteData(buffer []byte, len int) error
	Close() error
}

type Deserialize interface {
	ReadData(buffer []byte, len int) error
	Close() error
}

type Fixed interface {
	uint8 | uint16 | uint32 | uint64 | int64 | bool | float64
}

func fixedSize[T Fixed](value T) int {
	switch any(value).(type) {
	case uint8, bool:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		return 8
	}
}

// Write encodes value in little endian.
func Write[T Fixed](value T, serial Serialize) error {
	var buf [8]byte
	cnt := fixedSize(value)
	switch v := any(value).(type) {
	case uint8:
		buf[0] = v
	case bool:
		if v {
			buf[0] = 1
		}
	case uint16:
		binary.LittleEndian.PutUint16(buf[:], v)
	case uint32:
		binary.LittleEndian.PutUint32(buf[:], v)
	case uint64:
		binary.LittleEndian.PutUint64(buf[:], v)
	case int64:
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
	case float64:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	default:
		panic("usp fixed type")
	}
	return serial.WriteData(buf[:cnt], cnt)
}

func Read[T Fixed](value *T, deserial Deserialize) error {
	var buf [8]byte
	cnt := fixedSize(*value)
	err := deserial.ReadData(buf[:cnt], cnt)
	if err != nil {
		return err
	}
	switch v := any(value).(type) {
	case *uint8:
		*v = buf[0]
	case *bool:
		*v = buf[0] != 0
	case *uint16:
		*v = binary.LittleEndian.Uint16(buf[:])
	case *uint32:
		*v = binary.LittleEndian.Uint32(buf[:])
	case *uint64:
		*v = binary.LittleEndian.Uint64(buf[:])
	case *int64:
		*v = int64(binary.LittleEndian.Uint64(buf[:]))
	case *float64:
		*v = math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
	default:
		panic("usp fixed type")
	}
	return nil
}

func WriteString(s string, serial Serialize) error {
	err := Write[uint32](uint32(len(s)), serial)
	if err != nil {
		return err
	}
	if len(s) > 0 {
		return serial.WriteData([]byte(s), len(s))
	}
	return nil
}

// ReadString reads a length prefixed string. maxLen bounds the
// length accepted from the stream.
func ReadString(deserial Deserialize, maxLen int) (string, error) {
	var l uint32
	err := Read[uint32](&l, deserial)
	if err != nil {
		return "", err
	}
	if int(l) > maxLen {
		return "", ErrBadLength
	}
	buf := make([]byte, l)
	err = deserial.ReadData(buf, int(l))
	if err != nil {
		return "", err
	}
	return string(buf), err
}

var ErrBadLength = errors.New("length exceeds limit")

var _ Serialize = new(FileSerialize)

type FileSerialize struct {
	file   *os.File
	writer *bufio.Writer
}

// NewFileSerialize creates name exclusively. An existing file is an error.
func NewFileSerialize(name string, bufSize int) (*FileSerialize, error) {
	var err error
	ret := &FileSerialize{}
	ret.file, err = os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	if bufSize <= 0 {
		bufSize = 4096
	}
	ret.writer = bufio.NewWriterSize(ret.file, bufSize)
	return ret, nil
}

func (serial *FileSerialize) WriteData(buffer []byte, len int) error {
	var wlen int
	var n int
	var err error
	for wlen < len {
		n, err = serial.writer.Write(buffer[wlen:len])
		if err != nil {
			return err
		}
		wlen += n
	}
	return nil
}

func (serial *FileSerialize) Close() error {
	err := serial.writer.Flush()
	cerr := serial.file.Close()
	if err != nil {
		return err
	}
	return cerr
}

var _ Deserialize = new(FileDeserialize)

type FileDeserialize struct {
	file   *os.File
	reader *bufio.Reader
}

func NewFileDeserialize(name string, bufSize int) (*FileDeserialize, error) {
	var err error
	ret := &FileDeserialize{}
	ret.file, err = os.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	if bufSize <= 0 {
		bufSize = 4096
	}
	ret.reader = bufio.NewReaderSize(ret.file, bufSize)
	return ret, nil
}

// ReadData fills buffer[:len]. It returns io.EOF only when nothing was
// read and io.ErrUnexpectedEOF on a partial read.
func (deserial *FileDeserialize) ReadData(buffer []byte, len int) error {
	_, err := io.ReadFull(deserial.reader, buffer[:len])
	return err
}

func (deserial *FileDeserialize) Close() error {
	return deserial.file.Close()
}

var _ Serialize = new(BytesSerialize)

// BytesSerialize collects the written data in memory.
type BytesSerialize struct {
	buf bytes.Buffer
}

func (serial *BytesSerialize) WriteData(buffer []byte, len int) error {
	_, err := serial.buf.Write(buffer[:len])
	return err
}

func (serial *BytesSerialize) Bytes() []byte {
	return serial.buf.Bytes()
}

func (serial *BytesSerialize) Reset() {
	serial.buf.Reset()
}

func (serial *BytesSerialize) Close() error {
	return nil
}

var _ Deserialize = new(BytesDeserialize)

type BytesDeserialize struct {
	reader *bytes.Reader
}

func NewBytesDeserialize(data []byte) *BytesDeserialize {
	return &BytesDeserialize{reader: bytes.NewReader(data)}
}

func (deserial *BytesDeserialize) ReadData(buffer []byte, len int) error {
	_, err := io.ReadFull(deserial.reader, buffer[:len])
	return err
}

// Remaining reports the unread byte count.
func (deserial *BytesDeserialize) Remaining() int {
	return deserial.reader.Len()
}

func (deserial *BytesDeserialize) Close() error {
	return nil
}
