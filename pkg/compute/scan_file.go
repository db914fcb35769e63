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
package compute

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xitongsys/parquet-go-source/local"
	pqReader "github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xlab/treeprint"
	"go.uber.org/multierr"

	"github.com/daviszhen/qexec/pkg/chunk"
	"github.com/daviszhen/qexec/pkg/common"
)

const (
	FormatCsv     = "csv"
	FormatParquet = "parquet"
)

var _ Operator = &FileScan{}

// FileScan reads a csv or parquet file. Columns are taken positionally
// and converted to the schema types.
type FileScan struct {
	ctx       *ExecCtx
	schema    *common.Schema
	path      string
	format    string
	comma     rune
	batchSize int

	dataFile *os.File
	reader   *csv.Reader

	pqFile   source.ParquetFile
	pqReader *pqReader.ParquetReader
	rowsLeft int64

	eos bool
}

func NewFileScan(ctx *ExecCtx, schema *common.Schema, path, format string) *FileScan {
	return &FileScan{
		ctx:    ctx,
		schema: schema,
		path:   path,
		format: format,
		comma:  ',',
	}
}

func (scan *FileScan) SetDelimiter(comma rune) {
	scan.comma = comma
}

func (scan *FileScan) Open() error {
	var err error
	scan.batchSize, err = batchSizeOf(scan.ctx, scan.schema)
	if err != nil {
		return err
	}
	switch scan.format {
	case FormatParquet:
		scan.pqFile, err = local.NewLocalFileReader(scan.path)
		if err != nil {
			return common.ResourceError(err, "open %s", scan.path)
		}
		scan.pqReader, err = pqReader.NewParquetColumnReader(scan.pqFile, 1)
		if err != nil {
			_ = scan.pqFile.Close()
			scan.pqFile = nil
			return common.FormatError(err, "read parquet footer of %s", scan.path)
		}
		scan.rowsLeft = scan.pqReader.GetNumRows()
	case FormatCsv:
		scan.dataFile, err = os.OpenFile(scan.path, os.O_RDONLY, 0)
		if err != nil {
			return common.ResourceError(err, "open %s", scan.path)
		}
		scan.reader = csv.NewReader(scan.dataFile)
		scan.reader.Comma = scan.comma
		scan.reader.FieldsPerRecord = -1
	default:
		return common.PreconditionError("unsupported data format %q", scan.format)
	}
	return nil
}

func (scan *FileScan) Next() (*chunk.Batch, error) {
	if scan.eos {
		return nil, nil
	}
	var batch *chunk.Batch
	var err error
	switch scan.format {
	case FormatParquet:
		batch, err = scan.readParquet()
	default:
		batch, err = scan.readCsv()
	}
	if err != nil {
		return nil, err
	}
	if batch.IsEmpty() {
		scan.eos = true
		return nil, nil
	}
	return batch, nil
}

func (scan *FileScan) readCsv() (*chunk.Batch, error) {
	batch := chunk.NewBatch(scan.batchSize)
	for !batch.IsFull() {
		line, err := scan.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, common.FormatError(err, "read %s", scan.path)
		}
		if len(line) < scan.schema.Len() {
			return nil, common.FormatError(nil, "no enough fields in the line of %s", scan.path)
		}
		vals := make([]common.Value, scan.schema.Len())
		for j, attr := range scan.schema.Attrs {
			vals[j], err = common.ParseValue(line[j], attr.Typ)
			if err != nil {
				return nil, common.FormatError(err, "column %s of %s", attr, scan.path)
			}
		}
		batch.Append(chunk.NewTuple(vals...))
	}
	return batch, nil
}

func (scan *FileScan) readParquet() (*chunk.Batch, error) {
	batch := chunk.NewBatch(scan.batchSize)
	maxCnt := min(int64(scan.batchSize), scan.rowsLeft)
	if maxCnt <= 0 {
		return batch, nil
	}
	rowCnt := -1
	columns := make([][]interface{}, scan.schema.Len())
	for j := range columns {
		values, _, _, err := scan.pqReader.ReadColumnByIndex(int64(j), maxCnt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, common.IOError(err, "read column %d of %s", j, scan.path)
		}
		if rowCnt < 0 {
			rowCnt = len(values)
		} else if len(values) != rowCnt {
			return nil, common.FormatError(nil, "column %d has different count of values %d with previous columns %d",
				j, len(values), rowCnt)
		}
		columns[j] = values
	}
	for i := 0; i < rowCnt; i++ {
		vals := make([]common.Value, scan.schema.Len())
		for j, attr := range scan.schema.Attrs {
			val, err := parquetColToValue(columns[j][i], attr.Typ)
			if err != nil {
				return nil, err
			}
			vals[j] = val
		}
		batch.Append(chunk.NewTuple(vals...))
	}
	scan.rowsLeft -= int64(max(rowCnt, 0))
	return batch, nil
}

func parquetColToValue(field any, typ common.LType) (common.Value, error) {
	val := common.Value{Typ: typ}
	switch typ.Id {
	case common.LTID_INTEGER:
		switch fVal := field.(type) {
		case int32:
			val.I64 = int64(fVal)
		case int64:
			val.I64 = fVal
		default:
			return val, common.FormatError(nil, "parquet value %T is not an integer", field)
		}
	case common.LTID_FLOAT:
		switch fVal := field.(type) {
		case float32:
			val.F64 = float64(fVal)
		case float64:
			val.F64 = fVal
		default:
			return val, common.FormatError(nil, "parquet value %T is not a float", field)
		}
	case common.LTID_VARCHAR:
		str, ok := field.(string)
		if !ok {
			return val, common.FormatError(nil, "parquet value %T is not a string", field)
		}
		val.Str = str
	default:
		return val, common.FormatError(nil, "usp type %s", typ)
	}
	return val, nil
}

func (scan *FileScan) Close() error {
	var err error
	scan.eos = true
	if scan.dataFile != nil {
		scan.reader = nil
		err = multierr.Append(err, scan.dataFile.Close())
		scan.dataFile = nil
	}
	if scan.pqReader != nil {
		scan.pqReader.ReadStop()
		scan.pqReader = nil
	}
	if scan.pqFile != nil {
		err = multierr.Append(err, scan.pqFile.Close())
		scan.pqFile = nil
	}
	return err
}

func (scan *FileScan) Schema() *common.Schema {
	return scan.schema
}

func (scan *FileScan) Print(tree treeprint.Tree) {
	tree.AddMetaNode(string(OpTagFileScan), fmt.Sprintf("%s %s %s", scan.format, scan.path, scan.schema))
}
