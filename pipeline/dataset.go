package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"houseprice/ml"
)

// DefaultTargetColumn 目标列
const DefaultTargetColumn = "price"

// ColumnKind 列类型
type ColumnKind int

const (
	Numeric ColumnKind = iota
	Categorical
)

func (k ColumnKind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Column 一列预测变量。数值列的缺失值为 NaN，分类列的缺失值为 Missing[i]。
type Column struct {
	Name    string
	Kind    ColumnKind
	Values  []float64
	Labels  []string
	Missing []bool
}

// MissingCount 缺失值个数
func (c *Column) MissingCount() int {
	n := 0
	for _, m := range c.Missing {
		if m {
			n++
		}
	}
	return n
}

// Frame 训练数据表
type Frame struct {
	Target      []float64
	Columns     []*Column
	DroppedRows int
}

// Rows 行数
func (f *Frame) Rows() int {
	return len(f.Target)
}

// Column 按名称查找列
func (f *Frame) Column(name string) (*Column, bool) {
	for _, c := range f.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ReadOptions 读取配置
type ReadOptions struct {
	Encoding     string
	TargetColumn string
}

// missingTokens mirrors the cells pandas reads as NaN by default.
var missingTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

func isMissing(cell string) bool {
	_, ok := missingTokens[strings.TrimSpace(cell)]
	return ok
}

// ReadCSVFile 读取数据集文件
func ReadCSVFile(path string, opts ReadOptions) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ml.ErrMissingFile, path)
		}
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSV 解析数据集。价格缺失或无法解析的行被丢弃并计数。
func ReadCSV(r io.Reader, opts ReadOptions) (*Frame, error) {
	decoded, err := decodingReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}
	target := opts.TargetColumn
	if target == "" {
		target = DefaultTargetColumn
	}

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("dataset has no header row")
	}

	header := make([]string, len(records[0]))
	targetIdx := -1
	for i, name := range records[0] {
		header[i] = strings.TrimSpace(name)
		if header[i] == target {
			targetIdx = i
		}
	}
	if targetIdx < 0 {
		return nil, fmt.Errorf("dataset has no %q column", target)
	}

	frame := &Frame{}
	var kept [][]string
	for _, record := range records[1:] {
		if len(record) != len(header) {
			return nil, fmt.Errorf("row has %d fields, header has %d", len(record), len(header))
		}
		price, ok := parseCell(record[targetIdx])
		if !ok {
			frame.DroppedRows++
			continue
		}
		frame.Target = append(frame.Target, price)
		kept = append(kept, record)
	}
	if len(kept) == 0 {
		return nil, errors.New("dataset has no rows with a price")
	}

	for i, name := range header {
		if i == targetIdx {
			continue
		}
		frame.Columns = append(frame.Columns, buildColumn(name, kept, i))
	}
	return frame, nil
}

func decodingReader(r io.Reader, name string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported dataset encoding %q: %w", name, err)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

func parseCell(cell string) (float64, bool) {
	if isMissing(cell) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// buildColumn types a column as numeric when every non-missing cell parses as a number.
func buildColumn(name string, records [][]string, idx int) *Column {
	col := &Column{
		Name:    name,
		Kind:    Numeric,
		Values:  make([]float64, len(records)),
		Missing: make([]bool, len(records)),
	}
	for i, record := range records {
		cell := record[idx]
		if isMissing(cell) {
			col.Missing[i] = true
			col.Values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			col.Kind = Categorical
			break
		}
		col.Values[i] = v
	}
	if col.Kind == Numeric {
		return col
	}

	col.Values = nil
	col.Labels = make([]string, len(records))
	for i, record := range records {
		if col.Missing[i] = isMissing(record[idx]); col.Missing[i] {
			continue
		}
		col.Labels[i] = ml.NormalizeLocation(record[idx])
	}
	return col
}
