// Package frame implements the tabular feature handling the model depends
// on: one-hot expansion of categorical attributes and reindexing onto the
// training column list.
package frame

import (
	"encoding/json"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/diamondlab/pricer/pkg/contract"
)

// Record is one raw feature record as decoded from JSON.
type Record map[string]any

// Frame is a dense numeric table with named, ordered columns.
type Frame struct {
	columns []string
	index   map[string]int
	data    []float64 // row-major, len = rows*len(columns)
	rows    int
}

// New returns an all-zero frame with the given columns and row count.
func New(columns []string, rows int) *Frame {
	index := make(map[string]int, len(columns))
	cols := make([]string, len(columns))
	copy(cols, columns)
	for i, c := range cols {
		index[c] = i
	}
	return &Frame{
		columns: cols,
		index:   index,
		data:    make([]float64, rows*len(cols)),
		rows:    rows,
	}
}

func (f *Frame) Rows() int         { return f.rows }
func (f *Frame) Columns() []string { return f.columns }

func (f *Frame) At(row int, column string) float64 {
	i, ok := f.index[column]
	if !ok {
		return 0
	}
	return f.data[row*len(f.columns)+i]
}

func (f *Frame) Set(row int, column string, v float64) {
	i, ok := f.index[column]
	if !ok {
		return
	}
	f.data[row*len(f.columns)+i] = v
}

// Matrix exposes the frame as a dense matrix in column order.
func (f *Frame) Matrix() *mat.Dense {
	data := make([]float64, len(f.data))
	copy(data, f.data)
	return mat.NewDense(f.rows, len(f.columns), data)
}

// Equal reports whether two frames have identical columns, order and values.
func (f *Frame) Equal(other *Frame) bool {
	if f.rows != other.rows || len(f.columns) != len(other.columns) {
		return false
	}
	for i, c := range f.columns {
		if other.columns[i] != c {
			return false
		}
	}
	for i, v := range f.data {
		if other.data[i] != v {
			return false
		}
	}
	return true
}

// Select returns a new frame holding the given rows, in the given order,
// with the same columns.
func (f *Frame) Select(rows []int) *Frame {
	out := New(f.columns, len(rows))
	width := len(f.columns)
	for i, row := range rows {
		copy(out.data[i*width:(i+1)*width], f.data[row*width:(row+1)*width])
	}
	return out
}

// Dummies expands a record batch into a numeric frame. Attributes whose
// values are strings become indicator columns named "{attribute}_{value}",
// one per distinct value observed in the batch. Numeric attributes pass
// through unchanged. With dropFirst set, the lexically first value of each
// categorical attribute gets no indicator, matching the encoding the
// training pipeline uses.
//
// A value that is neither numeric nor a string is a client error: the
// returned error names the attribute and the offending value.
func Dummies(records []Record, dropFirst bool) (*Frame, *contract.Error) {
	numeric := map[string]bool{}
	categorical := map[string]map[string]bool{}

	for _, rec := range records {
		for key, value := range rec {
			switch v := value.(type) {
			case string:
				if numeric[key] {
					return nil, contract.NewErrorf(contract.ErrorCodeInvalidParameterValue,
						"could not convert string to float: '%s' for attribute '%s'", v, key)
				}
				if categorical[key] == nil {
					categorical[key] = map[string]bool{}
				}
				categorical[key][v] = true
			default:
				if _, err := toFloat(value); err != nil {
					return nil, contract.NewErrorf(contract.ErrorCodeInvalidParameterValue,
						"invalid value %v for attribute '%s'", value, key)
				}
				if categorical[key] != nil {
					return nil, contract.NewErrorf(contract.ErrorCodeInvalidParameterValue,
						"mixed numeric and string values for attribute '%s'", key)
				}
				numeric[key] = true
			}
		}
	}

	numericCols := make([]string, 0, len(numeric))
	for c := range numeric {
		numericCols = append(numericCols, c)
	}
	sort.Strings(numericCols)

	catCols := make([]string, 0, len(categorical))
	for c := range categorical {
		catCols = append(catCols, c)
	}
	sort.Strings(catCols)

	columns := append([]string{}, numericCols...)
	dropped := map[string]string{}
	for _, attr := range catCols {
		values := make([]string, 0, len(categorical[attr]))
		for v := range categorical[attr] {
			values = append(values, v)
		}
		sort.Strings(values)
		if dropFirst {
			dropped[attr] = values[0]
			values = values[1:]
		}
		for _, v := range values {
			columns = append(columns, attr+"_"+v)
		}
	}

	out := New(columns, len(records))
	for i, rec := range records {
		for key, value := range rec {
			if s, ok := value.(string); ok {
				if dropFirst && dropped[key] == s {
					continue
				}
				out.Set(i, key+"_"+s, 1)
				continue
			}
			f, _ := toFloat(value)
			out.Set(i, key, f)
		}
	}

	return out, nil
}

// Align reindexes a frame onto the training column list: columns in the
// list but missing from the frame are zero-filled, columns not in the list
// are dropped, and the output column order follows the list exactly.
// Aligning an already aligned frame is a no-op.
func Align(f *Frame, columns []string) *Frame {
	out := New(columns, f.rows)
	for _, c := range columns {
		src, ok := f.index[c]
		if !ok {
			continue
		}
		dst := out.index[c]
		for row := 0; row < f.rows; row++ {
			out.data[row*len(out.columns)+dst] = f.data[row*len(f.columns)+src]
		}
	}
	return out
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("not a number: %v", value)
	}
}
