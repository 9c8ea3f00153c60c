package pipeline

import (
	"fmt"
	"sort"
)

// Encoded 编码后的特征矩阵
type Encoded struct {
	Columns []string
	Matrix  [][]float64
}

// Categories 分类列的去重取值（排序后）
func (f *Frame) Categories(name string) []string {
	col, ok := f.Column(name)
	if !ok || col.Kind != Categorical {
		return nil
	}
	return uniqueLabels(col)
}

func uniqueLabels(col *Column) []string {
	seen := make(map[string]struct{})
	for i, label := range col.Labels {
		if !col.Missing[i] {
			seen[label] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for label := range seen {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// GetDummies 数值列按原顺序保留，随后每个分类列展开为除首个（参照）类别外的指示列，
// 列名为 "<field>_<category>"。数值列必须已经完成缺失值填充。
func GetDummies(frame *Frame) (*Encoded, error) {
	var numeric, categorical []*Column
	for _, col := range frame.Columns {
		if col.Kind == Numeric {
			numeric = append(numeric, col)
		} else {
			categorical = append(categorical, col)
		}
	}

	enc := &Encoded{}
	for _, col := range numeric {
		if col.MissingCount() > 0 {
			return nil, fmt.Errorf("column %q still has missing values", col.Name)
		}
		enc.Columns = append(enc.Columns, col.Name)
	}

	type dummy struct {
		col   *Column
		index map[string]int
	}
	dummies := make([]dummy, 0, len(categorical))
	for _, col := range categorical {
		labels := uniqueLabels(col)
		d := dummy{col: col, index: make(map[string]int)}
		if len(labels) > 1 {
			for _, label := range labels[1:] {
				d.index[label] = len(enc.Columns)
				enc.Columns = append(enc.Columns, col.Name+"_"+label)
			}
		}
		dummies = append(dummies, d)
	}

	rows := frame.Rows()
	enc.Matrix = make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, len(enc.Columns))
		for j, col := range numeric {
			v := col.Values[i]
			if !isFinite(v) {
				return nil, fmt.Errorf("column %q row %d is not finite", col.Name, i)
			}
			row[j] = v
		}
		for _, d := range dummies {
			if d.col.Missing[i] {
				continue
			}
			if j, ok := d.index[d.col.Labels[i]]; ok {
				row[j] = 1
			}
		}
		enc.Matrix[i] = row
	}
	return enc, nil
}
