package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// SchemaVersion is bumped whenever the persisted column contract changes shape.
const SchemaVersion = 1

const (
	FieldLocation  = "location"
	FieldHouseType = "h_type"
	FieldSize      = "size"
)

// CategoricalFields lists the one-hot encoded fields the encoder knows how to fill.
func CategoricalFields() []string {
	return []string{FieldLocation, FieldHouseType, FieldSize}
}

// Schema is the ordered column contract shared by the trainer and the encoder.
type Schema struct {
	Version     int      `json:"schema_version"`
	Columns     []string `json:"columns"`
	Categorical []string `json:"categorical"`

	index  map[string]int
	onehot map[string]map[string]int
}

func NewSchema(columns []string, categorical []string) (*Schema, error) {
	if len(columns) == 0 {
		return nil, errors.New("schema has no columns")
	}
	if len(categorical) == 0 {
		categorical = CategoricalFields()
	}
	s := &Schema{
		Version:     SchemaVersion,
		Columns:     append([]string(nil), columns...),
		Categorical: append([]string(nil), categorical...),
	}
	if err := s.build(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) build() error {
	s.index = make(map[string]int, len(s.Columns))
	s.onehot = make(map[string]map[string]int, len(s.Categorical))
	for _, field := range s.Categorical {
		s.onehot[field] = make(map[string]int)
	}

	for i, col := range s.Columns {
		if _, dup := s.index[col]; dup {
			return fmt.Errorf("duplicate column %q", col)
		}
		s.index[col] = i
		if field, category, ok := s.splitOneHot(col); ok {
			s.onehot[field][category] = i
		}
	}
	return nil
}

// splitOneHot picks the longest categorical prefix so that "h_type_villa" is never
// attributed to a hypothetical "h" field.
func (s *Schema) splitOneHot(col string) (field, category string, ok bool) {
	for _, f := range s.Categorical {
		prefix := f + "_"
		if strings.HasPrefix(col, prefix) && len(col) > len(prefix) && len(f) > len(field) {
			field, category, ok = f, col[len(prefix):], true
		}
	}
	return field, category, ok
}

func (s *Schema) Len() int {
	return len(s.Columns)
}

func (s *Schema) Index(column string) (int, bool) {
	i, ok := s.index[column]
	return i, ok
}

// OneHotIndex returns the indicator column for a category. A false result means the
// category is the dropped reference one or was never seen during training.
func (s *Schema) OneHotIndex(field, category string) (int, bool) {
	categories, ok := s.onehot[field]
	if !ok {
		return 0, false
	}
	i, ok := categories[category]
	return i, ok
}

// Categories returns the indicator categories of a field in column order.
func (s *Schema) Categories(field string) []string {
	out := make([]string, 0, len(s.onehot[field]))
	for _, col := range s.Columns {
		if f, category, ok := s.splitOneHot(col); ok && f == field {
			out = append(out, category)
		}
	}
	return out
}

// Validate checks the schema is well-formed before it is served.
func (s *Schema) Validate() error {
	var err error
	if s.Version != SchemaVersion {
		err = multierr.Append(err, fmt.Errorf("unsupported schema version %d", s.Version))
	}
	if len(s.Columns) == 0 {
		err = multierr.Append(err, errors.New("schema has no columns"))
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, col := range s.Columns {
		if strings.TrimSpace(col) == "" {
			err = multierr.Append(err, errors.New("schema has an empty column name"))
			continue
		}
		if _, dup := seen[col]; dup {
			err = multierr.Append(err, fmt.Errorf("duplicate column %q", col))
		}
		seen[col] = struct{}{}
	}
	for _, field := range CategoricalFields() {
		if len(s.onehot[field]) == 0 {
			err = multierr.Append(err, fmt.Errorf("no %q indicator columns", field+"_"))
		}
	}
	return err
}

// UnmarshalJSON rebuilds the lookup maps so a decoded schema is immediately usable.
func (s *Schema) UnmarshalJSON(data []byte) error {
	type plain Schema
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Schema(p)
	if len(s.Categorical) == 0 {
		s.Categorical = CategoricalFields()
	}
	return s.build()
}
