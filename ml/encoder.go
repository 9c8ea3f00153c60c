package ml

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	KeyHouseType = "h_type"
	KeyLocation  = "location"
	KeySize      = "size"
	KeyBath      = "bath"
	KeyBalcony   = "balcony"
	KeyTotalSqft = "total_sqft"
)

const (
	ColumnTotalSqft = "total_sqft"
	ColumnBathroom  = "bathroom"
	ColumnBalcony   = "balcony"
)

// FeatureVector is one encoded row, aligned with a Schema.
type FeatureVector []float64

// RawInput holds request values by key. A missing key means the field was not supplied.
type RawInput map[string]string

// Input is a fully defaulted prediction request.
type Input struct {
	HouseType int     `json:"h_type"`
	Location  string  `json:"location"`
	Size      int     `json:"size"`
	Bath      float64 `json:"bath"`
	Balcony   float64 `json:"balcony"`
	TotalSqft float64 `json:"total_sqft"`
}

func DefaultInput(locations LocationSet) Input {
	return Input{
		HouseType: 0,
		Location:  locations.First(),
		Size:      2,
		Bath:      2,
		Balcony:   1,
		TotalSqft: 1200,
	}
}

// neighborhoodDefaults are the "typical neighborhood" values for features the form
// does not ask for.
var neighborhoodDefaults = []struct {
	column string
	value  float64
}{
	{"yr_built", 2015},
	{"furniture", 0},
	{"amenities", 1},
	{"market", 1},
	{"office", 1},
	{"school", 1},
	{"college", 0},
	{"hospital", 1},
	{"population", 1},
	{"railway", 0},
	{"airport", 0},
	{"on_road", 1},
	{"air_quality", 1},
	{"restaurant", 1},
	{"park", 1},
}

func ParseInput(raw RawInput, locations LocationSet) (Input, error) {
	in := DefaultInput(locations)
	var err error

	if v, ok := raw[KeyHouseType]; ok {
		if in.HouseType, err = parseIndex(KeyHouseType, v); err != nil {
			return Input{}, err
		}
	}
	if v, ok := raw[KeyLocation]; ok {
		in.Location = NormalizeLocation(v)
	}
	if v, ok := raw[KeySize]; ok {
		if in.Size, err = parseIndex(KeySize, v); err != nil {
			return Input{}, err
		}
	}
	if v, ok := raw[KeyBath]; ok {
		if in.Bath, err = parseNumber(KeyBath, v); err != nil {
			return Input{}, err
		}
	}
	if v, ok := raw[KeyBalcony]; ok {
		if in.Balcony, err = parseNumber(KeyBalcony, v); err != nil {
			return Input{}, err
		}
	}
	if v, ok := raw[KeyTotalSqft]; ok {
		if in.TotalSqft, err = parseNumber(KeyTotalSqft, v); err != nil {
			return Input{}, err
		}
	}
	return in, nil
}

// NormalizeLocation trims and NFC-normalizes a neighborhood name so that visually
// identical names hit the same indicator column.
func NormalizeLocation(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func parseIndex(field, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &InputError{Field: field, Value: value, Err: errors.Unwrap(err)}
	}
	return n, nil
}

func parseNumber(field, value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, &InputError{Field: field, Value: value, Err: errors.Unwrap(err)}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &InputError{Field: field, Value: value, Err: errors.New("value must be finite")}
	}
	return f, nil
}

// Encode builds the feature vector the model was trained on. Unknown categories and
// reference categories leave their indicator columns at zero.
func Encode(in Input, schema *Schema, cats CategoryMap) (FeatureVector, error) {
	if schema == nil || schema.Len() == 0 {
		return nil, ErrArtifactsUnavailable
	}
	vec := make(FeatureVector, schema.Len())

	set := func(column string, value float64) {
		if i, ok := schema.Index(column); ok {
			vec[i] = value
		}
	}
	set(ColumnTotalSqft, in.TotalSqft)
	set(ColumnBathroom, in.Bath)
	set(ColumnBalcony, in.Balcony)

	hot := func(field, category string) {
		if i, ok := schema.OneHotIndex(field, category); ok {
			vec[i] = 1
		}
	}
	hot(FieldLocation, in.Location)
	hot(FieldHouseType, cats.HouseType(in.HouseType))
	hot(FieldSize, cats.Size(in.Size))

	for _, d := range neighborhoodDefaults {
		set(d.column, d.value)
	}
	return vec, nil
}

// EncodeRaw parses request values, filling defaults from locations, and encodes them.
func EncodeRaw(raw RawInput, schema *Schema, cats CategoryMap, locations LocationSet) (FeatureVector, Input, error) {
	in, err := ParseInput(raw, locations)
	if err != nil {
		return nil, Input{}, err
	}
	vec, err := Encode(in, schema, cats)
	if err != nil {
		return nil, Input{}, err
	}
	return vec, in, nil
}
