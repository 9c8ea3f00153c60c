package ml

import (
	"sort"
	"strings"
)

const (
	DefaultHouseType = "apartment"
	DefaultSize      = "2 BHK"
)

// CategoryMap translates dropdown indices into the labels used in one-hot column names.
type CategoryMap struct {
	HouseTypes map[int]string `json:"house_types"`
	Sizes      map[int]string `json:"sizes"`
}

func DefaultCategoryMap() CategoryMap {
	return CategoryMap{
		HouseTypes: map[int]string{
			0: "apartment",
			1: "duplex",
			2: "pent house",
			3: "tenament",
			4: "triplex",
			5: "villa",
		},
		Sizes: map[int]string{
			1: "1 BHK",
			2: "2 BHK",
			3: "3 BHK",
			4: "4 BHK",
			5: "5 BHK",
		},
	}
}

// HouseType resolves an index, falling back to DefaultHouseType for unknown ones.
func (c CategoryMap) HouseType(idx int) string {
	if label, ok := c.HouseTypes[idx]; ok {
		return label
	}
	return DefaultHouseType
}

func (c CategoryMap) Size(idx int) string {
	if label, ok := c.Sizes[idx]; ok {
		return label
	}
	return DefaultSize
}

// DeriveCategoryMap extends the fallback map with labels observed in training data.
// Known labels keep their index across retrains; new ones are appended after the
// current maximum in sorted order.
func DeriveCategoryMap(houseTypes, sizes []string) CategoryMap {
	base := DefaultCategoryMap()
	return CategoryMap{
		HouseTypes: extendStable(base.HouseTypes, houseTypes),
		Sizes:      extendStable(base.Sizes, sizes),
	}
}

func extendStable(base map[int]string, observed []string) map[int]string {
	out := make(map[int]string, len(base)+len(observed))
	known := make(map[string]struct{}, len(base))
	next := 0
	for idx, label := range base {
		out[idx] = label
		known[label] = struct{}{}
		if idx >= next {
			next = idx + 1
		}
	}

	sorted := append([]string(nil), observed...)
	sort.Strings(sorted)
	for _, label := range sorted {
		if strings.TrimSpace(label) == "" {
			continue
		}
		if _, ok := known[label]; ok {
			continue
		}
		out[next] = label
		known[label] = struct{}{}
		next++
	}
	return out
}

// Option is one dropdown entry.
type Option struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

func (c CategoryMap) HouseTypeOptions() []Option {
	return sortedOptions(c.HouseTypes)
}

func (c CategoryMap) SizeOptions() []Option {
	return sortedOptions(c.Sizes)
}

func sortedOptions(m map[int]string) []Option {
	out := make([]Option, 0, len(m))
	for idx, label := range m {
		out = append(out, Option{Index: idx, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// LocationSet is the ordered list of selectable neighborhoods.
type LocationSet []string

func DefaultLocations() LocationSet {
	return LocationSet{
		"Ajwa Road", "Akota", "Alkapuri", "Atladra", "Bhayli", "Chhani", "Fatehgunj",
		"Gorwa", "Gotri", "Harni", "Karelibaug", "Khodiyar Nagar", "Laxmipura",
		"Madhav Pura", "Mandvi", "Maneja", "Manjalpur", "Navapura", "New Alkapuri",
		"New Karelibaugh", "New Sama", "New VIP Road", "Sama", "Sayajipura",
		"Soma Talav", "Vasant Vihar", "Vasna Road", "Vasna-Bhayli Road", "Waghodia Road",
	}
}

// LocationsFromSchema strips the location prefix from the schema's indicator columns.
func LocationsFromSchema(s *Schema) LocationSet {
	return LocationSet(s.Categories(FieldLocation))
}

// First returns the default location, or "" for an empty set.
func (l LocationSet) First() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

func (l LocationSet) Contains(name string) bool {
	for _, loc := range l {
		if loc == name {
			return true
		}
	}
	return false
}
