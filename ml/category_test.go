package ml

import "testing"

func TestCategoryMapFallbacks(t *testing.T) {
	cats := DefaultCategoryMap()
	if got := cats.HouseType(5); got != "villa" {
		t.Fatalf("expected villa, got %s", got)
	}
	if got := cats.HouseType(42); got != DefaultHouseType {
		t.Fatalf("expected fallback house type, got %s", got)
	}
	if got := cats.Size(-1); got != DefaultSize {
		t.Fatalf("expected fallback size, got %s", got)
	}
}

func TestDeriveCategoryMapKeepsIndices(t *testing.T) {
	cats := DeriveCategoryMap(
		[]string{"villa", "row house", "apartment", "bungalow"},
		[]string{"6 BHK", "2 BHK", ""},
	)
	if cats.HouseType(0) != "apartment" || cats.HouseType(5) != "villa" {
		t.Fatalf("fallback indices moved: %v", cats.HouseTypes)
	}
	if cats.HouseType(6) != "bungalow" || cats.HouseType(7) != "row house" {
		t.Fatalf("expected new labels appended in sorted order: %v", cats.HouseTypes)
	}
	if cats.Size(6) != "6 BHK" || len(cats.Sizes) != 6 {
		t.Fatalf("unexpected sizes: %v", cats.Sizes)
	}
	opts := cats.HouseTypeOptions()
	for i := 1; i < len(opts); i++ {
		if opts[i-1].Index >= opts[i].Index {
			t.Fatalf("options not ordered: %v", opts)
		}
	}
}

func TestLocationsFromSchema(t *testing.T) {
	locs := LocationsFromSchema(testSchema(t))
	if locs.First() != "Akota" || len(locs) != 3 {
		t.Fatalf("unexpected locations: %v", locs)
	}
	if !locs.Contains("Gotri") || locs.Contains("Ajwa Road") {
		t.Fatalf("unexpected membership for %v", locs)
	}
	if LocationSet(nil).First() != "" {
		t.Fatalf("expected empty first location")
	}
	if len(DefaultLocations()) != 29 {
		t.Fatalf("expected 29 fallback locations")
	}
}
