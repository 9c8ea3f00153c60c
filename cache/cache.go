package cache

import (
	"context"
	"strconv"
	"strings"

	"houseprice/ml"
)

// PriceCache memoizes predictions. Keys embed the bundle version, so entries
// from an older model are never served after a swap.
type PriceCache interface {
	Get(ctx context.Context, key string) (float64, bool, error)
	Set(ctx context.Context, key string, price float64) error
	Purge(ctx context.Context) error
}

// Key builds the cache key for a fully defaulted input.
func Key(version string, in ml.Input) string {
	var b strings.Builder
	b.WriteString(version)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(in.HouseType))
	b.WriteByte('|')
	b.WriteString(in.Location)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(in.Size))
	for _, v := range []float64{in.Bath, in.Balcony, in.TotalSqft} {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// Nop disables caching.
type Nop struct{}

func (Nop) Get(context.Context, string) (float64, bool, error) { return 0, false, nil }
func (Nop) Set(context.Context, string, float64) error { return nil }
func (Nop) Purge(context.Context) error { return nil }
