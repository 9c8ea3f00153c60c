package ml

import "strconv"

const (
	lakh  = 1e5
	crore = 1e7
)

// FormatPrice renders a rupee amount in crores from 1 crore upwards and in lakhs
// below that.
func FormatPrice(price float64) string {
	if price >= crore {
		return "₹" + strconv.FormatFloat(price/crore, 'f', 1, 64) + " cr"
	}
	return "₹" + strconv.FormatFloat(price/lakh, 'f', 0, 64) + ".0 lakhs"
}
