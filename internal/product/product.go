// Package product holds the dehumidifier catalog and recommends units for
// a computed load.
package product

import (
	"regexp"
	"sort"
	"strings"
)

// Product is one catalog entry. Capacity is rated liters per day at 30°C
// and 80% relative humidity.
type Product struct {
	Model     string  `json:"model"`
	Name      string  `json:"name"`
	Capacity  float64 `json:"capacity_liters_per_day"`
	PoolRated bool    `json:"pool_rated"`
	Notes     string  `json:"notes,omitempty"`
}

// catalog is grouped by product family.
var catalog = []Product{
	{Model: "CDF-10", Name: "Compact Cellar 10", Capacity: 10, Notes: "wine cellars and small storage rooms"},
	{Model: "CDF-40", Name: "Cellar 40", Capacity: 38, Notes: "cellars and archives up to 40 m2"},
	{Model: "CDT-30", Name: "Portable 30", Capacity: 30, Notes: "mobile unit for drying and water damage"},
	{Model: "CDT-60", Name: "Portable 60", Capacity: 60, Notes: "mobile unit for construction drying"},
	{Model: "CDP-50", Name: "Pool 50", Capacity: 49, PoolRated: true, Notes: "small private pool rooms, wall or duct mount"},
	{Model: "CDP-70", Name: "Pool 70", Capacity: 69, PoolRated: true, Notes: "private pool rooms, through-wall mount"},
	{Model: "CDP-125", Name: "Pool 125", Capacity: 122, PoolRated: true, Notes: "large private and small public pools"},
	{Model: "SP500C", Name: "Swimming Pool 500 Ducted", Capacity: 480, PoolRated: true, Notes: "commercial pool halls, ducted installation"},
}

var modelNormRe = regexp.MustCompile(`[^A-Z0-9]`)

// All returns the catalog, capacity ascending.
func All() []Product {
	out := make([]Product, len(catalog))
	copy(out, catalog)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Capacity < out[j].Capacity
	})
	return out
}

// Recommend returns the units adequate for the given load in liters per
// day, smallest first. Loads beyond the largest unit still return that
// unit, with a note that multiple units are required.
func Recommend(loadLitersPerDay float64) []Product {
	if loadLitersPerDay <= 0 {
		return nil
	}

	var adequate []Product
	for _, p := range catalog {
		if p.Capacity >= loadLitersPerDay {
			adequate = append(adequate, p)
		}
	}
	sort.SliceStable(adequate, func(i, j int) bool {
		return adequate[i].Capacity < adequate[j].Capacity
	})
	if len(adequate) > 0 {
		return adequate
	}

	largest := catalog[0]
	for _, p := range catalog {
		if p.Capacity > largest.Capacity {
			largest = p
		}
	}
	largest.Notes = "load exceeds a single unit, install multiple units in parallel"
	return []Product{largest}
}

// RecommendPoolRated is Recommend restricted to pool-rated units.
func RecommendPoolRated(loadLitersPerDay float64) []Product {
	var out []Product
	for _, p := range Recommend(loadLitersPerDay) {
		if p.PoolRated {
			out = append(out, p)
		}
	}
	if len(out) == 0 && loadLitersPerDay > 0 {
		largest := catalog[len(catalog)-1]
		largest.Notes = "load exceeds a single unit, install multiple units in parallel"
		out = []Product{largest}
	}
	return out
}

// Lookup finds a product by model designation, tolerant of case, spacing
// and dashes ("cdf 40" matches CDF-40).
func Lookup(model string) (Product, bool) {
	norm := modelNormRe.ReplaceAllString(strings.ToUpper(model), "")
	if norm == "" {
		return Product{}, false
	}
	for _, p := range catalog {
		if modelNormRe.ReplaceAllString(strings.ToUpper(p.Model), "") == norm {
			return p, true
		}
	}
	return Product{}, false
}
