package promotion

import (
	"fmt"
	"sort"

	"ms-promotion/internal/models"
)

// PricingTable maps a promotion duration in days to its price in minor currency units.
// It is immutable once built.
type PricingTable struct {
	prices map[int]int64
	days   []int
}

// NewPricingTable copies prices into a new table. Every duration and price must be positive.
func NewPricingTable(prices map[int]int64) (PricingTable, error) {
	if len(prices) == 0 {
		return PricingTable{}, fmt.Errorf("%w: pricing table is empty", ErrInvalidArgument)
	}

	copied := make(map[int]int64, len(prices))
	days := make([]int, 0, len(prices))
	for d, amount := range prices {
		if d <= 0 || amount <= 0 {
			return PricingTable{}, fmt.Errorf("%w: tier %d days -> %d is not positive", ErrInvalidArgument, d, amount)
		}
		copied[d] = amount
		days = append(days, d)
	}
	sort.Ints(days)

	return PricingTable{prices: copied, days: days}, nil
}

// DefaultPricingTable is the production tier list: 3, 7, 14 and 30 days.
func DefaultPricingTable() PricingTable {
	table, err := NewPricingTable(map[int]int64{
		3:  1000,
		7:  2000,
		14: 3000,
		30: 5000,
	})
	if err != nil {
		panic(err)
	}
	return table
}

func (p PricingTable) Price(days int) (int64, bool) {
	amount, ok := p.prices[days]
	return amount, ok
}

// Tiers lists the table ordered by duration.
func (p PricingTable) Tiers(currency string) []models.PriceTier {
	tiers := make([]models.PriceTier, 0, len(p.days))
	for _, d := range p.days {
		tiers = append(tiers, models.PriceTier{Days: d, Amount: p.prices[d], Currency: currency})
	}
	return tiers
}
