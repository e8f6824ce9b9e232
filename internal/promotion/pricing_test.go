package promotion_test

import (
	"testing"

	"ms-promotion/internal/promotion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPricingTable(t *testing.T) {
	table := promotion.DefaultPricingTable()

	cases := map[int]int64{3: 1000, 7: 2000, 14: 3000, 30: 5000}
	for days, want := range cases {
		got, ok := table.Price(days)
		assert.True(t, ok, "tier %d", days)
		assert.Equal(t, want, got, "tier %d", days)
	}

	_, ok := table.Price(5)
	assert.False(t, ok)
	_, ok = table.Price(0)
	assert.False(t, ok)
}

func TestPricingTableTiersAreSorted(t *testing.T) {
	tiers := promotion.DefaultPricingTable().Tiers("eur")

	require.Len(t, tiers, 4)
	assert.Equal(t, 3, tiers[0].Days)
	assert.Equal(t, 30, tiers[3].Days)
	assert.Equal(t, "eur", tiers[2].Currency)
}

func TestNewPricingTableIsImmutable(t *testing.T) {
	source := map[int]int64{7: 2000}
	table, err := promotion.NewPricingTable(source)
	require.NoError(t, err)

	source[7] = 1
	source[1] = 1

	price, _ := table.Price(7)
	assert.Equal(t, int64(2000), price)
	_, ok := table.Price(1)
	assert.False(t, ok)
}

func TestNewPricingTableRejectsInvalidTiers(t *testing.T) {
	_, err := promotion.NewPricingTable(nil)
	assert.ErrorIs(t, err, promotion.ErrInvalidArgument)

	_, err = promotion.NewPricingTable(map[int]int64{7: 0})
	assert.ErrorIs(t, err, promotion.ErrInvalidArgument)

	_, err = promotion.NewPricingTable(map[int]int64{-1: 100})
	assert.ErrorIs(t, err, promotion.ErrInvalidArgument)
}
