package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommend_SmallestAdequateFirst(t *testing.T) {
	t.Parallel()

	got := Recommend(35)
	require.NotEmpty(t, got)
	assert.Equal(t, "CDF-40", got[0].Model)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Capacity, got[i-1].Capacity)
	}
	for _, p := range got {
		assert.GreaterOrEqual(t, p.Capacity, 35.0)
	}
}

func TestRecommend_LoadBeyondRange(t *testing.T) {
	t.Parallel()

	got := Recommend(1000)
	require.Len(t, got, 1)
	assert.Equal(t, "SP500C", got[0].Model)
	assert.Contains(t, got[0].Notes, "multiple units")
}

func TestRecommend_NonPositiveLoad(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Recommend(0))
	assert.Empty(t, Recommend(-3))
}

func TestRecommendPoolRated(t *testing.T) {
	t.Parallel()

	got := RecommendPoolRated(35)
	require.NotEmpty(t, got)
	assert.Equal(t, "CDP-50", got[0].Model)
	for _, p := range got {
		assert.True(t, p.PoolRated)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		model string
		found bool
	}{
		{"SP500C", "SP500C", true},
		{"sp500c", "SP500C", true},
		{"CDF-40", "CDF-40", true},
		{"cdf 40", "CDF-40", true},
		{"cdf40", "CDF-40", true},
		{"XYZ-99", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			p, ok := Lookup(tt.query)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.model, p.Model)
			}
		})
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	t.Parallel()

	a := All()
	a[0].Model = "mutated"
	b := All()
	assert.NotEqual(t, "mutated", b[0].Model)
}
