package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evapo/evapo/internal/log"
	"github.com/evapo/evapo/internal/product"
	"github.com/evapo/evapo/internal/retrieval"
)

type fakeSearcher struct {
	excerpts []retrieval.Excerpt
	err      error
	gotQuery string
	gotK     int
}

func (f *fakeSearcher) Retrieve(_ context.Context, query string, k int) ([]retrieval.Excerpt, error) {
	f.gotQuery, f.gotK = query, k
	return f.excerpts, f.err
}

func toolCtx() *ai.ToolContext {
	return &ai.ToolContext{Context: context.Background()}
}

func TestRetrieveDocs(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		searcher := &fakeSearcher{excerpts: []retrieval.Excerpt{
			{Source: "manual-sp500c.md", Text: "mounting", Score: 0.9},
		}}
		h := NewHandler(searcher, log.NewNop())

		res, err := h.RetrieveDocs(toolCtx(), RetrieveDocsInput{Query: "mounting"})
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, searcher.excerpts, res.Data)
		assert.Equal(t, DefaultRetrieveTopK, searcher.gotK)
	})

	t.Run("topK clamped", func(t *testing.T) {
		t.Parallel()
		searcher := &fakeSearcher{}
		h := NewHandler(searcher, log.NewNop())

		_, err := h.RetrieveDocs(toolCtx(), RetrieveDocsInput{Query: "q", TopK: 50})
		require.NoError(t, err)
		assert.Equal(t, MaxRetrieveTopK, searcher.gotK)
	})

	t.Run("empty query", func(t *testing.T) {
		t.Parallel()
		h := NewHandler(&fakeSearcher{}, log.NewNop())

		res, err := h.RetrieveDocs(nil, RetrieveDocsInput{})
		require.NoError(t, err)
		assert.Equal(t, StatusError, res.Status)
		require.NotNil(t, res.Error)
		assert.Equal(t, ErrTypeInvalidArguments, res.Error.ErrorType)
	})

	t.Run("searcher failure is a tool result, not a Go error", func(t *testing.T) {
		t.Parallel()
		h := NewHandler(&fakeSearcher{err: errors.New("index corrupt")}, log.NewNop())

		res, err := h.RetrieveDocs(toolCtx(), RetrieveDocsInput{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, ErrTypeRetrievalFailed, res.Error.ErrorType)
		assert.NotContains(t, res.Error.Message, "corrupt", "internal error text must not leak")
	})

	t.Run("nil searcher degrades to no matches", func(t *testing.T) {
		t.Parallel()
		h := NewHandler(nil, log.NewNop())

		res, err := h.RetrieveDocs(nil, RetrieveDocsInput{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, res.Status)
		assert.Empty(t, res.Data)
	})
}

func TestCalculateSizing(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, log.NewNop())

	t.Run("room with pool", func(t *testing.T) {
		t.Parallel()
		res, err := h.CalculateSizing(nil, CalculateSizingInput{
			RoomLengthM: 12, RoomWidthM: 10, RoomHeightM: 3,
			AirTempC: 25, CurrentHumidity: 80, TargetHumidity: 50,
			PoolLengthM: 8, PoolWidthM: 4, WaterTempC: 28,
		})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status)

		data, ok := res.Data.(map[string]any)
		require.True(t, ok)
		total, ok := data["totalLitersPerDay"].(float64)
		require.True(t, ok)
		assert.Positive(t, total)
	})

	t.Run("invalid arguments become a tool error", func(t *testing.T) {
		t.Parallel()
		res, err := h.CalculateSizing(nil, CalculateSizingInput{
			RoomLengthM: 12, RoomWidthM: 10, RoomHeightM: 3,
			AirTempC: 25, CurrentHumidity: 50, TargetHumidity: 80,
		})
		require.NoError(t, err)
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, ErrTypeInvalidArguments, res.Error.ErrorType)
	})
}

func TestRecommendProducts(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, log.NewNop())

	t.Run("returns catalog units", func(t *testing.T) {
		t.Parallel()
		res, err := h.RecommendProducts(nil, RecommendProductsInput{LoadLitersPerDay: 35})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status)
		units, ok := res.Data.([]product.Product)
		require.True(t, ok)
		require.NotEmpty(t, units)
	})

	t.Run("pool rated filter", func(t *testing.T) {
		t.Parallel()
		res, err := h.RecommendProducts(nil, RecommendProductsInput{LoadLitersPerDay: 35, PoolRated: true})
		require.NoError(t, err)
		units := res.Data.([]product.Product)
		for _, u := range units {
			assert.True(t, u.PoolRated)
		}
	})

	t.Run("non-positive load", func(t *testing.T) {
		t.Parallel()
		res, err := h.RecommendProducts(nil, RecommendProductsInput{LoadLitersPerDay: 0})
		require.NoError(t, err)
		assert.Equal(t, StatusError, res.Status)
	})
}

func TestToolNames(t *testing.T) {
	t.Parallel()

	names := ToolNames()
	assert.ElementsMatch(t, []string{
		RetrieveDocsName, CalculateSizingName, RecommendProductsName, LookupProductName,
	}, names)
}

func TestLookupProduct(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, log.NewNop())

	t.Run("finds model tolerant of spelling", func(t *testing.T) {
		t.Parallel()

		res, err := h.LookupProduct(nil, LookupProductInput{Model: "cdf 40"})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status)

		unit, ok := res.Data.(product.Product)
		require.True(t, ok)
		assert.Equal(t, "CDF-40", unit.Model)
	})

	t.Run("empty model is invalid arguments", func(t *testing.T) {
		t.Parallel()

		res, err := h.LookupProduct(nil, LookupProductInput{Model: "  "})
		require.NoError(t, err)
		require.Equal(t, StatusError, res.Status)
		assert.Equal(t, ErrTypeInvalidArguments, res.Error.ErrorType)
	})

	t.Run("unknown model lists the catalog", func(t *testing.T) {
		t.Parallel()

		res, err := h.LookupProduct(nil, LookupProductInput{Model: "XJ-900"})
		require.NoError(t, err)
		require.Equal(t, StatusError, res.Status)
		assert.Equal(t, ErrTypeUnknownProduct, res.Error.ErrorType)
		assert.Contains(t, res.Error.Message, "SP500C")
	})
}

func TestToolError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "InvalidArguments: bad", (&ToolError{ErrorType: "InvalidArguments", Message: "bad"}).Error())
	assert.Equal(t, "bad", (&ToolError{Message: "bad"}).Error())
	assert.Equal(t, "InvalidArguments", (&ToolError{ErrorType: "InvalidArguments"}).Error())
	var nilErr *ToolError
	assert.Equal(t, "<nil ToolError>", nilErr.Error())
}
