package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/evapo/evapo/internal/log"
	"github.com/evapo/evapo/internal/product"
	"github.com/evapo/evapo/internal/retrieval"
	"github.com/evapo/evapo/internal/sizing"
)

// TopK bounds for retrieve_docs.
const (
	DefaultRetrieveTopK = 3
	MaxRetrieveTopK     = 10
)

// MaxQueryLength bounds the retrieve_docs query.
const MaxQueryLength = 1000

// DocSearcher is the retrieval dependency of the retrieve_docs tool.
type DocSearcher interface {
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.Excerpt, error)
}

// RetrieveDocsInput defines input for the retrieve_docs tool.
type RetrieveDocsInput struct {
	Query string `json:"query" jsonschema_description:"The search query string"`
	TopK  int    `json:"topK,omitempty" jsonschema_description:"Maximum excerpts to return (1-10)"`
}

// CalculateSizingInput defines input for the calculate_sizing tool.
// Dimensions in metres, temperatures in °C, humidity in percent.
type CalculateSizingInput struct {
	RoomLengthM     float64 `json:"roomLengthM" jsonschema_description:"Room length in metres"`
	RoomWidthM      float64 `json:"roomWidthM" jsonschema_description:"Room width in metres"`
	RoomHeightM     float64 `json:"roomHeightM" jsonschema_description:"Room height in metres"`
	AirTempC        float64 `json:"airTempC" jsonschema_description:"Room air temperature in degrees Celsius"`
	CurrentHumidity float64 `json:"currentHumidityPct" jsonschema_description:"Current relative humidity in percent"`
	TargetHumidity  float64 `json:"targetHumidityPct" jsonschema_description:"Desired relative humidity in percent"`
	PoolLengthM     float64 `json:"poolLengthM,omitempty" jsonschema_description:"Pool length in metres, omit when there is no pool"`
	PoolWidthM      float64 `json:"poolWidthM,omitempty" jsonschema_description:"Pool width in metres, omit when there is no pool"`
	WaterTempC      float64 `json:"waterTempC,omitempty" jsonschema_description:"Pool water temperature in degrees Celsius"`
}

// LookupProductInput defines input for the lookup_product tool.
type LookupProductInput struct {
	Model string `json:"model" jsonschema_description:"Product model designation, e.g. CDF-40 or SP500C"`
}

// RecommendProductsInput defines input for the recommend_products tool.
type RecommendProductsInput struct {
	LoadLitersPerDay float64 `json:"loadLitersPerDay" jsonschema_description:"Required dehumidification capacity in liters per day"`
	PoolRated        bool    `json:"poolRated,omitempty" jsonschema_description:"Restrict to pool-rated units"`
}

// Handler holds the tool dependencies.
type Handler struct {
	searcher DocSearcher // nil disables retrieve_docs results
	logger   log.Logger
}

// NewHandler creates a Handler. searcher may be nil when retrieval is
// disabled; retrieve_docs then reports no matches.
func NewHandler(searcher DocSearcher, logger log.Logger) *Handler {
	return &Handler{searcher: searcher, logger: logger}
}

// RetrieveDocs searches the document index.
func (h *Handler) RetrieveDocs(ctx *ai.ToolContext, in RetrieveDocsInput) (Result, error) {
	if in.Query == "" {
		return errResult(ErrTypeInvalidArguments, "query is required"), nil
	}
	if len(in.Query) > MaxQueryLength {
		return errResult(ErrTypeInvalidArguments,
			fmt.Sprintf("query exceeds %d characters", MaxQueryLength)), nil
	}
	k := in.TopK
	switch {
	case k <= 0:
		k = DefaultRetrieveTopK
	case k > MaxRetrieveTopK:
		k = MaxRetrieveTopK
	}

	if h.searcher == nil {
		return Result{Status: StatusSuccess, Data: []retrieval.Excerpt{}}, nil
	}
	excerpts, err := h.searcher.Retrieve(ctx.Context, in.Query, k)
	if err != nil {
		h.logger.Warn("retrieve_docs failed", "error", err)
		return errResult(ErrTypeRetrievalFailed, "document search is temporarily unavailable"), nil
	}
	return Result{Status: StatusSuccess, Data: excerpts}, nil
}

// CalculateSizing computes the dehumidification load.
func (h *Handler) CalculateSizing(_ *ai.ToolContext, in CalculateSizingInput) (Result, error) {
	res, err := sizing.Calculate(sizing.Input{
		RoomLength: in.RoomLengthM,
		RoomWidth:  in.RoomWidthM,
		RoomHeight: in.RoomHeightM,
		AirTemp:    in.AirTempC,
		CurrentRH:  in.CurrentHumidity,
		TargetRH:   in.TargetHumidity,
		PoolLength: in.PoolLengthM,
		PoolWidth:  in.PoolWidthM,
		WaterTemp:  in.WaterTempC,
	})
	if err != nil {
		return errResult(ErrTypeInvalidArguments, err.Error()), nil
	}
	return Result{
		Status: StatusSuccess,
		Data: map[string]any{
			"roomLitersPerDay":  round1(res.RoomLitersPerDay),
			"poolLitersPerDay":  round1(res.PoolLitersPerDay),
			"totalLitersPerDay": round1(res.TotalLitersPerDay),
		},
	}, nil
}

// RecommendProducts maps a load to catalog units.
func (h *Handler) RecommendProducts(_ *ai.ToolContext, in RecommendProductsInput) (Result, error) {
	if in.LoadLitersPerDay <= 0 {
		return errResult(ErrTypeInvalidArguments, "loadLitersPerDay must be positive"), nil
	}
	var units []product.Product
	if in.PoolRated {
		units = product.RecommendPoolRated(in.LoadLitersPerDay)
	} else {
		units = product.Recommend(in.LoadLitersPerDay)
	}
	return Result{Status: StatusSuccess, Data: units}, nil
}

// LookupProduct resolves a model designation to its catalog entry. The
// match tolerates case, spacing and dashes.
func (h *Handler) LookupProduct(_ *ai.ToolContext, in LookupProductInput) (Result, error) {
	if strings.TrimSpace(in.Model) == "" {
		return errResult(ErrTypeInvalidArguments, "model is required"), nil
	}
	unit, ok := product.Lookup(in.Model)
	if !ok {
		all := product.All()
		models := make([]string, 0, len(all))
		for _, p := range all {
			models = append(models, p.Model)
		}
		return errResult(ErrTypeUnknownProduct, fmt.Sprintf(
			"no product matches %q, available models: %s",
			in.Model, strings.Join(models, ", "))), nil
	}
	return Result{Status: StatusSuccess, Data: unit}, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
