// Package tools registers the assistant's callable capabilities with
// Genkit: document retrieval, dehumidifier sizing, product
// recommendation and catalog lookup. Handlers validate arguments before
// dispatching and return business failures as structured results the
// model can react to.
package tools

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Tool names registered with Genkit.
const (
	RetrieveDocsName      = "retrieve_docs"
	CalculateSizingName   = "calculate_sizing"
	RecommendProductsName = "recommend_products"
	LookupProductName     = "lookup_product"
)

// toolNames is the single source of truth for the registered tool set.
var toolNames = []string{
	RetrieveDocsName,
	CalculateSizingName,
	RecommendProductsName,
	LookupProductName,
}

// ToolNames returns all registered tool names.
func ToolNames() []string {
	return toolNames
}

// Register defines every tool on g and returns the references for
// generation calls.
func Register(g *genkit.Genkit, h *Handler) ([]ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handler is required")
	}

	return []ai.Tool{
		genkit.DefineTool(g, RetrieveDocsName,
			"Search the product documentation (manuals, datasheets, brochures) "+
				"using semantic similarity. Returns excerpts with their source "+
				"document and a relevance score. Use this for questions about "+
				"installation, maintenance, troubleshooting, warranty or "+
				"technical specifications. Default topK: 3. Maximum topK: 10.",
			h.RetrieveDocs),
		genkit.DefineTool(g, CalculateSizingName,
			"Calculate the dehumidification load in liters per day for a room, "+
				"optionally with an indoor pool. Requires room dimensions in "+
				"metres, air temperature, current and target relative humidity. "+
				"Ask the user for missing values instead of guessing them.",
			h.CalculateSizing),
		genkit.DefineTool(g, RecommendProductsName,
			"Recommend dehumidifier units for a computed load in liters per "+
				"day, smallest adequate unit first. Set poolRated when the room "+
				"contains a pool.",
			h.RecommendProducts),
		genkit.DefineTool(g, LookupProductName,
			"Look up one dehumidifier unit by its model designation (for "+
				"example CDF-40 or SP500C) and return its name, rated capacity "+
				"in liters per day and pool suitability. Use this when the user "+
				"asks about a specific unit.",
			h.LookupProduct),
	}, nil
}
