package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/genkit"
)

// NewGenkit initializes a plugin-free Genkit instance for tests. Mocks are
// registered on it with ScriptedModel.Register and FixedEmbedder.Register.
func NewGenkit(tb testing.TB) *genkit.Genkit {
	tb.Helper()

	g := genkit.Init(context.Background())
	if g == nil {
		tb.Fatal("genkit.Init returned nil")
	}
	return g
}
