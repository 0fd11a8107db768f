package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
)

// Input is the request payload for the chat flow.
type Input struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
	// SourceIP is set by the HTTP layer, never trusted from the client.
	SourceIP string `json:"-"`
}

// Output is the response payload from the chat flow.
type Output struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

// StreamChunk carries one partial text fragment during streaming.
type StreamChunk struct {
	Text string `json:"text"`
}

// FlowName is the registered name of the chat flow.
const FlowName = "evapo/chat"

// Flow is the chat flow type, used by the api package with genkit.Handler.
type Flow = core.Flow[Input, Output, StreamChunk]

// DefineStreamingFlow panics on re-registration, so the flow is a
// package-level singleton.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the chat flow singleton, defining it on first call.
func NewFlow(g *genkit.Genkit, a *Agent) *Flow {
	flowOnce.Do(func() {
		flow = a.defineFlow(g)
	})
	return flow
}

// ResetFlowForTesting clears the flow singleton. Tests only.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

// defineFlow wraps ExecuteStream as a Genkit streaming flow, giving the
// HTTP layer typed input/output and DevUI tracing for free.
func (a *Agent) defineFlow(g *genkit.Genkit) *Flow {
	return genkit.DefineStreamingFlow(g, FlowName,
		func(ctx context.Context, input Input, streamCb func(context.Context, StreamChunk) error) (Output, error) {
			sessionID, err := uuid.Parse(input.SessionID)
			if err != nil {
				return Output{SessionID: input.SessionID}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
			}

			var callback StreamCallback
			if streamCb != nil {
				callback = func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
					if chunk == nil {
						return nil
					}
					for _, part := range chunk.Content {
						if part.Text == "" {
							continue
						}
						if err := streamCb(ctx, StreamChunk{Text: part.Text}); err != nil {
							return err
						}
					}
					return nil
				}
			}

			resp, err := a.ExecuteStream(ctx, Request{SessionID: sessionID, Input: input.Query, SourceIP: input.SourceIP}, callback)
			if err != nil {
				return Output{SessionID: input.SessionID}, err
			}
			return Output{Response: resp.FinalText, SessionID: input.SessionID}, nil
		})
}
