// Package testutil provides deterministic model and embedder doubles for
// tests that exercise the generation and retrieval paths without network
// access.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ScriptedModel returns canned responses matched by substring against the
// last user message. First registered match wins; unmatched messages get
// the fallback text.
//
// Scripts registered with ScriptToolCall play a two-step exchange: the
// first generation for a matching message emits the scripted tool
// requests, and once the executed tool responses come back the model
// answers with the final reply. ScriptToolLoop keeps requesting its tools
// on every round for as long as the request offers any.
//
// Safe for concurrent use.
type ScriptedModel struct {
	mu       sync.Mutex
	scripts  []script
	fallback string
	calls    []RecordedCall
	failWith error
}

type script struct {
	needle   string
	text     string
	toolReqs []*ai.ToolRequest
	loop     bool
}

// RecordedCall captures one generation request handled by the model.
type RecordedCall struct {
	UserText string
	Reply    string

	// RequestedTools lists the tool names this call asked to execute.
	RequestedTools []string

	// ToolResponses carries the executed tool results the request fed
	// back to the model, if any.
	ToolResponses []*ai.ToolResponse
}

// NewScriptedModel creates a scripted model with the given fallback reply.
func NewScriptedModel(fallback string) *ScriptedModel {
	return &ScriptedModel{fallback: fallback}
}

// Script registers a reply for user messages containing needle
// (case-insensitive).
func (m *ScriptedModel) Script(needle, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, script{needle: strings.ToLower(needle), text: reply})
}

// ScriptToolCall registers a two-step exchange for user messages
// containing needle: request the given tool calls first, then answer with
// finalReply once their responses arrive.
func (m *ScriptedModel) ScriptToolCall(needle, finalReply string, reqs ...*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, script{needle: strings.ToLower(needle), text: finalReply, toolReqs: reqs})
}

// ScriptToolLoop registers a script that requests its tool calls on every
// round while the request offers tools, and answers with finalReply only
// when it offers none.
func (m *ScriptedModel) ScriptToolLoop(needle, finalReply string, reqs ...*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, script{needle: strings.ToLower(needle), text: finalReply, toolReqs: reqs, loop: true})
}

// FailWith makes every subsequent generation return err.
func (m *ScriptedModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Calls returns a copy of every recorded generation.
func (m *ScriptedModel) Calls() []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Register defines the scripted model on g under "mock/assistant".
func (m *ScriptedModel) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/assistant", &ai.ModelOptions{
		Label: "Scripted Assistant",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *ScriptedModel) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}
	toolResponses := lastToolResponses(req.Messages)

	m.mu.Lock()
	if err := m.failWith; err != nil {
		m.mu.Unlock()
		return nil, err
	}
	var hit *script
	lower := strings.ToLower(userText)
	for i := range m.scripts {
		if strings.Contains(lower, m.scripts[i].needle) {
			hit = &m.scripts[i]
			break
		}
	}

	// A tool-calling script emits its requests only while the request
	// offers tools, the way a real model only calls declared tools.
	requesting := hit != nil && len(hit.toolReqs) > 0 && len(req.Tools) > 0 &&
		(hit.loop || len(toolResponses) == 0)

	reply := m.fallback
	if hit != nil {
		reply = hit.text
	}
	if requesting {
		reply = ""
	}

	call := RecordedCall{UserText: userText, Reply: reply, ToolResponses: toolResponses}
	if requesting {
		for _, tr := range hit.toolReqs {
			call.RequestedTools = append(call.RequestedTools, tr.Name)
		}
	}
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if requesting {
		parts := make([]*ai.Part, 0, len(hit.toolReqs))
		for _, tr := range hit.toolReqs {
			parts = append(parts, &ai.Part{Kind: ai.PartToolRequest, ToolRequest: tr})
		}
		return &ai.ModelResponse{
			Request: req,
			Message: &ai.Message{Role: ai.RoleModel, Content: parts},
		}, nil
	}

	if cb != nil {
		_ = cb(ctx, &ai.ModelResponseChunk{Content: []*ai.Part{ai.NewTextPart(reply)}})
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{Role: ai.RoleModel, Content: []*ai.Part{ai.NewTextPart(reply)}},
	}, nil
}

// lastToolResponses returns the tool responses trailing the last user
// message, the shape the generation loop feeds executed tools back in.
func lastToolResponses(msgs []*ai.Message) []*ai.ToolResponse {
	var out []*ai.ToolResponse
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == ai.RoleUser {
			break
		}
		if msgs[i].Role != ai.RoleTool {
			continue
		}
		for _, p := range msgs[i].Content {
			if p.ToolResponse != nil {
				out = append(out, p.ToolResponse)
			}
		}
	}
	return out
}
