// Package agent runs the conversational control loop: gate, retrieve,
// compose, call the model with tools, stream the answer and persist the
// completed turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/evapo/evapo/internal/compose"
	"github.com/evapo/evapo/internal/convlog"
	"github.com/evapo/evapo/internal/log"
	"github.com/evapo/evapo/internal/retrieval"
	"github.com/evapo/evapo/internal/session"
)

const (
	// systemPrompt sets the assistant persona for every turn.
	systemPrompt = "You are a product assistant for a dehumidifier manufacturer. " +
		"You answer sizing and technical questions about dehumidifiers for rooms, " +
		"cellars and indoor pools.\n\n" +
		"Rules:\n" +
		"- Use the calculate_sizing tool for any capacity question. Ask the user " +
		"for missing parameters (room dimensions, pool size, current and target " +
		"humidity, temperatures) instead of guessing.\n" +
		"- Use the recommend_products tool to suggest units for a computed load.\n" +
		"- Use the lookup_product tool when the user asks about a specific " +
		"model designation.\n" +
		"- Use the retrieve_docs tool for installation, maintenance, " +
		"troubleshooting, warranty and specification questions.\n" +
		"- Base technical claims on retrieved documentation and mention the " +
		"source document. Never invent specifications.\n" +
		"- Answer in the user's language, briefly and concretely."

	// fallbackMessage is returned when the model produces no usable output.
	fallbackMessage = "I'm sorry, I couldn't produce an answer to that. Could you rephrase your question?"

	// defaultModelTimeout bounds one model call when config gives none.
	defaultModelTimeout = 60 * time.Second
)

// Sentinel errors surfaced to the transport layer.
var (
	// ErrInvalidSession indicates the session does not exist.
	ErrInvalidSession = errors.New("invalid session")

	// ErrModelCall indicates the model call failed or timed out. The turn
	// is aborted and session history is left untouched.
	ErrModelCall = errors.New("model call failed")
)

// StreamCallback receives each partial response chunk as it is generated.
// Returning an error aborts the stream.
type StreamCallback func(ctx context.Context, chunk *ai.ModelResponseChunk) error

// Searcher is the retrieval dependency, satisfied by retrieval.Retriever.
type Searcher interface {
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.Excerpt, error)
}

// Request is one user turn.
type Request struct {
	SessionID uuid.UUID
	Input     string
	SourceIP  string
}

// Response is the completed result of one turn.
type Response struct {
	FinalText    string
	ToolRequests []*ai.ToolRequest
}

// Config carries the agent's dependencies and tuning.
type Config struct {
	Genkit   *genkit.Genkit
	Sessions *session.Store
	Gate     *retrieval.Gate
	Searcher Searcher      // nil disables retrieval augmentation
	ConvLog  *convlog.Sink // nil disables conversation logging
	Tools    []ai.Tool
	Logger   log.Logger

	ModelName     string
	MaxToolRounds int
	ModelTimeout  time.Duration
	TopK          int
	TokenBudget   int
	RateLimiter   *rate.Limiter // nil = default limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Gate == nil {
		return errors.New("retrieval gate is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Tools) == 0 {
		return errors.New("at least one tool is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Agent orchestrates conversation turns. All configuration is captured
// immutably at construction, so one Agent serves concurrent sessions.
type Agent struct {
	g        *genkit.Genkit
	sessions *session.Store
	gate     *retrieval.Gate
	searcher Searcher
	convLog  *convlog.Sink
	logger   log.Logger

	modelName     string
	maxToolRounds int
	modelTimeout  time.Duration
	topK          int
	tokenBudget   int
	limiter       *rate.Limiter

	toolRefs  []ai.ToolRef
	toolNames string
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxToolRounds := cfg.MaxToolRounds
	if maxToolRounds <= 0 {
		maxToolRounds = 4
	}
	modelTimeout := cfg.ModelTimeout
	if modelTimeout <= 0 {
		modelTimeout = defaultModelTimeout
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	names := make([]string, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
		names[i] = t.Name()
	}

	a := &Agent{
		g:             cfg.Genkit,
		sessions:      cfg.Sessions,
		gate:          cfg.Gate,
		searcher:      cfg.Searcher,
		convLog:       cfg.ConvLog,
		logger:        cfg.Logger,
		modelName:     cfg.ModelName,
		maxToolRounds: maxToolRounds,
		modelTimeout:  modelTimeout,
		topK:          topK,
		tokenBudget:   cfg.TokenBudget,
		limiter:       limiter,
		toolRefs:      toolRefs,
		toolNames:     strings.Join(names, ", "),
	}

	a.logger.Info("agent initialized",
		"model", a.modelName,
		"tools", a.toolNames,
		"max_tool_rounds", a.maxToolRounds)
	return a, nil
}

// Execute runs one turn without streaming.
func (a *Agent) Execute(ctx context.Context, req Request) (*Response, error) {
	return a.ExecuteStream(ctx, req, nil)
}

// ExecuteStream runs one turn. Turns within a session are serialized; the
// completed user and assistant turns are appended to the session only after
// generation finishes, so an aborted or failed turn leaves no trace.
func (a *Agent) ExecuteStream(ctx context.Context, req Request, callback StreamCallback) (*Response, error) {
	release, err := a.sessions.Acquire(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, req.SessionID)
	}
	defer release()

	turns, err := a.sessions.History(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, req.SessionID)
	}
	history := historyMessages(turns)

	excerpts := a.maybeRetrieve(ctx, req.Input)
	msgs := compose.Assemble(history, excerpts, req.Input, compose.Options{
		TokenBudget: a.tokenBudget,
	})

	resp, err := a.generate(ctx, msgs, callback, true)
	if err != nil {
		if !toolBudgetExhausted(err) {
			return nil, fmt.Errorf("%w: %v", ErrModelCall, err)
		}
		// The round budget stops runaway tool loops, but the user is still
		// owed an answer from whatever the rounds produced. One more call
		// without tools cannot loop.
		a.logger.Warn("tool round budget exhausted, forcing final answer",
			"session_id", req.SessionID, "max_tool_rounds", a.maxToolRounds)
		resp, err = a.generate(ctx, msgs, callback, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelCall, err)
		}
	}

	finalText := resp.Text()
	toolRequests := resp.ToolRequests()
	if strings.TrimSpace(finalText) == "" && len(toolRequests) == 0 {
		a.logger.Warn("model returned empty response", "session_id", req.SessionID)
		finalText = fallbackMessage
	}

	a.persistTurn(ctx, req, finalText, toolRequests)

	return &Response{FinalText: finalText, ToolRequests: toolRequests}, nil
}

// maybeRetrieve consults the gate and runs the search. Failures degrade to
// no excerpts, never an aborted turn.
func (a *Agent) maybeRetrieve(ctx context.Context, input string) []retrieval.Excerpt {
	if a.searcher == nil || !a.gate.ShouldRetrieve(input) {
		return nil
	}
	excerpts, err := a.searcher.Retrieve(ctx, input, a.topK)
	if err != nil {
		a.logger.Warn("retrieval degraded to no context", "error", err)
		return nil
	}
	a.logger.Debug("retrieved context", "excerpts", len(excerpts))
	return excerpts
}

// toolBudgetExhausted reports whether err is the generation loop hitting
// its tool-call round limit. Genkit exposes no sentinel for this, so the
// message text is matched.
func toolBudgetExhausted(err error) bool {
	return err != nil && strings.Contains(err.Error(), "exceeded maximum tool call iterations")
}

// generate calls the model under the configured timeout. withTools enables
// the tool-calling loop, bounded by the round budget.
func (a *Agent) generate(ctx context.Context, msgs []*ai.Message, callback StreamCallback, withTools bool) (*ai.ModelResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, a.modelTimeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(a.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithMessages(msgs...),
	}
	if withTools {
		opts = append(opts,
			ai.WithTools(a.toolRefs...),
			ai.WithMaxTurns(a.maxToolRounds),
		)
	}
	if callback != nil {
		opts = append(opts, ai.WithStreaming(ai.ModelStreamCallback(callback)))
	}

	return genkit.Generate(genCtx, a.g, opts...)
}

// persistTurn appends the completed turn to the session and records it to
// the conversation log. Both are best-effort at this point; generation has
// already succeeded.
func (a *Agent) persistTurn(ctx context.Context, req Request, finalText string, toolRequests []*ai.ToolRequest) {
	newTurns := make([]session.Turn, 0, len(toolRequests)+2)
	newTurns = append(newTurns, session.Turn{Role: session.RoleUser, Content: req.Input})
	for _, tr := range toolRequests {
		newTurns = append(newTurns, session.Turn{
			Role:     session.RoleTool,
			Content:  tr.Name,
			ToolCall: &session.ToolCall{Name: tr.Name, Input: tr.Input},
		})
	}
	newTurns = append(newTurns, session.Turn{Role: session.RoleAssistant, Content: finalText})

	if err := a.sessions.Append(req.SessionID, newTurns...); err != nil {
		a.logger.Warn("appending turns to session", "error", err)
	}

	if a.convLog != nil {
		// The log write outlives a caller that disconnects right after the
		// final chunk.
		err := a.convLog.Record(context.WithoutCancel(ctx), convlog.Entry{
			SessionID:     req.SessionID,
			UserText:      req.Input,
			AssistantText: finalText,
			SourceIP:      req.SourceIP,
		})
		if err != nil {
			a.logger.Warn("recording conversation log entry", "error", err)
		}
	}
}

// historyMessages converts session turns to model messages. Tool turns are
// bookkeeping and do not re-enter the prompt.
func historyMessages(turns []session.Turn) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case session.RoleUser:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(t.Content)))
		case session.RoleAssistant:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(t.Content)))
		}
	}
	return msgs
}
