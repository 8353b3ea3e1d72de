// Package session orchestrates one chat turn: it runs the reasoning agent,
// derives source citations, persists the exchange, and guarantees that no
// failure escapes to the transport layer as anything but a formatted string.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mskwm/briefd/internal/agent"
	"github.com/mskwm/briefd/internal/citation"
	"github.com/mskwm/briefd/internal/llm"
	"github.com/mskwm/briefd/internal/pipeline"
	"github.com/mskwm/briefd/internal/storage"
)

const (
	workingMessage      = "Searching knowledge base..."
	emptyMessagePrompt  = "Please enter a question about a client, policy, or document."
	loopExceededMessage = "I could not complete the analysis within the allowed number of reasoning steps. Try narrowing the question."
	maxTitleLength      = 80
)

// Runner is the reasoning loop the manager drives for each turn. search is
// the querier the loop resolves tool calls against; the manager hands it a
// turn-scoped one.
type Runner interface {
	Run(ctx context.Context, search pipeline.Querier, userMessage string, history []agent.Turn) (string, error)
}

// Store persists sessions and turns. *storage.Store satisfies it.
type Store interface {
	CreateSession(storage.Session) error
	GetSession(id string) (storage.Session, error)
	ListTurns(sessionID string) ([]storage.Turn, error)
	AppendTurn(storage.Turn) (storage.Turn, error)
}

// Manager answers chat turns. The caller must serialize turns within one
// session; distinct sessions may run concurrently. Stateless apart from the
// store, so a single Manager is shared across all sessions.
type Manager struct {
	runner Runner
	// search is the un-cached retrieval pipeline. Each turn wraps it in a
	// fresh pipeline.Cached shared by the agent's tool calls and the
	// citation lookup, so identical queries within the turn reuse one
	// retrieval while later turns always see current index contents.
	search pipeline.Querier
	store  Store
	logger *slog.Logger
}

// NewManager creates a Manager. store may be nil, which disables persistence
// (turns are answered but not recorded).
func NewManager(runner Runner, search pipeline.Querier, store Store) *Manager {
	return &Manager{
		runner: runner,
		search: search,
		store:  store,
		logger: slog.Default(),
	}
}

// Respond answers one turn. history must not contain the in-flight message.
// The returned string is always user-facing: backend failures become an
// apology embedding the error detail, never a panic or an error value; this
// path must not crash the caller's turn loop.
func (m *Manager) Respond(ctx context.Context, userMessage string, history []agent.Turn) string {
	if strings.TrimSpace(userMessage) == "" {
		return emptyMessagePrompt
	}

	var (
		answer   string
		passages pipeline.Result
	)

	// Turn-scoped cache: the agent's tool calls and the citation lookup
	// share one retrieval when their query text matches, and nothing
	// survives past this turn to go stale after an ingestion sync.
	search := pipeline.NewCached(m.search)

	// The agent's answer and the citation retrieval are independent until
	// the final concatenation, so they run concurrently. Citations are
	// appended strictly after the answer regardless of which finishes first.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		answer, err = m.runner.Run(gctx, search, userMessage, history)
		return err
	})
	g.Go(func() error {
		res, err := search.Query(gctx, userMessage)
		if err != nil {
			// A missing citation block is a degraded answer, not a failed
			// turn.
			m.logger.Warn("citation retrieval failed", "error", err)
			return nil
		}
		passages = res
		return nil
	})

	if err := g.Wait(); err != nil {
		m.logger.Error("turn failed", "error", err)
		if errors.Is(err, agent.ErrLoopExceeded) {
			return loopExceededMessage
		}
		return fmt.Sprintf("I apologize, but I encountered an error: %v", err)
	}

	return answer + citation.FormatBlock(citation.Extract(passages.Passages))
}

// TurnEvent is one phase of a two-phase turn: a provisional working notice,
// then the final text that atomically replaces it.
type TurnEvent struct {
	SessionID string
	Final     bool
	Text      string
}

// RespondEvents answers one turn progressively: first a working event, then
// exactly one final event carrying the answer, then the channel closes. The
// consumer replaces the provisional text with the final one. Persistence
// follows RespondStored semantics.
func (m *Manager) RespondEvents(ctx context.Context, sessionID, userMessage string) <-chan TurnEvent {
	events := make(chan TurnEvent, 2)
	go func() {
		defer close(events)
		events <- TurnEvent{SessionID: sessionID, Text: workingMessage}

		sid, text := m.RespondStored(ctx, sessionID, userMessage)
		select {
		case events <- TurnEvent{SessionID: sid, Final: true, Text: text}:
		case <-ctx.Done():
		}
	}()
	return events
}

// RespondStored answers one turn within a persistent session. An empty
// sessionID starts a new session titled after the message. The user turn and
// the final answer are appended to the store; persistence failures are
// logged and the answer still returned, so a storage hiccup never loses a
// completed turn for the caller.
func (m *Manager) RespondStored(ctx context.Context, sessionID, userMessage string) (string, string) {
	if m.store == nil {
		return sessionID, m.Respond(ctx, userMessage, nil)
	}

	var history []agent.Turn
	if sessionID == "" {
		sessionID = uuid.New().String()
		sess := storage.Session{
			ID:        sessionID,
			Title:     titleFrom(userMessage),
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		if err := m.store.CreateSession(sess); err != nil {
			m.logger.Error("creating session failed", "error", err)
		}
	} else {
		turns, err := m.store.ListTurns(sessionID)
		if err != nil {
			m.logger.Error("loading history failed", "session_id", sessionID, "error", err)
		}
		history = toHistory(turns)
	}

	answer := m.Respond(ctx, userMessage, history)

	m.appendTurn(sessionID, llm.RoleUser, userMessage)
	m.appendTurn(sessionID, llm.RoleAssistant, answer)
	return sessionID, answer
}

func (m *Manager) appendTurn(sessionID, role, content string) {
	_, err := m.store.AppendTurn(storage.Turn{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		m.logger.Error("persisting turn failed", "session_id", sessionID, "role", role, "error", err)
	}
}

func toHistory(turns []storage.Turn) []agent.Turn {
	out := make([]agent.Turn, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case llm.RoleUser, llm.RoleAssistant:
			out = append(out, agent.Turn{Role: t.Role, Content: t.Content})
		}
	}
	return out
}

func titleFrom(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return title
}
