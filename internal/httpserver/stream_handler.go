package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/qmuntal/stateless"

	"github.com/botbyte/botbyte-go/internal/ai"
	"github.com/botbyte/botbyte-go/internal/logger"
	"github.com/botbyte/botbyte-go/internal/store"
)

// Relay states. One exchange walks
// received -> history-loaded -> streaming -> completed | failed.
var (
	stateReceived      stateless.State = "Received"
	stateHistoryLoaded stateless.State = "HistoryLoaded"
	stateStreaming     stateless.State = "Streaming"
	stateCompleted     stateless.State = "Completed"
	stateFailed        stateless.State = "Failed"
)

// Relay triggers.
var (
	triggerReceived     stateless.Trigger = "Received"
	triggerValidated    stateless.Trigger = "Validated"
	triggerHistoryReady stateless.Trigger = "HistoryReady"
	triggerStreamDone   stateless.Trigger = "StreamDone"
	triggerFailed       stateless.Trigger = "Failed"
)

const (
	defaultConversationTitle = "New conversation"
	maxTitleLen              = 50
	// userSafeError is the only provider/persistence failure text a client
	// ever sees once streaming has begun.
	userSafeError = "Failed to generate a response. Please try again."
)

// streamFrame is one server-to-client event. Exactly one done or error
// frame terminates every stream.
type streamFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

type chatStreamRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

// relay carries the per-request context the state machine actions operate
// on. Nothing here is shared between requests.
type relay struct {
	srv *Server
	w   http.ResponseWriter
	r   *http.Request
	fsm *stateless.StateMachine

	req     chatStreamRequest
	history []ai.Message

	streamStarted bool
	content       string
	failure       error
	clientErr     string // non-empty means reject before streaming begins
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	rl := &relay{srv: s, w: w, r: r}
	if err := json.NewDecoder(r.Body).Decode(&rl.req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rl.fsm = rl.newMachine()
	if err := rl.fsm.FireCtx(r.Context(), triggerReceived); err != nil {
		logger.L.Error("relay state machine error", "error", err)
	}
}

func (rl *relay) newMachine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(stateReceived)

	fsm.Configure(stateReceived).
		PermitReentry(triggerReceived).
		OnEntry(rl.onReceived).
		Permit(triggerValidated, stateHistoryLoaded).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(stateHistoryLoaded).
		OnEntry(rl.onHistoryLoaded).
		Permit(triggerHistoryReady, stateStreaming).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(stateStreaming).
		OnEntry(rl.onStreaming).
		Permit(triggerStreamDone, stateCompleted).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(stateCompleted).
		OnEntry(rl.onCompleted)

	fsm.Configure(stateFailed).
		OnEntry(rl.onFailed)

	return fsm
}

// onReceived validates the payload. Rejection here has no side effects.
func (rl *relay) onReceived(ctx context.Context, _ ...any) error {
	if strings.TrimSpace(rl.req.ConversationID) == "" {
		rl.clientErr = "conversationId is required"
		return rl.fsm.FireCtx(ctx, triggerFailed)
	}
	if strings.TrimSpace(rl.req.Message) == "" {
		rl.clientErr = "message is required"
		return rl.fsm.FireCtx(ctx, triggerFailed)
	}
	if _, err := rl.srv.store.GetConversation(ctx, rl.req.ConversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rl.clientErr = "conversation not found"
		} else {
			rl.failure = err
		}
		return rl.fsm.FireCtx(ctx, triggerFailed)
	}
	return rl.fsm.FireCtx(ctx, triggerValidated)
}

// onHistoryLoaded persists the user message, then loads the full ordered
// history used as model context. The user message is durable before the
// provider is ever called.
func (rl *relay) onHistoryLoaded(ctx context.Context, _ ...any) error {
	rl.maybeRetitle(ctx)

	if _, err := rl.srv.store.AppendMessage(ctx, rl.req.ConversationID, store.RoleUser, rl.req.Message); err != nil {
		rl.failure = err
		return rl.fsm.FireCtx(ctx, triggerFailed)
	}

	msgs, err := rl.srv.store.ListMessages(ctx, rl.req.ConversationID)
	if err != nil {
		rl.failure = err
		return rl.fsm.FireCtx(ctx, triggerFailed)
	}

	if rl.srv.systemPrompt != "" {
		rl.history = append(rl.history, ai.Message{Role: "system", Content: rl.srv.systemPrompt})
	}
	for _, m := range msgs {
		rl.history = append(rl.history, ai.Message{Role: m.Role, Content: m.Content})
	}
	return rl.fsm.FireCtx(ctx, triggerHistoryReady)
}

// onStreaming opens the event stream and forwards provider deltas, one
// chunk frame each, in arrival order.
func (rl *relay) onStreaming(ctx context.Context, _ ...any) error {
	rl.w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	rl.w.Header().Set("Cache-Control", "no-cache")
	rl.w.Header().Set("Connection", "keep-alive")
	rl.streamStarted = true

	res, err := rl.srv.chat.SendMessage(ctx, rl.history, ai.SendOptions{
		Tools: rl.srv.tools,
		OnChunk: func(text string) {
			rl.writeFrame(streamFrame{Type: "chunk", Content: text})
		},
	})
	if err != nil {
		rl.failure = err
		return rl.fsm.FireCtx(ctx, triggerFailed)
	}

	rl.content = res.Content
	return rl.fsm.FireCtx(ctx, triggerStreamDone)
}

// onCompleted persists the accumulated assistant text, exactly once, then
// terminates the stream. A failed save downgrades the terminal frame to an
// error so the client knows the turn is not durable.
func (rl *relay) onCompleted(ctx context.Context, _ ...any) error {
	if _, err := rl.srv.store.AppendMessage(ctx, rl.req.ConversationID, store.RoleAssistant, rl.content); err != nil {
		logger.L.Error("assistant message save failed", "error", err, "conversation", rl.req.ConversationID)
		rl.writeFrame(streamFrame{Type: "error", Error: userSafeError})
		return nil
	}
	rl.writeFrame(streamFrame{Type: "done"})
	return nil
}

// onFailed terminates the exchange. Before streaming: a plain JSON error
// response. After: a single error frame, unless the client is already gone.
// Partial assistant text is discarded either way.
func (rl *relay) onFailed(ctx context.Context, _ ...any) error {
	if !rl.streamStarted {
		if rl.clientErr != "" {
			status := http.StatusBadRequest
			if rl.clientErr == "conversation not found" {
				status = http.StatusNotFound
			}
			rl.srv.respondError(rl.w, status, rl.clientErr)
			return nil
		}
		logger.L.Error("relay failed before streaming", "error", rl.failure, "conversation", rl.req.ConversationID)
		rl.srv.respondError(rl.w, http.StatusInternalServerError, "failed to process message")
		return nil
	}

	if errors.Is(rl.failure, context.Canceled) || rl.r.Context().Err() != nil {
		logger.L.Info("client disconnected mid-stream, partial response discarded",
			"conversation", rl.req.ConversationID)
		return nil
	}

	logger.L.Error("relay failed mid-stream", "error", rl.failure, "conversation", rl.req.ConversationID)
	rl.writeFrame(streamFrame{Type: "error", Error: userSafeError})
	return nil
}

// maybeRetitle names a still-untitled conversation after its first message,
// the way the sidebar expects.
func (rl *relay) maybeRetitle(ctx context.Context) {
	conv, err := rl.srv.store.GetConversation(ctx, rl.req.ConversationID)
	if err != nil {
		return
	}
	if conv.Title != "" && conv.Title != defaultConversationTitle {
		return
	}
	n, err := rl.srv.store.CountMessages(ctx, rl.req.ConversationID)
	if err != nil || n > 0 {
		return
	}
	if err := rl.srv.store.RenameConversation(ctx, rl.req.ConversationID, truncateTitle(rl.req.Message)); err != nil {
		logger.L.Warn("retitle failed", "error", err, "conversation", rl.req.ConversationID)
	}
}

func (rl *relay) writeFrame(f streamFrame) {
	payload, err := json.Marshal(f)
	if err != nil {
		logger.L.Warn("frame marshal failed", "error", err)
		return
	}
	if _, err := io.WriteString(rl.w, "data: "+string(payload)+"\n\n"); err != nil {
		return
	}
	if flusher, ok := rl.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func truncateTitle(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxTitleLen {
		return s
	}
	return string(runes[:maxTitleLen]) + "..."
}
