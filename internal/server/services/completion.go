package services

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mlevkov/chatgate/internal/common"
	"github.com/mlevkov/chatgate/internal/logging"
	"github.com/mlevkov/chatgate/internal/server/models"
	"github.com/mlevkov/chatgate/internal/server/relay"
	"github.com/mlevkov/chatgate/internal/server/repositories/repomanager"
)

// streamLineLimit bounds a single upstream line. Answers grow cumulatively,
// so lines can get long.
const streamLineLimit = 1 << 20

// CompletionRelay is the slice of the upstream client the streaming proxy needs.
type CompletionRelay interface {
	OpenCompletionStream(ctx context.Context, kind models.SessionKind, req relay.CompletionRequest) (*http.Response, error)
}

// Event is one chunk of a completion stream, ready to be framed as an SSE
// data event. Payload is a JSON document.
type Event struct {
	Payload string
}

// CompletionService proxies completion requests. The question is persisted
// with a null answer before the upstream stream opens, the answer is filled
// in only when the stream ends cleanly.
type CompletionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	relay       CompletionRelay
	logger      logging.Logger
}

func NewCompletionService(db *sql.DB, m repomanager.RepositoryManager, relay CompletionRelay, logger logging.Logger) *CompletionService {
	return &CompletionService{db: db, repomanager: m, relay: relay, logger: logger}
}

// Stream checks ownership, records the question, opens the upstream stream
// and returns a channel of chunks. Errors before the first chunk (unknown or
// archived session, upstream refusal) are returned directly so the caller can
// still pick a status code; once the channel is handed out, failures arrive
// in-band as a terminal error chunk.
//
// Cancelling ctx aborts the upstream read and closes the channel. The
// recorded answer stays null in that case.
func (s *CompletionService) Stream(ctx context.Context, sessionID, ownerID, question string) (<-chan Event, error) {
	if question == "" {
		return nil, fmt.Errorf("question is required: %w", common.ErrorValidation)
	}

	session, err := s.repomanager.Sessions(s.db).Get(ctx, sessionID, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, common.ErrorInternal
	}
	// archived sessions look exactly like missing ones
	if !session.IsActive {
		return nil, common.ErrorNotFound
	}

	message := &models.Message{
		SessionID: session.ID,
		OwnerID:   ownerID,
		Question:  question,
		CreatedAt: time.Now(),
	}
	messageID, err := s.repomanager.Messages(s.db).Create(ctx, message)
	if err != nil {
		return nil, common.ErrorInternal
	}

	resp, err := s.relay.OpenCompletionStream(ctx, session.Kind, relay.CompletionRequest{
		Question:  question,
		SessionID: session.ID,
		Stream:    true,
	})
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 1)
	go s.pump(ctx, resp, events, messageID)
	return events, nil
}

// pump reads upstream lines, forwards them as events and accumulates the
// answer. It owns resp.Body and the events channel.
func (s *CompletionService) pump(ctx context.Context, resp *http.Response, events chan<- Event, messageID int64) {
	defer close(events)
	defer resp.Body.Close()

	// the upstream repeats the whole answer in every chunk, so last seen wins;
	// chunks that are not JSON at all are concatenated as a fallback
	var answer string
	var raw strings.Builder
	structured := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), streamLineLimit)

	for scanner.Scan() {
		payload := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "data:"))
		if payload == "" {
			continue
		}

		if a, ok := extractAnswer(payload); ok {
			answer = a
			structured = true
		} else if !json.Valid([]byte(payload)) {
			raw.WriteString(payload)
		}

		select {
		case events <- Event{Payload: payload}:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error(ctx, "completion stream interrupted", "message_id", messageID, "error", err.Error())
		frame, _ := json.Marshal(map[string]any{"code": 500, "message": err.Error()})
		select {
		case events <- Event{Payload: string(frame)}:
		case <-ctx.Done():
		}
		return
	}

	if !structured {
		answer = raw.String()
	}
	if err := s.repomanager.Messages(s.db).CompleteAnswer(ctx, messageID, answer); err != nil {
		s.logger.Error(ctx, "failed to record answer", "message_id", messageID, "error", err.Error())
	}
}

// extractAnswer pulls data.answer out of one upstream chunk. The upstream
// sends the answer cumulatively, so the last extracted value wins; chunks
// without it (status frames, the boolean end marker) are skipped.
func extractAnswer(payload string) (string, bool) {
	var chunk struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil || len(chunk.Data) == 0 {
		return "", false
	}

	var data struct {
		Answer *string `json:"answer"`
	}
	if err := json.Unmarshal(chunk.Data, &data); err != nil || data.Answer == nil {
		return "", false
	}
	return *data.Answer, true
}
