package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/mlevkov/chatgate/internal/common"
	"github.com/mlevkov/chatgate/internal/server/models"
	"github.com/mlevkov/chatgate/internal/server/relay"
)

type fakeCompletionRelay struct {
	resp *http.Response
	err  error

	gotKind models.SessionKind
	gotReq  relay.CompletionRequest
	called  bool
}

func (f *fakeCompletionRelay) OpenCompletionStream(ctx context.Context, kind models.SessionKind, req relay.CompletionRequest) (*http.Response, error) {
	f.called = true
	f.gotKind = kind
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func streamResponse(body io.Reader) *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(body)}
}

func activeSession() *models.Session {
	return &models.Session{ID: "s1", OwnerID: "u1", Kind: models.KindAssistant, IsActive: true}
}

func newCompletionService(db *sql.DB, rm *fakeRepoManager, r *fakeCompletionRelay) *CompletionService {
	return NewCompletionService(db, rm, r, nopLogger{})
}

func collect(t *testing.T, events <-chan Event) []string {
	t.Helper()
	var got []string
	for e := range events {
		got = append(got, e.Payload)
	}
	return got
}

func TestStream_PreStreamFailures(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	r := &fakeCompletionRelay{}

	sEmpty := newCompletionService(db, &fakeRepoManager{s: &fakeSessionsRepo{getOut: activeSession()}, m: &fakeMessagesRepo{}}, r)
	if _, err := sEmpty.Stream(context.Background(), "s1", "u1", ""); !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("empty question: want ErrorValidation, got %v", err)
	}

	sNF := newCompletionService(db, &fakeRepoManager{s: &fakeSessionsRepo{getErr: common.ErrorNotFound}, m: &fakeMessagesRepo{}}, r)
	if _, err := sNF.Stream(context.Background(), "s1", "u2", "q"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("unowned session: want ErrorNotFound, got %v", err)
	}

	archived := activeSession()
	archived.IsActive = false
	sArch := newCompletionService(db, &fakeRepoManager{s: &fakeSessionsRepo{getOut: archived}, m: &fakeMessagesRepo{}}, r)
	if _, err := sArch.Stream(context.Background(), "s1", "u1", "q"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("archived session: want ErrorNotFound, got %v", err)
	}

	sRec := newCompletionService(db, &fakeRepoManager{s: &fakeSessionsRepo{getOut: activeSession()}, m: &fakeMessagesRepo{createErr: errBoom{}}}, r)
	if _, err := sRec.Stream(context.Background(), "s1", "u1", "q"); !errors.Is(err, common.ErrorInternal) {
		t.Fatalf("record failure: want ErrorInternal, got %v", err)
	}

	if r.called {
		t.Fatal("upstream must not be opened on pre-stream failures")
	}
}

func TestStream_UpstreamRefusalAfterQuestionRecorded(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	r := &fakeCompletionRelay{err: &relay.UpstreamError{Status: 502, Body: "down"}}
	messagesRepo := &fakeMessagesRepo{createID: 7}
	s := newCompletionService(db, &fakeRepoManager{s: &fakeSessionsRepo{getOut: activeSession()}, m: messagesRepo}, r)

	_, err := s.Stream(context.Background(), "s1", "u1", "q")
	var ue *relay.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("want UpstreamError, got %v", err)
	}

	// the question row exists even though no answer will ever arrive
	if messagesRepo.created == nil || messagesRepo.created.Question != "q" {
		t.Fatalf("question not recorded: %+v", messagesRepo.created)
	}
	if messagesRepo.created.CreatedAt.IsZero() {
		t.Fatal("recorded question must carry its creation timestamp")
	}
	if done, _, _ := messagesRepo.completedState(); done {
		t.Fatal("answer must stay null on upstream refusal")
	}
}

func TestStream_ForwardsChunksAndRecordsAnswer(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	body := strings.Join([]string{
		`data:{"code":0,"data":{"answer":"Hel","session_id":"s1"}}`,
		``,
		`data:{"code":0,"data":{"answer":"Hello there","session_id":"s1"}}`,
		``,
		`data:{"code":0,"data":true}`,
		``,
	}, "\n")

	r := &fakeCompletionRelay{resp: streamResponse(strings.NewReader(body))}
	messagesRepo := &fakeMessagesRepo{createID: 7}
	s := newCompletionService(db, &fakeRepoManager{s: &fakeSessionsRepo{getOut: activeSession()}, m: messagesRepo}, r)

	events, err := s.Stream(context.Background(), "s1", "u1", "hi")
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	got := collect(t, events)
	if len(got) != 3 {
		t.Fatalf("want 3 chunks, got %d: %v", len(got), got)
	}
	if strings.HasPrefix(got[0], "data:") {
		t.Fatalf("chunk must be bare JSON, got %q", got[0])
	}

	done, id, answer := messagesRepo.completedState()
	if !done || id != 7 || answer != "Hello there" {
		t.Fatalf("answer not recorded: done=%v id=%d answer=%q", done, id, answer)
	}

	if !r.gotReq.Stream || r.gotReq.SessionID != "s1" || r.gotReq.Question != "hi" {
		t.Fatalf("unexpected upstream request: %+v", r.gotReq)
	}
}

func TestStream_NonJSONChunksConcatenate(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	body := "data:hello\ndata:world\n"
	r := &fakeCompletionRelay{resp: streamResponse(strings.NewReader(body))}
	messagesRepo := &fakeMessagesRepo{createID: 3}
	s := newCompletionService(db, &fakeRepoManager{s: &fakeSessionsRepo{getOut: activeSession()}, m: messagesRepo}, r)

	events, err := s.Stream(context.Background(), "s1", "u1", "hi")
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	collect(t, events)

	done, _, answer := messagesRepo.completedState()
	if !done || answer != "helloworld" {
		t.Fatalf("fallback answer: done=%v answer=%q", done, answer)
	}
}

type failingReader struct {
	data string
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		return copy(p, r.data), nil
	}
	return 0, errors.New("connection reset")
}

func TestStream_MidStreamFailureEmitsErrorChunk(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	reader := &failingReader{data: "data:{\"code\":0,\"data\":{\"answer\":\"partial\"}}\n"}
	r := &fakeCompletionRelay{resp: streamResponse(reader)}
	messagesRepo := &fakeMessagesRepo{createID: 7}
	s := newCompletionService(db, &fakeRepoManager{s: &fakeSessionsRepo{getOut: activeSession()}, m: messagesRepo}, r)

	events, err := s.Stream(context.Background(), "s1", "u1", "hi")
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	got := collect(t, events)
	if len(got) != 2 {
		t.Fatalf("want data chunk + error chunk, got %v", got)
	}
	last := got[len(got)-1]
	if !strings.Contains(last, `"code":500`) || !strings.Contains(last, "connection reset") {
		t.Fatalf("want terminal error chunk, got %q", last)
	}

	if done, _, _ := messagesRepo.completedState(); done {
		t.Fatal("answer must stay null after a mid-stream failure")
	}
}

func TestStream_CancelAbortsWithoutRecordingAnswer(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	pr, pw := io.Pipe()
	r := &fakeCompletionRelay{resp: streamResponse(pr)}
	messagesRepo := &fakeMessagesRepo{createID: 7}
	s := newCompletionService(db, &fakeRepoManager{s: &fakeSessionsRepo{getOut: activeSession()}, m: messagesRepo}, r)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := s.Stream(ctx, "s1", "u1", "hi")
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	// both lines land in the scanner's buffer in one read, so the pump is
	// never blocked on the pipe when the context is cancelled
	if _, err := pw.Write([]byte("data:{\"code\":0,\"data\":{\"answer\":\"a\"}}\ndata:{\"code\":0,\"data\":{\"answer\":\"ab\"}}\n")); err != nil {
		t.Fatalf("pipe write: %v", err)
	}

	cancel()

	// channel must close once the pump notices the cancellation
	collect(t, events)
	pw.Close()

	if done, _, _ := messagesRepo.completedState(); done {
		t.Fatal("cancelled stream must leave the answer null")
	}
}
