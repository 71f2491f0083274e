package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizprep-service/internal/app"
	"quizprep-service/internal/auth"
	"quizprep-service/internal/domain"
	"quizprep-service/internal/infra/memory"
)

type testServer struct {
	*httptest.Server
	surfaces *memory.SurfaceStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	source := memory.NewStaticSource(map[string][]domain.RawQuestion{
		"Mathematics": {
			{ID: "q1", Question: "2 + 2", Options: []string{"3", "4", "5"}, AnswerIndex: intPtr(1)},
			{ID: "q2", Question: "3 * 3", Options: []string{"6", "9", "12"}, AnswerIndex: intPtr(1)},
		},
	})
	service := app.NewPracticeService(
		app.NewQuestionBank(source, nil),
		memory.NewMistakeStore(),
		app.WithSeenStore(memory.NewSeenStore()),
	)
	surfaces := memory.NewSurfaceStore(service.NewSurface)
	provider := auth.NewLocalProvider(memory.NewUserStore(), memory.NewTokenBlacklist(), "test-secret", time.Hour)

	router := NewRouter(
		NewAPIHandler(service, provider),
		NewWSHandler(surfaces, provider, Defaults{Count: 10, Minutes: 5}),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, surfaces: surfaces}
}

func intPtr(i int) *int { return &i }

func (s *testServer) signUp(t *testing.T, identifier string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"identifier": identifier, "password": "secret123"})
	resp, err := http.Post(s.URL+"/auth/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d", resp.StatusCode)
	}
	var session auth.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session.Token
}

func (s *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + s.URL[len("http"):] + "/ws?subject=Mathematics&token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireState struct {
	Status   string           `json:"status"`
	Position int              `json:"position"`
	Total    int              `json:"total"`
	Current  *domain.Question `json:"current"`
}

type wireResult struct {
	Persisted bool `json:"persisted"`
	Result    struct {
		Score  int               `json:"score"`
		Total  int               `json:"total"`
		Missed []domain.Question `json:"missed"`
		Reason string            `json:"reason"`
	} `json:"result"`
}

// readUntil skips messages until one of type typ satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", typ, err)
		}
		if msg.Type == typ && (match == nil || match(msg.Payload)) {
			return msg.Payload
		}
	}
}

func stateAt(position int) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var st wireState
		return json.Unmarshal(raw, &st) == nil && st.Status == "active" && st.Position == position
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func TestWebSocketPracticeFlow(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signUp(t, "sara")
	conn := srv.dial(t, token)

	send(t, conn, "startNew", map[string]any{"count": 2, "minutes": 1})

	var first wireState
	if err := json.Unmarshal(readUntil(t, conn, "state", stateAt(0)), &first); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if first.Total != 2 || first.Current == nil {
		t.Fatalf("unexpected first state %+v", first)
	}
	missedID := first.Current.ID
	wrong := (first.Current.AnswerIndex + 1) % len(first.Current.Choices)
	send(t, conn, "answer", map[string]int{"choice": wrong})
	send(t, conn, "advance", nil)

	var second wireState
	if err := json.Unmarshal(readUntil(t, conn, "state", stateAt(1)), &second); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	send(t, conn, "answer", map[string]int{"choice": second.Current.AnswerIndex})
	send(t, conn, "advance", nil)

	var result wireResult
	if err := json.Unmarshal(readUntil(t, conn, "result", nil), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Persisted || result.Result.Score != 1 || result.Result.Total != 2 || result.Result.Reason != "end" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Result.Missed) != 1 || result.Result.Missed[0].ID != missedID {
		t.Fatalf("expected %s missed, got %+v", missedID, result.Result.Missed)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/mistakes?subject=Mathematics", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list mistakes: %v", err)
	}
	defer resp.Body.Close()
	var listed struct {
		Mistakes []domain.Mistake `json:"mistakes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode mistakes: %v", err)
	}
	if len(listed.Mistakes) != 1 || listed.Mistakes[0].ID != missedID || listed.Mistakes[0].TimesWrong != 1 {
		t.Fatalf("unexpected mistakes %+v", listed.Mistakes)
	}
}

func TestWebSocketErrors(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, srv.signUp(t, "omar"))

	send(t, conn, "answer", map[string]int{"choice": 0})
	var payload errorPayload
	if err := json.Unmarshal(readUntil(t, conn, "error", nil), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Code != "no_active_session" {
		t.Fatalf("expected no_active_session, got %+v", payload)
	}

	send(t, conn, "startMistakes", map[string]any{"ids": []string{"q1"}})
	if err := json.Unmarshal(readUntil(t, conn, "error", nil), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Code != "empty_selection" {
		t.Fatalf("expected empty_selection, got %+v", payload)
	}

	send(t, conn, "dance", nil)
	if err := json.Unmarshal(readUntil(t, conn, "error", nil), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Code != "bad_request" {
		t.Fatalf("expected bad_request, got %+v", payload)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	u := "ws" + srv.URL[len("http"):] + "/ws?subject=Mathematics"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestDisconnectReleasesSurface(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signUp(t, "lina")
	conn := srv.dial(t, token)

	send(t, conn, "startNew", map[string]any{"count": 1, "minutes": 1})
	readUntil(t, conn, "state", stateAt(0))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := srv.surfaces.Get(sessionUserID(t, srv, token)); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("surface still registered after disconnect")
}

func sessionUserID(t *testing.T, srv *testServer, token string) string {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	defer resp.Body.Close()
	var session auth.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session.UserID
}
