package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quizprep-service/internal/app"
	"quizprep-service/internal/auth"
	"quizprep-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Defaults are applied to start requests that leave count or minutes unset.
type Defaults struct {
	Count   int
	Minutes int
}

type WSHandler struct {
	registry app.SurfaceRegistry
	auth     auth.Provider
	defaults Defaults
	upgrader websocket.Upgrader
}

func NewWSHandler(registry app.SurfaceRegistry, provider auth.Provider, defaults Defaults) *WSHandler {
	return &WSHandler{
		registry: registry,
		auth:     provider,
		defaults: defaults,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startNewPayload struct {
	Subject string `json:"subject"`
	Count   *int   `json:"count"`
	Minutes *int   `json:"minutes"`
}

type startMistakesPayload struct {
	Subject string   `json:"subject"`
	IDs     []string `json:"ids"`
	Minutes *int     `json:"minutes"`
}

type answerPayload struct {
	Choice int `json:"choice"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type resultPayload struct {
	Subject   string               `json:"subject"`
	Result    domain.SessionResult `json:"result"`
	Persisted bool                 `json:"persisted"`
	Error     string               `json:"error,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades an authenticated request and drives the user's practice
// surface from the messages it receives.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	session, err := h.auth.CurrentSession(r.Context(), bearerToken(r))
	if err != nil || session == nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	subject := r.URL.Query().Get("subject")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	surface := h.registry.GetOrCreate(session.UserID)
	events, unsubscribe := surface.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})
	var starts sync.WaitGroup

	emit := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					log.Debug().Err(err).Str("user_id", session.UserID).Msg("ws write error")
					drain(send)
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					drain(send)
					return
				}
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev := <-events:
				emit(toOutbound(ev))
			case <-closeSignals:
				return
			}
		}
	}()

	log.Info().Str("user_id", session.UserID).Str("subject", subject).Msg("practice surface connected")

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch inbound.Type {
		case "startNew":
			var p startNewPayload
			if err := decodePayload(inbound.Payload, &p); err != nil {
				emit(errorMessage("bad_request", "invalid startNew payload"))
				continue
			}
			scope := domain.Scope{UserID: session.UserID, Subject: pick(p.Subject, subject)}
			count, minutes := valueOr(p.Count, h.defaults.Count), valueOr(p.Minutes, h.defaults.Minutes)
			starts.Add(1)
			go func() {
				defer starts.Done()
				_, err := surface.StartNew(ctx, scope, count, minutes)
				h.reportStart(emit, scope, err)
			}()
		case "startMistakes":
			var p startMistakesPayload
			if err := decodePayload(inbound.Payload, &p); err != nil {
				emit(errorMessage("bad_request", "invalid startMistakes payload"))
				continue
			}
			scope := domain.Scope{UserID: session.UserID, Subject: pick(p.Subject, subject)}
			minutes := valueOr(p.Minutes, h.defaults.Minutes)
			starts.Add(1)
			go func() {
				defer starts.Done()
				_, err := surface.StartMistakes(ctx, scope, p.IDs, minutes)
				h.reportStart(emit, scope, err)
			}()
		case "answer":
			var p answerPayload
			if err := decodePayload(inbound.Payload, &p); err != nil {
				emit(errorMessage("bad_request", "invalid answer payload"))
				continue
			}
			h.drive(emit, func() (app.Snapshot, error) { return surface.Answer(p.Choice) })
		case "advance":
			h.drive(emit, surface.Advance)
		case "finish":
			h.drive(emit, surface.Finish)
		case "abort":
			h.drive(emit, surface.Abort)
		case "snapshot":
			if snap, ok := surface.Snapshot(); ok {
				emit(outboundMessage{Type: "state", Payload: snap})
			} else {
				emit(errorMessage("no_active_session", domain.ErrNoActiveSession.Error()))
			}
		default:
			emit(errorMessage("bad_request", "unsupported message type"))
		}
	}

	cancel()
	starts.Wait()
	unsubscribe()
	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone

	if surface.Subscribers() == 0 {
		surface.Close()
		h.registry.DeleteIfIdle(session.UserID)
	}
	log.Info().Str("user_id", session.UserID).Msg("practice surface disconnected")
}

// drive only reports failures; successful transitions reach the client as
// state events.
func (h *WSHandler) drive(emit func(outboundMessage), op func() (app.Snapshot, error)) {
	if _, err := op(); err != nil {
		emit(errorFor(err))
	}
}

func (h *WSHandler) reportStart(emit func(outboundMessage), scope domain.Scope, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	log.Debug().Err(err).Str("user_id", scope.UserID).Str("subject", scope.Subject).Msg("start rejected")
	emit(errorFor(err))
}

func toOutbound(ev app.Event) outboundMessage {
	if ev.Kind == app.EventResult && ev.Outcome != nil {
		p := resultPayload{
			Subject:   ev.Outcome.Scope.Subject,
			Result:    ev.Outcome.Result,
			Persisted: ev.Outcome.Err == nil,
		}
		if ev.Outcome.Err != nil {
			p.Error = ev.Outcome.Err.Error()
		}
		return outboundMessage{Type: "result", Payload: p}
	}
	return outboundMessage{Type: "state", Payload: ev.Snapshot}
}

func errorMessage(code, msg string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Code: code, Message: msg}}
}

func errorFor(err error) outboundMessage {
	return errorMessage(errorCode(err), err.Error())
}

// errorCode maps domain errors onto the stable codes clients switch on.
func errorCode(err error) string {
	var (
		empty   *domain.EmptySelectionError
		invalid *domain.InvalidSessionError
		fetch   *domain.FetchError
		storage *domain.StorageError
		authErr *domain.AuthError
	)
	switch {
	case errors.As(err, &authErr):
		return string(authErr.Code)
	case errors.As(err, &empty):
		return "empty_selection"
	case errors.As(err, &invalid):
		return "invalid_session"
	case errors.As(err, &fetch):
		return "fetch_failed"
	case errors.As(err, &storage):
		return "storage_failed"
	case errors.Is(err, domain.ErrNoActiveSession):
		return "no_active_session"
	case errors.Is(err, domain.ErrInvalidScope):
		return "invalid_scope"
	default:
		return "internal"
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func valueOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func drain(ch <-chan outboundMessage) {
	for range ch {
	}
}
