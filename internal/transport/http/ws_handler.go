package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"exam-quiz-service/internal/app"
	"exam-quiz-service/internal/auth"
	"exam-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.ExamService
	tokens   *auth.Tokens
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ExamService, tokens *auth.Tokens, logger *log.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		tokens:  tokens,
		logger:  logger,
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type tickPayload struct {
	TimeLeft int `json:"timeLeft"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and drives one user's attempt.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	if err := h.tokens.Verify(r.URL.Query().Get("token"), userID); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if _, err := h.service.Start(r.Context(), userID); err != nil && !errors.Is(err, domain.ErrAttemptFinished) {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	events, cancel, err := h.service.Subscribe(r.Context(), userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()
	defer h.service.Release(r.Context(), userID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// single writer: gorilla connections do not allow concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- toOutbound(ev):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.handle(r, userID, inbound); err != nil {
			msg := outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			if !enqueue(send, writerDone, msg) {
				// writer gave up on the connection; stop reading too
				conn.Close()
			}
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// enqueue hands msg to the writer unless the writer has already exited.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

// handle applies one client message. State changes reach the client
// through the subscription, so only errors are returned here.
func (h *WSHandler) handle(r *http.Request, userID string, msg inboundMessage) error {
	ctx := r.Context()
	switch msg.Type {
	case "answer":
		var payload struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		_, err := h.service.Answer(ctx, userID, payload.Answer)
		return err
	case "goto":
		var payload struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		_, err := h.service.Goto(ctx, userID, payload.Index)
		return err
	case "submit":
		_, err := h.service.Submit(ctx, userID)
		return err
	default:
		return errUnsupported
	}
}

func toOutbound(ev domain.AttemptEvent) outboundMessage[any] {
	switch ev.Type {
	case domain.EventTick:
		return outboundMessage[any]{Type: ev.Type, Payload: tickPayload{TimeLeft: ev.TimeLeft}}
	case domain.EventResult:
		return outboundMessage[any]{Type: ev.Type, Payload: ev.Result}
	default:
		return outboundMessage[any]{Type: ev.Type, Payload: ev.View}
	}
}
