package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-roomchat/internal/server"
	"golang.org/x/time/rate"
)

const roomsTimeout = 5 * time.Second

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// getRooms serves the room directory. The answer comes from the chat
// server's event loop, so it is consistent with what websocket clients see.
func (s *GoChatApp) getRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), roomsTimeout)
	defer cancel()

	rooms, err := s.cs.Rooms(ctx)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			errResp = NewServiceUnavailableError(err)
		} else {
			errResp = NewInternalServerError(err)
		}
		s.log.Printf("list rooms: %v", err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

// checkOrigin allows requests without an Origin header and those from an
// allowed origin. "*" allows any origin.
func (s *GoChatApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, "*") || slices.Contains(s.allowedOrigins, origin)
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	var limiter *rate.Limiter
	if s.rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.rateLimit), s.rateBurst)
	}

	client := server.NewClient(uuid.NewString(), conn, s.cs, s.log, limiter, s.maxUploadBytes)
	if !s.cs.Register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
