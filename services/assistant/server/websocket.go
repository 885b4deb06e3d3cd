// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

const writeDeadline = 10 * time.Second

func sendJSON(ws *websocket.Conn, v any) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("failed to write websocket JSON", "error", err)
	}
	return err
}

// HandleEventsWebSocket streams workflow events to the client as they are
// published. The subscription lives for the connection; events published
// while no one listens are dropped, and a slow client loses oldest-first.
func (s *Server) HandleEventsWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			s.logger.Error("failed to upgrade the websocket", slog.Any("error", err))
			return
		}
		defer ws.Close()

		streamID := uuid.New().String()
		s.logger.Info("event stream client connected", slog.String("stream_id", streamID))

		events, cancel := s.orch.Events().Subscribe()
		defer cancel()

		if err := sendJSON(ws, map[string]any{
			"action":    "stream_connected",
			"stream_id": streamID,
		}); err != nil {
			return
		}

		// Reader goroutine: its only job is noticing the client going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := sendJSON(ws, ev); err != nil {
					return
				}
			case <-done:
				s.logger.Info("event stream client disconnected", slog.String("stream_id", streamID))
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}
