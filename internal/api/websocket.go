// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/atelier/internal/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// streamFrame is one websocket message on a job stream. Type is "image"
// for collected results (Data is base64 in JSON) and "status" for the
// terminal snapshot that ends the stream.
type streamFrame struct {
	Type  string      `json:"type"`
	Index int         `json:"index,omitempty"`
	Seed  int64       `json:"seed,omitempty"`
	Data  []byte      `json:"data,omitempty"`
	Job   interface{} `json:"job,omitempty"`
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}
}

// checkWebSocketOrigin validates connection origins against the CORS
// allowlist. Non-browser clients without an Origin header are admitted.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// StreamJob streams a job's collected images over a websocket, replaying
// anything already collected, and closes with a terminal status frame.
func (h *Handler) StreamJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	images, done, stop, err := h.service.Subscribe(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer stop()

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	writeFrame := func(frame streamFrame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			logging.Debug().Err(err).Str("job_id", id).Msg("WebSocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case img := <-images:
			if !writeFrame(streamFrame{Type: "image", Index: img.Index, Seed: img.Seed, Data: img.Data}) {
				return
			}
		case <-done:
			// Drain images buffered before the job finished.
			for {
				select {
				case img := <-images:
					if !writeFrame(streamFrame{Type: "image", Index: img.Index, Seed: img.Seed, Data: img.Data}) {
						return
					}
					continue
				default:
				}
				break
			}
			view, err := h.service.Job(id)
			if err == nil {
				writeFrame(streamFrame{Type: "status", Job: view})
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteTimeout))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
