package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sephirothchang/CXVoyager-sub000/internal/tasks"
)

// Frame is one message of a live task feed. A feed opens with a snapshot
// frame, carries event frames while the task runs and ends with a final
// frame holding the last known state.
type Frame struct {
	Type  string        `json:"type"`
	Task  *tasks.Record `json:"task,omitempty"`
	Event *tasks.Event  `json:"event,omitempty"`
}

const (
	FrameSnapshot = "snapshot"
	FrameEvent    = "event"
	FrameFinal    = "final"
)

const wsWriteTimeout = 10 * time.Second

// follow writes the feed of task id through write until the task finishes,
// the task is deleted, ctx is done or write fails.
func (s *Server) follow(ctx context.Context, id string, write func(Frame) error) error {
	snap, events, cancel, err := s.manager.Subscribe(id)
	if err != nil {
		return err
	}
	defer cancel()

	if err := write(Frame{Type: FrameSnapshot, Task: &snap}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				final, err := s.manager.Get(id)
				if err != nil {
					return write(Frame{Type: FrameFinal})
				}
				return write(Frame{Type: FrameFinal, Task: &final})
			}
			if err := write(Frame{Type: FrameEvent, Event: &ev}); err != nil {
				return err
			}
		}
	}
}

// SSEWriter writes Server-Sent Events to an http.ResponseWriter.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter wraps w. Without http.Flusher support frames may be buffered.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: f}
}

// Init sets the stream headers and flushes them. Call it once before the
// first frame.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	sw.w.WriteHeader(http.StatusOK)
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// WriteFrame writes f as one "data: {json}" event and flushes.
func (sw *SSEWriter) WriteFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("sse: marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("sse: write frame: %w", err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.manager.Get(id); err != nil {
		writeTaskError(w, err)
		return
	}
	sw := NewSSEWriter(w)
	sw.Init()
	if err := s.follow(r.Context(), id, sw.WriteFrame); err != nil {
		s.logger.Debug("sse feed ended", zap.String("task", id), zap.Error(err))
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.manager.Get(id); err != nil {
		writeTaskError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", zap.String("task", id), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The client sends nothing; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = s.follow(ctx, id, func(f Frame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(f)
	})
	if err != nil {
		s.logger.Debug("ws feed ended", zap.String("task", id), zap.Error(err))
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished"),
		time.Now().Add(time.Second))
}
