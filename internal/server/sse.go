package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// handleSSE streams state changes via Server-Sent Events.
//
// The optional "fields" query parameter is a comma separated list of state
// field names; it defaults to every field. The first event carries all
// selected fields, later events only the fields whose value changed.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	fields, err := newFieldSet(parseFields(r.URL.Query().Get("fields")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	// writeAndFlush writes SSE data with a deadline to prevent blocking forever.
	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", zap.Error(err))
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	// sendChanged writes one event with the fields that changed, if any.
	sendChanged := func() error {
		changed := fields.diff(sub.current())
		if len(changed) == 0 {
			return nil
		}
		data, err := sonic.Marshal(changed)
		if err != nil {
			s.logger.Error("failed to encode sse event", zap.Error(err))
			return nil
		}
		return writeAndFlush(data)
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if s.metrics != nil {
		s.metrics.SSEClients.Inc()
		defer s.metrics.SSEClients.Dec()
	}

	// initial event (also protected by write deadline)
	if err := sendChanged(); err != nil {
		return
	}

	for {
		select {
		case <-sub.ready:
			if err := sendChanged(); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
