package api

import (
	"net/http"
)

// handleStream opens a long-lived SSE connection for the authenticated user.
// The client receives a connected handshake event, then a notification event
// for every record delivered while the stream is open. Client disconnect,
// the idle timeout, and write errors all tear the channel down through the
// registry's close routine.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.registry.OpenChannel(currentUserID(r.Context()))

	for {
		select {
		case env := <-ch.Events():
			if err := sendSSEEvent(w, flusher, env.Event, env.Data); err != nil {
				ch.Fail(err)
				return
			}
		case <-ch.Done():
			return
		case <-r.Context().Done():
			ch.Complete()
			return
		}
	}
}
