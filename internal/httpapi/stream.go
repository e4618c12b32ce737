package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"meritlog.org/internal/auth"
)

// Stream sends session state changes of the caller's session as Server-Sent Events.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.svc.Sessions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	uid, _ := auth.UserIDFromContext(ctx)
	ch := a.svc.Sessions.Changes(ctx)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for range ch {
		st := a.svc.Sessions.State()
		if st.SignedIn && st.UserID != uid {
			continue
		}
		payload, err := json.Marshal(st)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: session\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
