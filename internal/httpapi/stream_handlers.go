package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tezoro.org/internal/ledger"
	"tezoro.org/internal/stream"
)

// streamEntries serves the live posting feed over SSE. Admin only; the feed
// carries entries for every account.
func (a *API) streamEntries(w http.ResponseWriter, r *http.Request) {
	actor := a.actor(r)
	if !actor.Admin {
		writeError(w, r, http.StatusForbidden, "admin access required")
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
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := a.stream.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (a *API) publishEntries(entries []ledger.Entry, rate float64) {
	if a.stream == nil {
		return
	}
	for _, e := range entries {
		a.stream.Publish(stream.Event{
			EntryID:     e.ID,
			AccountID:   e.AccountID,
			Kind:        string(e.Kind),
			AmountMinor: e.AmountMinor,
			Currency:    string(e.Currency),
			Rate:        rate,
			Timestamp:   e.ExecutedAt,
		})
	}
}
