package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/joestump/dapclient/internal/hub"
)

// dashboard serves a tiny operator surface over the session tree: one SSE
// endpoint per session id streaming its "output" event text, replaying a
// bounded backlog to a client that attaches mid-session.
type dashboard struct {
	hub *hub.Hub
	srv *http.Server
}

func newDashboard(h *hub.Hub, port int) *dashboard {
	mux := http.NewServeMux()
	d := &dashboard{hub: h, srv: &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}}
	mux.HandleFunc("GET /sessions/{id}/output", d.handleOutputStream)
	return d
}

func (d *dashboard) start() {
	go func() {
		if err := d.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("dashboard server error: %v\n", err)
		}
	}()
}

func (d *dashboard) shutdown(ctx context.Context) error {
	return d.srv.Shutdown(ctx)
}

func (d *dashboard) handleOutputStream(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := d.hub.Subscribe(id)
	defer unsubscribe()

	ctx := r.Context()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case line, ok := <-ch:
			if !ok {
				_, _ = fmt.Fprintf(w, "event: done\ndata: session complete\n\n")
				flusher.Flush()
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", line)
			flusher.Flush()
		}
	}
}
