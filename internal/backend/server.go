package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
	"github.com/kpfister44/Kinnect-sub000/internal/remote"
)

const actorHeader = "X-Kinnect-Actor"

// Handler builds the dev server's HTTP handler: the JSON API plus the
// websocket change stream, with request logging on every route.
func (b *Backend) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			b.logger.Info("handled",
				"method", request.Method,
				"url", request.URL,
				"duration", m.Duration,
				"status", m.Code,
			)
		})
	})

	r.Methods(http.MethodGet).Path("/api/posts").HandlerFunc(b.handleFetchPosts)
	r.Methods(http.MethodPost).Path("/api/mutations").HandlerFunc(b.handleMutate)
	r.Methods(http.MethodPost).Path("/api/media/resolve").HandlerFunc(b.handleResolveMedia)
	r.Methods(http.MethodGet).Path("/api/changes").HandlerFunc(b.handleChanges)
	return r
}

// Serve runs the dev server on addr until ctx ends or the listener fails.
// Cancellation drains in-flight requests before returning.
func (b *Backend) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: b.Handler(), ReadHeaderTimeout: 5 * time.Second}
	b.logger.Info("dev backend listening", "addr", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func requestActor(r *http.Request) post.ActorID {
	if actor := r.Header.Get(actorHeader); actor != "" {
		return post.ActorID(actor)
	}
	return post.ActorID(r.URL.Query().Get("actor"))
}

func (b *Backend) handleFetchPosts(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r)
	if actor == "" {
		http.Error(w, "missing actor", http.StatusBadRequest)
		return
	}

	scope := cache.Scope(r.URL.Query().Get("scope"))
	page := remote.Page{Cursor: r.URL.Query().Get("cursor")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		page.Limit = n
	}

	batch, err := b.FetchPosts(r.Context(), actor, scope, page)
	if err != nil {
		b.writeError(w, err)
		return
	}
	b.writeJSON(w, batch)
}

func (b *Backend) handleMutate(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r)
	if actor == "" {
		http.Error(w, "missing actor", http.StatusBadRequest)
		return
	}

	var m remote.Mutation
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	conf, err := b.Mutate(r.Context(), actor, m)
	if err != nil {
		b.writeError(w, err)
		return
	}
	b.writeJSON(w, conf)
}

func (b *Backend) handleResolveMedia(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []post.MediaKey `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	media, err := b.ResolveMedia(r.Context(), req.Keys)
	if err != nil {
		b.writeError(w, err)
		return
	}
	b.writeJSON(w, struct {
		Media map[post.MediaKey]post.Media `json:"media"`
	}{Media: media})
}

var upgrader = websocket.Upgrader{
	// The dev server trusts local callers.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (b *Backend) handleChanges(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	for {
		select {
		case record, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(record)
			if err != nil {
				b.logger.Error("encode change record", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (b *Backend) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		b.logger.Error("encode response", "error", err)
	}
}

func (b *Backend) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
