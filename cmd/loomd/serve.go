package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/loomlabs/loom/internal/observability"
	"github.com/loomlabs/loom/internal/published"
	"github.com/loomlabs/loom/internal/tasks"
	"github.com/loomlabs/loom/internal/trace"
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the engine HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			rt.runner.Start(ctx, 2)

			server := &http.Server{
				Addr:    rt.cfg.Server.Addr,
				Handler: newHandler(rt),
			}
			errCh := make(chan error, 1)
			go func() {
				rt.logger.Info("server listening", "addr", server.Addr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			rt.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func newHandler(rt *runtime) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("POST /v1/chat/{preset}", rt.handleChat)
	mux.HandleFunc("POST /v1/chat/{preset}/stream", rt.handleChatStream)
	mux.HandleFunc("GET /v1/traces", rt.handleTraceList)
	mux.HandleFunc("GET /v1/traces/{id}", rt.handleTraceGet)
	mux.HandleFunc("POST /v1/tasks", rt.handleTaskSubmit)
	mux.HandleFunc("GET /v1/tasks/{id}", rt.handleTaskGet)
	return mux
}

type chatRequest struct {
	Request   string `json:"request"`
	SessionID string `json:"session_id"`
}

func (rt *runtime) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Request == "" {
		httpError(w, http.StatusBadRequest, "request body needs a request field")
		return
	}
	result, err := rt.front.Chat(r.Context(), r.PathValue("preset"), req.SessionID, req.Request)
	if err != nil {
		writePublishedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *runtime) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Request == "" {
		httpError(w, http.StatusBadRequest, "request body needs a request field")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream, done, err := rt.front.ChatStream(r.Context(), r.PathValue("preset"), req.SessionID, req.Request)
	if err != nil {
		writePublishedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range stream.Events() {
		payload, err := json.Marshal(event)
		if err != nil {
			rt.logger.Warn("event encode failed", "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
	<-done
}

func (rt *runtime) handleTraceList(w http.ResponseWriter, r *http.Request) {
	traces, err := rt.traces.List(r.Context(), 50)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, traces)
}

func (rt *runtime) handleTraceGet(w http.ResponseWriter, r *http.Request) {
	tr, err := rt.traces.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, trace.ErrNotFound) {
		httpError(w, http.StatusNotFound, "trace not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

type taskRequest struct {
	TaskType string          `json:"task_type"`
	Metadata json.RawMessage `json:"metadata"`
}

func (rt *runtime) handleTaskSubmit(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskType == "" {
		httpError(w, http.StatusBadRequest, "request body needs a task_type field")
		return
	}
	task, err := rt.runner.Submit(r.Context(), req.TaskType, req.Metadata)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (rt *runtime) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	task, err := rt.taskStore.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, tasks.ErrNotFound) {
		httpError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// writePublishedError maps preset resolution failures onto HTTP statuses.
func writePublishedError(w http.ResponseWriter, err error) {
	var transportErr *published.TransportError
	switch {
	case errors.Is(err, published.ErrPresetNotFound):
		httpError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, published.ErrNotPublished):
		httpError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &transportErr):
		httpError(w, http.StatusBadRequest, err.Error())
	default:
		httpError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
