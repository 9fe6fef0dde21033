package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// HTTPServer exposes the command handler as a REST API under /api/v1.
type HTTPServer struct {
	addr    string
	handler *CommandHandler
	server  *http.Server
}

// NewHTTPServer creates a new HTTP control server.
func NewHTTPServer(addr string, handler *CommandHandler) *HTTPServer {
	return &HTTPServer{addr: addr, handler: handler}
}

// Router builds the API routes.
func (s *HTTPServer) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/devices", s.dispatch(MethodDeviceList, noParams)).Methods(http.MethodGet)
	api.HandleFunc("/device", s.dispatch(MethodDeviceSelect, bodyParams)).Methods(http.MethodPut)
	api.HandleFunc("/filters", s.dispatch(MethodFilterGet, noParams)).Methods(http.MethodGet)
	api.HandleFunc("/filters", s.dispatch(MethodFilterSet, bodyParams)).Methods(http.MethodPut)
	api.HandleFunc("/capture/{action:start|pause|resume|stop}", s.handleCapture).Methods(http.MethodPost)
	api.HandleFunc("/traffic/reset", s.dispatch(MethodTrafficReset, noParams)).Methods(http.MethodPost)
	api.HandleFunc("/traffic", s.dispatch(MethodTrafficSnapshot, limitParams)).Methods(http.MethodGet)
	api.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	api.HandleFunc("/status", s.dispatch(MethodDaemonStatus, noParams)).Methods(http.MethodGet)

	return r
}

// Start binds the listen address and serves the API in the background.
func (s *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http control listen %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()

	s.server = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	slog.Info("http control server started", "addr", s.addr)

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http control server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address.
func (s *HTTPServer) Addr() string {
	return s.addr
}

// Stop gracefully stops the server.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http control server shutdown failed: %w", err)
	}
	slog.Info("http control server stopped")
	return nil
}

type paramsFunc func(r *http.Request) (json.RawMessage, error)

func noParams(*http.Request) (json.RawMessage, error) { return nil, nil }

func bodyParams(r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return nil, err
	}
	if len(data) > 0 && !json.Valid(data) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}
	return data, nil
}

func limitParams(r *http.Request) (json.RawMessage, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("invalid limit %q", v)
	}
	return json.Marshal(TrafficSnapshotParams{Limit: n})
}

func (s *HTTPServer) dispatch(method string, params paramsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := params(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, &ErrorInfo{Code: ErrCodeInvalidParams, Message: err.Error()})
			return
		}
		s.respond(w, s.handler.Handle(r.Context(), Command{Method: method, Params: raw, ID: uuid.NewString()}))
	}
}

func (s *HTTPServer) handleCapture(w http.ResponseWriter, r *http.Request) {
	method := "capture_" + mux.Vars(r)["action"]
	s.respond(w, s.handler.Handle(r.Context(), Command{Method: method, ID: uuid.NewString()}))
}

// handleReport serves the rendered text with ?format=text, JSON otherwise.
func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	resp := s.handler.Handle(r.Context(), Command{Method: MethodReportRender, ID: uuid.NewString()})
	if resp.Error != nil || r.URL.Query().Get("format") != "text" {
		s.respond(w, resp)
		return
	}
	res, _ := resp.Result.(RenderResult)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, res.Text)
}

func (s *HTTPServer) respond(w http.ResponseWriter, resp Response) {
	if resp.Error != nil {
		writeJSON(w, httpStatus(resp.Error.Code), resp.Error)
		return
	}
	writeJSON(w, http.StatusOK, resp.Result)
}

// httpStatus maps JSON-RPC error codes onto HTTP status codes.
func httpStatus(code int) int {
	switch code {
	case ErrCodeParseError, ErrCodeInvalidRequest, ErrCodeInvalidParams:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeMethodNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write http response", "error", err)
	}
}
