// Package server exposes fit and sampling sessions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/2lambda123/facebook-prophet/internal/backend"
	"github.com/2lambda123/facebook-prophet/internal/metrics"
	"github.com/2lambda123/facebook-prophet/internal/runs"
)

const (
	defaultHost         = "127.0.0.1"
	defaultPort         = 8080
	defaultMaxBodyBytes = 32 << 20
)

// BackendFactory builds a fresh backend for one request. An empty name
// selects the configured default.
type BackendFactory func(name string) (backend.Backend, error)

// Options configures the HTTP server.
type Options struct {
	Host         string
	Port         int
	Token        string
	Open         bool
	MaxBodyBytes int64
	NewBackend   BackendFactory
	Logger       *logrus.Logger
}

// StartServer runs the HTTP server until ctx is canceled.
func StartServer(ctx context.Context, opts Options) error {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = defaultHost
	}
	port := opts.Port
	if port == 0 {
		port = defaultPort
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d", port)
	}
	if opts.NewBackend == nil {
		return errors.New("backend factory is required")
	}
	opts.Host = host

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		Handler:           NewHandler(opts),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(ctxTimeout)
	}()

	serverLog(opts).WithField("addr", srv.Addr).Info("server listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		select {
		case shutdownErr := <-shutdownErr:
			return shutdownErr
		default:
			return nil
		}
	}
	return err
}

// SessionRequest is the body of POST /fit and POST /sample.
type SessionRequest struct {
	Backend    string             `json:"backend,omitempty"`
	Data       *backend.ModelData `json:"data"`
	Init       backend.InitValues `json:"init"`
	CustomInit backend.CustomInit `json:"custom_init,omitempty"`
	Seed       *int64             `json:"seed,omitempty"`

	Algorithm    string  `json:"algorithm,omitempty"`
	Iter         int     `json:"iter,omitempty"`
	NumSteps     int     `json:"num_steps,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`

	Draws        int    `json:"draws,omitempty"`
	Chains       int    `json:"chains,omitempty"`
	Warmup       *int   `json:"warmup,omitempty"`
	MaxTreeDepth int    `json:"max_tree_depth,omitempty"`
	ChainMethod  string `json:"chain_method,omitempty"`
}

// SessionResponse is returned by POST /fit and POST /sample.
type SessionResponse struct {
	RunID   string          `json:"run_id,omitempty"`
	Backend string          `json:"backend"`
	Params  *backend.Params `json:"params"`
}

// NewHandler returns the routes served by StartServer.
func NewHandler(opts Options) http.Handler {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	h := handlerOptions{host: opts.Host, token: opts.Token, open: opts.Open, maxBody: maxBody}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/fit", func(w http.ResponseWriter, r *http.Request) {
		if !authorizeRequest(w, r, h) || !requireMethod(w, r, http.MethodPost) {
			return
		}
		serveSession(w, r, opts, "fit")
	})

	mux.HandleFunc("/sample", func(w http.ResponseWriter, r *http.Request) {
		if !authorizeRequest(w, r, h) || !requireMethod(w, r, http.MethodPost) {
			return
		}
		serveSession(w, r, opts, "sample")
	})

	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		if !authorizeRequest(w, r, h) || !requireMethod(w, r, http.MethodGet) {
			return
		}
		_, _ = runs.CleanupStale(runs.CleanupMark)
		history, err := runs.List()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "Failed to read run history")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"runs": history})
	})

	mux.HandleFunc("/runs/", func(w http.ResponseWriter, r *http.Request) {
		if !authorizeRequest(w, r, h) || !requireMethod(w, r, http.MethodGet) {
			return
		}
		id, ok := pathRemainder(r.URL.Path, "/runs/")
		if !ok {
			writeJSONError(w, http.StatusNotFound, "Unknown endpoint")
			return
		}
		run, found, err := runs.Get(id)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "Failed to read run history")
			return
		}
		if !found {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Run not found: %s", id))
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeJSONError(w, http.StatusNotFound, "Unknown endpoint")
			return
		}
		if !authorizeRequest(w, r, h) || !requireMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"service":  "prophet-server",
			"backends": backend.Names(),
		})
	})

	return withCORS(mux, h)
}

func serveSession(w http.ResponseWriter, r *http.Request, opts Options, op string) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Data == nil {
		writeJSONError(w, http.StatusBadRequest, "Request is missing data")
		return
	}
	if name := r.URL.Query().Get("backend"); name != "" {
		req.Backend = name
	}

	b, err := opts.NewBackend(req.Backend)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, backend.ErrUnknownBackend) {
			status = http.StatusBadRequest
		}
		writeJSONError(w, status, err.Error())
		return
	}

	entry := serverLog(opts).WithFields(logrus.Fields{"backend": b.Type(), "operation": op})
	record, err := runs.Start(runs.Run{Backend: b.Type(), Operation: op, Input: "http"})
	if err != nil {
		entry.WithError(err).Warn("run history unavailable")
	}
	entry = entry.WithField("run_id", record.ID)

	var params *backend.Params
	switch op {
	case "fit":
		params, err = b.Fit(r.Context(), req.Init, req.Data, backend.FitOptions{
			Init:         req.CustomInit,
			Algorithm:    req.Algorithm,
			Iter:         req.Iter,
			Seed:         req.Seed,
			NumSteps:     req.NumSteps,
			LearningRate: req.LearningRate,
		})
	default:
		draws := req.Draws
		if draws == 0 {
			draws = 1000
		}
		params, err = b.Sampling(r.Context(), req.Init, req.Data, draws, backend.SamplingOptions{
			Init:         req.CustomInit,
			Chains:       req.Chains,
			Warmup:       req.Warmup,
			Seed:         req.Seed,
			MaxTreeDepth: req.MaxTreeDepth,
			ChainMethod:  req.ChainMethod,
		})
	}

	if record.ID != "" {
		if finishErr := runs.Finish(record.ID, "", err); finishErr != nil {
			entry.WithError(finishErr).Warn("update run history")
		}
	}
	if err != nil {
		entry.WithError(err).Error("session failed")
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	entry.Info("session complete")
	writeJSON(w, http.StatusOK, SessionResponse{RunID: record.ID, Backend: b.Type(), Params: params})
}

func serverLog(opts Options) *logrus.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return logrus.StandardLogger()
}

type handlerOptions struct {
	host    string
	token   string
	open    bool
	maxBody int64
}

func withCORS(next http.Handler, opts handlerOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corsOrigin := resolveCORSOrigin(r.Header.Get("Origin"), opts.host, opts.open)
		if corsOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", corsOrigin)
			if corsOrigin != "*" {
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if opts.maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, opts.maxBody)
		}

		next.ServeHTTP(w, r)
	})
}

func authorizeRequest(w http.ResponseWriter, r *http.Request, opts handlerOptions) bool {
	if opts.token == "" {
		return true
	}
	fields := strings.Fields(strings.TrimSpace(r.Header.Get("Authorization")))
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") || fields[1] != opts.token {
		writeJSONError(w, http.StatusUnauthorized, "Invalid or missing Bearer token")
		return false
	}
	return true
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

func resolveCORSOrigin(origin, host string, open bool) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	if open {
		return "*"
	}

	switch origin {
	case "http://localhost", "http://127.0.0.1", "http://[::1]":
		return origin
	}

	host = strings.TrimSpace(host)
	if host != "" && host != "0.0.0.0" && host != "::" && origin == "http://"+host {
		return origin
	}
	return ""
}

func pathRemainder(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	remainder := strings.TrimPrefix(path, prefix)
	if remainder == "" {
		return "", false
	}
	decoded, err := url.PathUnescape(remainder)
	if err != nil {
		return "", false
	}
	return decoded, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
