package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/open-feature/appflagd/pkg/eval"
	"github.com/open-feature/appflagd/pkg/model"
	"github.com/open-feature/appflagd/pkg/sync"
)

const appIDParam = "appId"

type HTTPServiceConfiguration struct {
	Port            int32
	ShutdownTimeout time.Duration
}

type HTTPService struct {
	HTTPServiceConfiguration *HTTPServiceConfiguration
	Logger                   *log.Entry
}

type Server struct {
	eval   eval.IEvaluator
	mux    *sync.Multiplexer
	logger *log.Entry
}

type ResolutionDetails struct {
	FlagKey string      `json:"flagKey"`
	Value   model.Value `json:"value"`
	Reason  string      `json:"reason"`
}

type ResolutionDetailsWithError struct {
	FlagKey   string `json:"flagKey,omitempty"`
	ErrorCode string `json:"errorCode"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

func NewServer(eval eval.IEvaluator, mux *sync.Multiplexer, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "service")
	}
	return &Server{eval: eval, mux: mux, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/flags", s.ResolveAll)
	r.Get("/flags/stream", s.Stream)
	r.Get("/flags/{flagKey}/{type}", s.ResolveTyped)
	r.Get("/state", s.State)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metricsHandler())
	return r
}

// ResolveAll writes every flag resolved for the appId query parameter.
func (s *Server) ResolveAll(w http.ResponseWriter, r *http.Request) {
	flags := s.eval.ResolveAll(r.URL.Query().Get(appIDParam))
	writeJSON(w, http.StatusOK, flags)
}

// ResolveTyped resolves one flag and checks it has the type named in the path.
func (s *Server) ResolveTyped(w http.ResponseWriter, r *http.Request) {
	flagKey := chi.URLParam(r, "flagKey")
	appID := r.URL.Query().Get(appIDParam)

	want, err := model.ParseValueType(chi.URLParam(r, "type"))
	if err != nil {
		s.handleError(w, flagKey, model.ErrorReason, err)
		return
	}

	value, reason, err := s.eval.ResolveValue(flagKey, appID)
	if err == nil && value.Type() != want {
		reason = model.ErrorReason
		err = fmt.Errorf("%w: %s is %s, not %s", model.ErrTypeMismatch, flagKey, value.Type(), want)
	}
	resolutionsTotal.WithLabelValues(reason).Inc()
	if err != nil {
		s.handleError(w, flagKey, reason, err)
		return
	}
	writeJSON(w, http.StatusOK, ResolutionDetails{FlagKey: flagKey, Value: value, Reason: reason})
}

func (s *Server) State(w http.ResponseWriter, _ *http.Request) {
	state, err := s.eval.GetState()
	if err != nil {
		s.handleError(w, "", model.ErrorReason, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(state))
}

// Stream sends the resolved flags of appId as server-sent events, once on
// connect and again whenever they change.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || s.mux == nil {
		s.handleError(w, "", model.ErrorReason, errors.New("streaming unsupported"))
		return
	}
	appID := r.URL.Query().Get(appIDParam)

	id, updates, current, err := s.mux.Register(appID)
	if err != nil {
		s.handleError(w, "", model.ErrorReason, err)
		return
	}
	defer s.mux.Unregister(id, appID)
	streamSubscribers.Inc()
	defer streamSubscribers.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	payload := current
	for {
		if _, err := fmt.Fprintf(w, "event: flags\ndata: %s\n\n", payload.Flags); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case p, open := <-updates:
			if !open {
				return
			}
			payload = p
		}
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
// Request contexts derive from ctx, so open streams end with it.
func (h *HTTPService) Serve(ctx context.Context, eval eval.IEvaluator, mux *sync.Multiplexer) error {
	if h.HTTPServiceConfiguration == nil {
		return errors.New("http service configuration has not been initialised")
	}
	logger := h.Logger
	if logger == nil {
		logger = log.WithField("component", "service")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", h.HTTPServiceConfiguration.Port),
		Handler:           NewServer(eval, mux, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http service: %w", err)
	case <-ctx.Done():
	}

	timeout := h.HTTPServiceConfiguration.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http service shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// some basic mapping of errors from model to HTTP
func (s *Server) handleError(w http.ResponseWriter, flagKey string, reason string, err error) {
	code := model.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case model.FlagNotFoundErrorCode:
		status = http.StatusNotFound
	case model.TypeMismatchErrorCode, model.ParseErrorCode:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(err)
	} else {
		s.logger.Debug(err)
	}
	writeJSON(w, status, ResolutionDetailsWithError{
		FlagKey:   flagKey,
		ErrorCode: code,
		Reason:    reason,
		Message:   err.Error(),
	})
}
