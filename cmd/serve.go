package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellardex/cellarid/internal/model"
	"github.com/cellardex/cellarid/internal/store"
	"github.com/cellardex/cellarid/internal/stream"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identification HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/v1/breakers", func(w http.ResponseWriter, req *http.Request) {
			states := make(map[string]string)
			for provider, state := range env.Breakers.States() {
				states[provider] = state.String()
			}
			writeJSON(w, http.StatusOK, states)
		})

		r.Post("/v1/identify", func(w http.ResponseWriter, req *http.Request) {
			handleIdentify(env, w, req)
		})

		r.Get("/v1/identifications", func(w http.ResponseWriter, req *http.Request) {
			handleListIdentifications(env, w, req)
		})

		r.Get("/v1/identifications/{id}", func(w http.ResponseWriter, req *http.Request) {
			handleGetIdentification(env, w, req)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// identifyRequest is the wire form of an identification request. Image bytes
// arrive base64-encoded.
type identifyRequest struct {
	Kind         string `json:"kind"`
	Text         string `json:"text,omitempty"`
	Image        string `json:"image,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	PriorContext string `json:"prior_context,omitempty"`
}

// handleIdentify runs one identification and streams the event protocol to
// the client over SSE. Client disconnect is the cancellation signal.
func handleIdentify(env *identifyEnv, w http.ResponseWriter, r *http.Request) {
	var body identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req := model.IdentificationRequest{
		ID:           uuid.New().String(),
		Kind:         model.InputKind(body.Kind),
		Text:         body.Text,
		MimeType:     body.MimeType,
		PriorContext: body.PriorContext,
	}
	if body.Kind == "" {
		req.Kind = model.InputText
	}
	if body.Image != "" {
		img, err := base64.StdEncoding.DecodeString(body.Image)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image is not valid base64"})
			return
		}
		req.ImageBytes = img
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// The header must be set before the SSE writer flushes the status line.
	w.Header().Set("X-Request-Id", req.ID)
	sse, err := stream.NewSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	sink := newSummarySink(sse)
	if err := env.Engine.Identify(r.Context(), req, sink); err != nil {
		zap.L().Warn("identification failed",
			zap.String("request_id", req.ID),
			zap.Error(err))
		return
	}

	if sum, ok := sink.summary(req); ok {
		// The audit write outlives a client that disconnects right after done.
		if err := env.Store.SaveIdentification(context.WithoutCancel(r.Context()), sum); err != nil {
			zap.L().Warn("save identification failed",
				zap.String("request_id", req.ID),
				zap.Error(err))
		}
	}
}

func handleListIdentifications(env *identifyEnv, w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{Kind: model.InputKind(r.URL.Query().Get("kind"))}
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "min_confidence must be an integer"})
			return
		}
		filter.MinConfidence = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	sums, err := env.Store.ListIdentifications(r.Context(), filter)
	if err != nil {
		zap.L().Error("list identifications failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}
	if sums == nil {
		sums = []model.IdentificationSummary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

func handleGetIdentification(env *identifyEnv, w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sum, recs, err := env.Store.GetIdentification(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "identification not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identification": sum,
		"escalations":    recs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// summarySink forwards events to the wrapped emitter while remembering the
// final candidate so the handler can persist a summary after done.
type summarySink struct {
	next stream.Emitter

	result  *stream.ResultPayload
	refined *stream.RefinedPayload
}

func newSummarySink(next stream.Emitter) *summarySink {
	return &summarySink{next: next}
}

func (s *summarySink) Emit(ctx context.Context, ev stream.Event) error {
	switch p := ev.Payload.(type) {
	case stream.ResultPayload:
		s.result = &p
	case stream.RefinedPayload:
		s.refined = &p
	}
	return s.next.Emit(ctx, ev)
}

func (s *summarySink) summary(req model.IdentificationRequest) (model.IdentificationSummary, bool) {
	if s.result == nil {
		return model.IdentificationSummary{}, false
	}

	sum := model.IdentificationSummary{
		RequestID:  req.ID,
		Kind:       req.Kind,
		Input:      req.Text,
		Confidence: s.result.Confidence,
		CreatedAt:  time.Now().UTC(),
	}
	c := s.result.Candidate
	sum.Candidate = &c

	if s.refined != nil {
		sum.Improved = s.refined.Improved
		sum.Confidence = s.refined.Confidence
		rc := s.refined.Candidate
		sum.Candidate = &rc
		for _, rec := range s.refined.Escalations {
			sum.CostUSD += rec.CostUSD
		}
	}
	return sum, true
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
