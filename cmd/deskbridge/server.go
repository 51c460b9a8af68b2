package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"deskbridge/internal/database"
	"deskbridge/internal/errors"
	"deskbridge/internal/metrics"
	"deskbridge/internal/models"
	"deskbridge/internal/security"
	"deskbridge/internal/service"
	"deskbridge/internal/tracing"
	"deskbridge/pkg/chat"
	"deskbridge/pkg/helpdesk"
	"deskbridge/pkg/helpdesk/freshchat"
	"deskbridge/pkg/helpdesk/zendesk"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const signatureHeader = "X-Webhook-Signature"

// maxWebhookBody bounds inbound payloads; helpdesk platforms send metadata,
// not media bytes.
const maxWebhookBody = 1 << 20

type Server struct {
	cfg      *models.Config
	router   *service.Router
	db       *database.Database
	registry *metrics.Registry
	logger   *logrus.Logger
	mux      *mux.Router
	server   *http.Server
}

func NewServer(cfg *models.Config, router *service.Router, db *database.Database, registry *metrics.Registry, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		router:   router,
		db:       db,
		registry: registry,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.mux.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	s.mux.HandleFunc("/webhook/chat/{tenantID}", s.handleChatWebhook()).Methods(http.MethodPost)
	s.mux.HandleFunc("/webhook/helpdesk/{platform}/{tenantID}", s.handleHelpdeskWebhook()).Methods(http.MethodPost)
	s.mux.HandleFunc("/webhook/helpdesk/{platform}/health", s.handleWebhookHealth()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.mux,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": Version,
		})
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(s.registry.GetAllMetrics()); err != nil {
			s.logger.WithError(err).Error("Failed to encode metrics response")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

// handleWebhookHealth reports whether the platform is registered and the
// database reachable, for the helpdesk side's endpoint verification probes.
func (s *Server) handleWebhookHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platform := models.PlatformKind(mux.Vars(r)["platform"])
		if !models.ValidPlatform(platform) {
			http.Error(w, "unknown platform", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":   "ok",
			"platform": string(platform),
		})
	}
}

func (s *Server) handleChatWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := mux.Vars(r)["tenantID"]

		body, ok := s.readVerifiedBody(w, r, s.cfg.Server.ChatWebhookSecret)
		if !ok {
			return
		}

		msg, ref, err := chat.ParseActivity(tenantID, body)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"tenant_id": tenantID,
			}).WithError(err).Warn("Failed to parse chat activity")
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if msg == nil {
			// Non-message activity (typing, membership). Nothing to route.
			w.WriteHeader(http.StatusOK)
			return
		}

		result, err := s.router.RouteFromChat(r.Context(), msg, ref)
		s.writeRouteResponse(w, r, tenantID, result, err)
	}
}

func (s *Server) handleHelpdeskWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		tenantID := vars["tenantID"]
		platform := models.PlatformKind(vars["platform"])

		if !models.ValidPlatform(platform) {
			http.Error(w, "unknown platform", http.StatusNotFound)
			return
		}

		secret, err := s.tenantWebhookSecret(r.Context(), tenantID)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"tenant_id": tenantID,
			}).WithError(err).Warn("Webhook rejected: tenant lookup failed")
			http.Error(w, "unknown tenant", http.StatusNotFound)
			return
		}

		body, ok := s.readVerifiedBody(w, r, secret)
		if !ok {
			return
		}

		var event *helpdesk.Event
		switch platform {
		case models.PlatformFreshchat:
			event, err = freshchat.ParseWebhook(tenantID, body)
		case models.PlatformZendesk:
			event, err = zendesk.ParseWebhook(tenantID, body)
		}
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"platform":  platform,
			}).WithError(err).Warn("Failed to parse helpdesk webhook")
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if event == nil {
			// Event type the bridge does not act on.
			w.WriteHeader(http.StatusOK)
			return
		}

		result, err := s.router.RouteFromHelpdesk(r.Context(), tenantID, event)
		s.writeRouteResponse(w, r, tenantID, result, err)
	}
}

// readVerifiedBody reads the request body and checks its HMAC signature.
// Without a configured secret, verification is skipped outside production.
func (s *Server) readVerifiedBody(w http.ResponseWriter, r *http.Request, secret string) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return nil, false
	}

	if secret == "" {
		if os.Getenv("DESKBRIDGE_ENV") == "production" {
			http.Error(w, "webhook secret not configured", http.StatusUnauthorized)
			return nil, false
		}
		return body, true
	}

	if !security.VerifySignature(body, r.Header.Get(signatureHeader), secret) {
		s.logger.WithField("path", r.URL.Path).Warn("Webhook rejected: signature mismatch")
		http.Error(w, "signature mismatch", http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

func (s *Server) tenantWebhookSecret(ctx context.Context, tenantID string) (string, error) {
	tenant, err := s.db.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if tenant == nil {
		return "", fmt.Errorf("unknown tenant %s", tenantID)
	}
	return tenant.WebhookSecret, nil
}

func (s *Server) writeRouteResponse(w http.ResponseWriter, r *http.Request, tenantID string, result *models.RouteResult, err error) {
	traceID := tracing.TraceID(r.Context())

	if err != nil {
		status := errors.HTTPStatusCode(err)
		s.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"trace_id":  traceID,
			"kind":      errors.GetKind(err),
			"status":    status,
		}).WithError(err).Warn("Routing failed")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(errors.ToHTTPResponse(err, traceID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result != nil && !result.Delivered() {
		// Partial delivery: report it but do not ask the platform to
		// redeliver; successful legs must not run twice.
		w.WriteHeader(http.StatusAccepted)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if result != nil {
		json.NewEncoder(w).Encode(result)
	} else {
		json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
	}
}
