package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"outreachflow/outreach"
	"outreachflow/safety"
	"outreachflow/signals"
)

// Server exposes the operational HTTP surface: a health probe, the
// opt-out landing endpoint, and the reply-signal webhook.
type Server struct {
	settings safety.Store
	signals  signals.Store
	issuer   *safety.OptOutIssuer
	keyHash  string
	router   chi.Router
}

// NewServer wires the routes. webhookKeyHash is the bcrypt hash of the
// bearer key providers must send; an empty hash keeps the webhook
// closed.
func NewServer(settings safety.Store, sigs signals.Store, issuer *safety.OptOutIssuer, webhookKeyHash string) *Server {
	s := &Server{
		settings: settings,
		signals:  sigs,
		issuer:   issuer,
		keyHash:  webhookKeyHash,
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/optout", s.handleOptOut)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireKey)
		r.Post("/signals/reply", s.handleReplySignal)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOptOut lands recipients who clicked the unsubscribe link. The
// token carries the lead id and email it was issued for; both go on the
// do-not-contact lists.
func (s *Server) handleOptOut(w http.ResponseWriter, r *http.Request) {
	if s.issuer == nil {
		http.Error(w, "opt-out not configured", http.StatusServiceUnavailable)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusBadRequest)
		return
	}

	var emails, leadIDs []string
	if claims.Email != "" {
		emails = append(emails, claims.Email)
	}
	if claims.LeadID != "" {
		leadIDs = append(leadIDs, claims.LeadID)
	}
	if _, err := s.settings.AddDNC(r.Context(), emails, leadIDs); err != nil {
		http.Error(w, "could not record opt-out", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "You have been unsubscribed and will not be contacted again.")
}

type replySignalRequest struct {
	CampaignID string `json:"campaign_id"`
	LeadID     string `json:"lead_id"`
	Channel    string `json:"channel"`
	Address    string `json:"address"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

// handleReplySignal accepts one inbound reply event from a mailbox or
// social bridge and queues it for the next reply-detection phase.
func (s *Server) handleReplySignal(w http.ResponseWriter, r *http.Request) {
	var req replySignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	sig, err := s.signals.Insert(r.Context(), signals.Signal{
		CampaignID: req.CampaignID,
		LeadID:     req.LeadID,
		Channel:    outreach.Channel(req.Channel),
		Address:    req.Address,
		Subject:    req.Subject,
		Body:       req.Body,
	})
	if err != nil {
		if errors.Is(err, signals.ErrInvalidSignal) || errors.Is(err, outreach.ErrUnknownChannel) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "could not store signal", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int64{"id": sig.ID})
}

// requireKey gates webhook routes behind a bearer key checked against
// the configured bcrypt hash.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.keyHash == "" {
			http.Error(w, "webhook disabled", http.StatusUnauthorized)
			return
		}
		key := bearerToken(r)
		if key == "" {
			http.Error(w, "missing bearer key", http.StatusUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(s.keyHash), []byte(key)); err != nil {
			http.Error(w, "invalid key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
