package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Layr-Labs/farbook-go/pkg/connectFlow"
	"github.com/gorilla/mux"
	qrcode "github.com/skip2/go-qrcode"
)

// QRCodeSize is the edge length in pixels of /qr.png
const QRCodeSize = 256

// handlePage renders the page shell
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	snap := s.flow.Snapshot()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := renderPage(w, s.appName, snap); err != nil {
		s.logger.Sugar().Errorw("Failed to render page", "error", err)
	}
}

// handleConnect starts a new connect attempt
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !s.connectLimiter.Allow() {
		s.logger.Sugar().Warnw("Connect rate limited", "remote_addr", r.RemoteAddr)
		s.respond(w, r, http.StatusTooManyRequests, s.flow.Snapshot())
		return
	}

	snap, err := s.flow.Connect(r.Context())
	if err != nil {
		s.logger.Sugar().Errorw("Connect failed", "error", err, "state", snap.State.String())
		s.respond(w, r, statusForError(err), snap)
		return
	}

	s.logger.Sugar().Infow("Connect attempt awaiting approval",
		"attempt_id", snap.AttemptID,
		"public_key", snap.PublicKey,
	)
	s.respond(w, r, http.StatusOK, snap)
}

// handleSubmit sends the approved signed message to the hub
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.flow.Submit(r.Context())
	if err != nil {
		s.logger.Sugar().Errorw("Submit failed", "error", err, "state", snap.State.String())
		s.respond(w, r, statusForError(err), snap)
		return
	}
	s.respond(w, r, http.StatusOK, snap)
}

// handleState returns the widget state as JSON
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flow.Snapshot())
}

// handleQRCode renders the signer-add link of the current attempt
func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	snap := s.flow.Snapshot()
	if snap.QRPayload == "" {
		http.Error(w, "No signer request", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(snap.QRPayload, qrcode.Medium, QRCodeSize)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to render QR code", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// handleHealth checks the attempt store
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.HealthCheck(); err != nil {
			s.logger.Sugar().Warnw("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListAttempts returns the attempt audit trail
func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListAttempts()
	if err != nil {
		s.logger.Sugar().Errorw("Failed to list attempts", "error", err)
		http.Error(w, "Failed to list attempts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, err := s.store.LoadAttempt(id)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to load attempt", "error", err, "attempt_id", id)
		http.Error(w, "Failed to load attempt", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Attempt not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleDeleteAttempt drops a record. The current attempt is written again on its
// next state change.
func (s *Server) handleDeleteAttempt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.DeleteAttempt(id); err != nil {
		s.logger.Sugar().Errorw("Failed to delete attempt", "error", err, "attempt_id", id)
		http.Error(w, "Failed to delete attempt", http.StatusInternalServerError)
		return
	}
	s.logger.Sugar().Infow("Deleted attempt record", "attempt_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// respond answers widget controls: JSON clients get the state and a status code,
// browsers are sent back to the page
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, snap connectFlow.Snapshot) {
	if wantsJSON(r) {
		writeJSON(w, status, snap)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, connectFlow.ErrInvalidTransition), errors.Is(err, connectFlow.ErrAttemptSuperseded):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
