package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
	"github.com/JakeFAU/sitereport/internal/orchestrator"
)

// UserIDHeader is set by the auth collaborator in front of this service.
const UserIDHeader = "X-User-ID"

type tempCartRequest struct {
	CartID   string          `json:"cart_id" validate:"omitempty,max=128"`
	URL      string          `json:"url" validate:"required,url"`
	Metadata json.RawMessage `json:"metadata"`
}

type tempCartResponse struct {
	CartID    string          `json:"cart_id"`
	URL       string          `json:"url,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type downloadsResponse struct {
	PurchaseID string                 `json:"purchase_id"`
	Downloads  []fulfillment.Download `json:"downloads"`
}

func (s *Server) createTempCart(w http.ResponseWriter, r *http.Request) {
	var req tempCartRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	cart, err := s.svc.CreateTempCart(r.Context(), req.CartID, req.URL, req.Metadata)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidCart) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("create temp cart", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not store cart")
		return
	}
	s.writeJSON(w, http.StatusCreated, tempCartResponse{CartID: cart.CartID, ExpiresAt: cart.ExpiresAt})
}

func (s *Server) getTempCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.svc.TempCart(r.Context(), chi.URLParam(r, "cart_id"))
	if err != nil {
		s.writeLookupError(w, err, "temp cart")
		return
	}
	s.writeJSON(w, http.StatusOK, tempCartResponse{
		CartID:    cart.CartID,
		URL:       cart.URL,
		Metadata:  cart.Metadata,
		ExpiresAt: cart.ExpiresAt,
	})
}

func (s *Server) purchaseStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.PurchaseStatus(r.Context(), chi.URLParam(r, "purchase_id"))
	if err != nil {
		s.writeLookupError(w, err, "purchase")
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) purchaseDownloads(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchase_id")
	downloads, err := s.svc.Downloads(r.Context(), purchaseID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNotCompleted) {
			s.writeError(w, http.StatusConflict, "reports are not ready")
			return
		}
		s.writeLookupError(w, err, "purchase")
		return
	}
	s.writeJSON(w, http.StatusOK, downloadsResponse{PurchaseID: purchaseID, Downloads: downloads})
}

func (s *Server) claimPurchase(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		s.writeError(w, http.StatusUnauthorized, "sign in required")
		return
	}
	purchaseID := chi.URLParam(r, "purchase_id")
	if err := s.svc.Claim(r.Context(), purchaseID, userID); err != nil {
		if errors.Is(err, fulfillment.ErrAlreadyClaimed) {
			s.writeError(w, http.StatusConflict, "purchase already claimed")
			return
		}
		s.writeLookupError(w, err, "purchase")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"purchase_id": purchaseID, "user_id": userID})
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	storagePath, err := fulfillment.ArtifactPath(chi.URLParam(r, "purchase_id"), chi.URLParam(r, "file_name"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	q := r.URL.Query()
	fullPath, err := s.opts.Files.Verify(storagePath, q.Get("expires"), q.Get("signature"))
	if err != nil {
		s.writeError(w, http.StatusForbidden, "invalid or expired link")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, fullPath)
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, fulfillment.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("lookup failed", zap.String("resource", what), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
