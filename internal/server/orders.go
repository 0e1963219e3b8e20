package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

type statusRequest struct {
	Status    string `json:"status" validate:"required"`
	ChangedBy string `json:"changed_by" validate:"max=100"`
	Notes     string `json:"notes" validate:"max=1000"`
}

type transitionRequest struct {
	ChangedBy string `json:"changed_by" validate:"max=100"`
	Notes     string `json:"notes" validate:"max=1000"`
}

type updateItemRequest struct {
	storage.ItemPatch
	UpdatedBy string `json:"updated_by" validate:"max=100"`
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	order, err := s.orders.SetStatus(r.Context(), mux.Vars(r)["id"], storage.OrderStatus(req.Status),
		actorFrom(r.Context(), req.ChangedBy), req.Notes)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	order, err := s.orders.Cancel(r.Context(), mux.Vars(r)["id"], actorFrom(r.Context(), req.ChangedBy), req.Notes)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleRefundOrder(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	order, err := s.orders.Refund(r.Context(), mux.Vars(r)["id"], actorFrom(r.Context(), req.ChangedBy), req.Notes)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleUpdateOrderItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	itemID, err := strconv.Atoi(vars["itemID"])
	if err != nil {
		s.respondServiceError(w, r, &storage.ValidationError{Field: "item_id", Value: vars["itemID"], Reason: "must be an integer"})
		return
	}

	var req updateItemRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	item, err := s.orders.UpdateItem(r.Context(), vars["id"], itemID, req.ItemPatch, actorFrom(r.Context(), req.UpdatedBy))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}
