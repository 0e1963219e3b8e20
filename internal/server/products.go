package server

import (
	"net/http"
	"strconv"

	"github.com/aarondl/null/v8"
	"github.com/gorilla/mux"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

type createProductRequest struct {
	ID           string       `json:"product_id" validate:"omitempty,max=64"`
	Title        string       `json:"title" validate:"required,max=255"`
	Description  null.String  `json:"description"`
	WeightG      null.Float64 `json:"weight_g"`
	LengthCM     null.Float64 `json:"length_cm"`
	HeightCM     null.Float64 `json:"height_cm"`
	WidthCM      null.Float64 `json:"width_cm"`
	CategoryName null.String  `json:"category_name"`
	PhotosQty    int          `json:"photos_qty" validate:"gte=0"`
	AvailableQty int          `json:"available_qty" validate:"gte=0"`
	CreatedBy    string       `json:"created_by" validate:"max=100"`
}

// updateProductRequest is a partial patch. Fields left out of the body stay
// unchanged; an explicit null clears a nullable field.
type updateProductRequest struct {
	storage.ProductPatch
	Version       *int   `json:"version" validate:"omitnil,gte=1"`
	UpdatedBy     string `json:"updated_by" validate:"max=100"`
	ChangeSummary string `json:"change_summary" validate:"max=500"`
}

type deleteProductRequest struct {
	DeletedBy string `json:"deleted_by" validate:"max=100"`
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	product, err := s.products.Create(r.Context(), storage.NewProduct{
		ID:           req.ID,
		Title:        req.Title,
		Description:  req.Description,
		WeightG:      req.WeightG,
		LengthCM:     req.LengthCM,
		HeightCM:     req.HeightCM,
		WidthCM:      req.WidthCM,
		CategoryName: req.CategoryName,
		PhotosQty:    req.PhotosQty,
		AvailableQty: req.AvailableQty,
		Actor:        actorFrom(r.Context(), req.CreatedBy),
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.products.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	product, err := s.products.Update(r.Context(), mux.Vars(r)["id"], storage.ProductUpdate{
		ExpectedVersion: req.Version,
		Patch:           req.ProductPatch,
		Actor:           actorFrom(r.Context(), req.UpdatedBy),
		ChangeSummary:   req.ChangeSummary,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	var req deleteProductRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	if err := s.products.Delete(r.Context(), mux.Vars(r)["id"], actorFrom(r.Context(), req.DeletedBy)); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Product deleted successfully"})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondServiceError(w, r, &storage.ValidationError{Field: "limit", Value: raw, Reason: "must be a positive integer"})
			return
		}
		limit = n
	}

	versions, err := s.products.Versions(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, versions)
}
