package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

type errorResponse struct {
	Error  string      `json:"error"`
	Field  string      `json:"field,omitempty"`
	Value  interface{} `json:"value,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type conflictResponse struct {
	Error           string               `json:"error"`
	CurrentVersion  int                  `json:"current_version"`
	ExpectedVersion int                  `json:"expected_version"`
	CurrentValues   *storage.Product     `json:"current_values"`
	SubmittedValues storage.ProductPatch `json:"submitted_values"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondServiceError maps service error kinds onto status codes. Internal
// failures are logged and hidden from the caller.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict   *storage.ConflictError
		validation *storage.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		respondJSON(w, http.StatusConflict, conflictResponse{
			Error:           "version conflict",
			CurrentVersion:  conflict.CurrentVersion,
			ExpectedVersion: conflict.ExpectedVersion,
			CurrentValues:   conflict.CurrentValues,
			SubmittedValues: conflict.Submitted,
		})
	case errors.As(err, &validation):
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:  validation.Error(),
			Field:  validation.Field,
			Value:  validation.Value,
			Reason: validation.Reason,
		})
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "already exists")
	default:
		s.logger.Error("http: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads an optional JSON body into dst and validates it.
// An empty body leaves dst untouched.
func (s *Server) decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return &storage.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &storage.ValidationError{Field: fe.Field(), Value: fe.Value(), Reason: "failed " + fe.Tag() + " check"}
		}
		return err
	}
	return nil
}
