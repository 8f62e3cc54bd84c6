package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/contacthub/contacthub/internal/domain"
	"github.com/contacthub/contacthub/internal/service"
	apperrors "github.com/contacthub/contacthub/pkg/errors"
	"github.com/contacthub/contacthub/pkg/validator"
)

// ContactHandler handles HTTP requests for the contacts endpoints.
type ContactHandler struct {
	service *service.ContactService
	logger  *slog.Logger
}

// NewContactHandler creates a new contact HTTP handler.
func NewContactHandler(svc *service.ContactService, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{service: svc, logger: logger}
}

// ContactRequest is the JSON request body for creating or updating a contact.
type ContactRequest struct {
	FirstName string `json:"first_name" validate:"required,min=1,max=50"`
	LastName  string `json:"last_name" validate:"required,min=1,max=50"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Phone     string `json:"phone" validate:"required,min=5,max=20"`
	Birthday  string `json:"birthday" validate:"required,datetime=2006-01-02"`
	Note      string `json:"note" validate:"max=250"`
}

// decodeContactRequest reads and validates the shared contact body.
func decodeContactRequest(w http.ResponseWriter, r *http.Request) (*service.ContactInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return nil, false
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return nil, false
	}

	var birthday domain.Date
	if err := birthday.UnmarshalJSON([]byte(`"` + req.Birthday + `"`)); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "birthday must be a YYYY-MM-DD date"},
		})
		return nil, false
	}

	return &service.ContactInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Birthday:  birthday,
		Note:      req.Note,
	}, true
}

// Create handles POST /api/contacts/
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		writeAppError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	input, ok := decodeContactRequest(w, r)
	if !ok {
		return
	}

	contact, err := h.service.Create(r.Context(), user.ID, *input)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: contact})
}

// List handles GET /api/contacts/
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		writeAppError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	contacts, err := h.service.List(r.Context(), user.ID, limit, offset)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: contacts})
}

// Get handles GET /api/contacts/{id}
func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		writeAppError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	contact, err := h.service.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: contact})
}

// Update handles PUT /api/contacts/{id}
func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		writeAppError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	input, ok := decodeContactRequest(w, r)
	if !ok {
		return
	}

	contact, err := h.service.Update(r.Context(), user.ID, chi.URLParam(r, "id"), *input)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: contact})
}

// Delete handles DELETE /api/contacts/{id}
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		writeAppError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	if err := h.service.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/contacts/search/keyword={keyword}
func (h *ContactHandler) Search(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		writeAppError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	contacts, err := h.service.Search(r.Context(), user.ID, chi.URLParam(r, "keyword"))
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: contacts})
}

// UpcomingBirthdays handles GET /api/contacts/birthdays/{days}
func (h *ContactHandler) UpcomingBirthdays(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		writeAppError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	days, err := strconv.Atoi(chi.URLParam(r, "days"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "days must be an integer"},
		})
		return
	}

	contacts, err := h.service.UpcomingBirthdays(r.Context(), user.ID, days)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: contacts})
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
