package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/davitran/hubsync/internal/hubspot"
	"github.com/davitran/hubsync/internal/services"
	"github.com/davitran/hubsync/pkg/errors"
	"github.com/davitran/hubsync/pkg/response"
)

// ContactHandler serves the locally mirrored HubSpot contacts.
type ContactHandler struct {
	contacts *services.ContactService
}

// NewContactHandler constructs a ContactHandler.
func NewContactHandler(contacts *services.ContactService) (*ContactHandler, error) {
	if contacts == nil {
		return nil, stderrors.New("contact handler: contact service is required")
	}
	return &ContactHandler{contacts: contacts}, nil
}

type contactRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" validate:"omitempty,email"`
	Company   string `json:"company"`
	Website   string `json:"website"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
}

func (r contactRequest) input() services.ContactInput {
	return services.ContactInput{
		FirstName: strings.TrimSpace(r.FirstName),
		LastName:  strings.TrimSpace(r.LastName),
		Email:     strings.ToLower(strings.TrimSpace(r.Email)),
		Company:   strings.TrimSpace(r.Company),
		Website:   strings.TrimSpace(r.Website),
		Phone:     strings.TrimSpace(r.Phone),
		Address:   strings.TrimSpace(r.Address),
		State:     strings.TrimSpace(r.State),
		Zip:       strings.TrimSpace(r.Zip),
	}
}

// GET /contacts/
func (h *ContactHandler) List(c *gin.Context) {
	contacts, err := h.contacts.List(c.Request.Context())
	if err != nil {
		response.Error(c, contactError(err))
		return
	}
	response.Success(c, http.StatusOK, contacts)
}

// POST /contacts/
func (h *ContactHandler) Create(c *gin.Context) {
	var req contactRequest
	if !bindAndValidate(c, &req) {
		return
	}

	contact, err := h.contacts.Create(c.Request.Context(), req.input())
	if err != nil {
		response.Error(c, contactError(err))
		return
	}
	response.Success(c, http.StatusCreated, contact)
}

// GET /contacts/:id/
func (h *ContactHandler) Get(c *gin.Context) {
	id, ok := contactID(c)
	if !ok {
		return
	}

	contact, err := h.contacts.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, contactError(err))
		return
	}
	response.Success(c, http.StatusOK, contact)
}

// PUT /contacts/:id/
func (h *ContactHandler) Update(c *gin.Context) {
	id, ok := contactID(c)
	if !ok {
		return
	}

	var req contactRequest
	if !bindAndValidate(c, &req) {
		return
	}

	contact, err := h.contacts.Update(c.Request.Context(), id, req.input())
	if err != nil {
		response.Error(c, contactError(err))
		return
	}
	response.Success(c, http.StatusOK, contact)
}

// DELETE /contacts/:id/
func (h *ContactHandler) Delete(c *gin.Context) {
	id, ok := contactID(c)
	if !ok {
		return
	}

	if err := h.contacts.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, contactError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Contact deleted successfully"})
}

func contactID(c *gin.Context) (uint, bool) {
	raw := strings.Trim(c.Param("id"), "/")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		response.Error(c, errors.NewBadRequest("invalid contact id"))
		return 0, false
	}
	return uint(id), true
}

// contactError maps upstream CRM failures to a 502 while letting local
// application errors pass through untouched.
func contactError(err error) error {
	var remoteErr *hubspot.RemoteError
	if stderrors.As(err, &remoteErr) {
		return errors.ErrRemoteService.WithInternal(err)
	}
	return err
}
