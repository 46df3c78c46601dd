package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"contracthub/apperr"
	"contracthub/invites"
	"contracthub/middleware"
	"contracthub/models"
	"contracthub/roster"
)

type InviteHandler struct {
	log     *zap.Logger
	invites *invites.Service
}

func NewInviteHandler(log *zap.Logger, s *invites.Service) *InviteHandler {
	return &InviteHandler{log: log, invites: s}
}

type inviteEntry struct {
	Email         string  `json:"email"`
	Role          string  `json:"role"`
	Label         *string `json:"label"`
	StartDate     string  `json:"start_date"`
	DueDate       string  `json:"due_date"`
	SupervisorIDs []uint  `json:"supervisor_ids"`
}

type createInvitesRequest struct {
	Invites []inviteEntry `json:"invites"`
}

func (e inviteEntry) toParams(contractID uint) (invites.CreateParams, error) {
	p := invites.CreateParams{
		ContractID:    contractID,
		Email:         e.Email,
		SupervisorIDs: e.SupervisorIDs,
	}

	role, err := models.ParseRole(e.Role)
	if err != nil {
		return p, apperr.ValidationFailed("invalid role %q", e.Role)
	}
	p.Role = role

	if e.Label != nil && *e.Label != "" {
		label, err := models.ParseLabel(*e.Label)
		if err != nil {
			return p, apperr.ValidationFailed("invalid label %q", *e.Label)
		}
		p.Label = &label
	}

	window := roster.Window{}
	if window.StartDate, err = parseDate(e.StartDate); err != nil {
		return p, err
	}
	if window.DueDate, err = parseDate(e.DueDate); err != nil {
		return p, err
	}
	p.Window = window

	return p, nil
}

// Create processes a batch of invites for one contract. Validation and
// permission failures abort the batch; results for the processed
// entries report attached vs invited per email.
func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	contractID, err := uintParam(r, "contractID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	var req createInvitesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}
	if len(req.Invites) == 0 {
		respondError(w, h.log, apperr.ValidationFailed("at least one invite is required"))
		return
	}

	results := make([]invites.Outcome, 0, len(req.Invites))
	for _, entry := range req.Invites {
		params, err := entry.toParams(contractID)
		if err != nil {
			respondError(w, h.log, err)
			return
		}
		outcome, err := h.invites.Create(r.Context(), user.ID, params)
		if err != nil {
			respondError(w, h.log, err)
			return
		}
		results = append(results, *outcome)
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Invites processed",
		"results": results,
	})
}

func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	contractID, err := uintParam(r, "contractID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	pending, err := h.invites.ListByContract(r.Context(), user.ID, contractID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"invites": pending})
}

// Show is public: possession of the token is the capability.
func (h *InviteHandler) Show(w http.ResponseWriter, r *http.Request) {
	view, err := h.invites.Show(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	invite, err := h.invites.Accept(r.Context(), user, chi.URLParam(r, "token"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	h.log.Info("invite accepted",
		zap.Uint("invite_id", invite.ID),
		zap.Uint("contract_id", invite.ContractID),
		zap.Uint("user_id", user.ID))
	respondJSON(w, http.StatusOK, map[string]any{
		"message":     "Invite accepted",
		"contract_id": invite.ContractID,
	})
}

type updateInviteRequest struct {
	Role          *string `json:"role"`
	Label         *string `json:"label"`
	StartDate     *string `json:"start_date"`
	DueDate       *string `json:"due_date"`
	SupervisorIDs *[]uint `json:"supervisor_ids"`
}

func (h *InviteHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	inviteID, err := uintParam(r, "inviteID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	var req updateInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	var params invites.UpdateParams
	if req.Role != nil {
		role, err := models.ParseRole(*req.Role)
		if err != nil {
			respondError(w, h.log, apperr.ValidationFailed("invalid role %q", *req.Role))
			return
		}
		params.Role = &role
	}
	if req.Label != nil {
		if *req.Label == "" {
			params.ClearLabel = true
		} else {
			label, err := models.ParseLabel(*req.Label)
			if err != nil {
				respondError(w, h.log, apperr.ValidationFailed("invalid label %q", *req.Label))
				return
			}
			params.Label = &label
		}
	}
	if req.StartDate != nil || req.DueDate != nil {
		window := roster.Window{}
		if req.StartDate != nil {
			if window.StartDate, err = parseDate(*req.StartDate); err != nil {
				respondError(w, h.log, err)
				return
			}
		}
		if req.DueDate != nil {
			if window.DueDate, err = parseDate(*req.DueDate); err != nil {
				respondError(w, h.log, err)
				return
			}
		}
		params.Window = &window
	}
	params.SupervisorIDs = req.SupervisorIDs

	invite, err := h.invites.Update(r.Context(), user.ID, inviteID, params)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Invite updated",
		"invite":  invite,
	})
}

func (h *InviteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	inviteID, err := uintParam(r, "inviteID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	if err := h.invites.Delete(r.Context(), user.ID, inviteID); err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Invite deleted"})
}
