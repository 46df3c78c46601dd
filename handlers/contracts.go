package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"contracthub/apperr"
	"contracthub/middleware"
	"contracthub/models"
	"contracthub/roster"
)

type ContractHandler struct {
	log    *zap.Logger
	roster *roster.Service
}

func NewContractHandler(log *zap.Logger, r *roster.Service) *ContractHandler {
	return &ContractHandler{log: log, roster: r}
}

type createContractRequest struct {
	Name    string `json:"name"`
	Details string `json:"details"`
}

func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var req createContractRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	contract, err := h.roster.CreateContract(r.Context(), user.ID, req.Name, req.Details)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	h.log.Info("contract created",
		zap.Uint("contract_id", contract.ID),
		zap.Uint("creator_id", user.ID))
	respondJSON(w, http.StatusCreated, contract)
}

func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	contracts, err := h.roster.ListContracts(r.Context(), user.ID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"contracts": contracts})
}

func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	contractID, err := uintParam(r, "contractID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	contract, err := h.roster.GetContract(r.Context(), contractID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	member, err := h.roster.IsMember(r.Context(), contractID, user.ID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	if !member {
		respondError(w, h.log, apperr.Forbidden("not a member of this contract"))
		return
	}

	members, err := h.roster.Members(r.Context(), contractID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	roles, err := h.roster.RolesOf(r.Context(), contractID, user.ID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"contract": contract,
		"members":  members,
		"roles":    roles,
	})
}

type updateMemberRequest struct {
	StartDate     *string   `json:"start_date"`
	DueDate       *string   `json:"due_date"`
	Labels        *[]string `json:"labels"`
	SupervisorIDs *[]uint   `json:"supervisor_ids"`
}

func (h *ContractHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	contractID, err := uintParam(r, "contractID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	userID, err := uintParam(r, "userID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	var req updateMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	var patch roster.MemberPatch
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
		patch.Window = &window
	}
	if req.Labels != nil {
		labels := make([]models.Label, 0, len(*req.Labels))
		for _, raw := range *req.Labels {
			label, err := models.ParseLabel(raw)
			if err != nil {
				respondError(w, h.log, apperr.ValidationFailed("invalid label %q", raw))
				return
			}
			labels = append(labels, label)
		}
		patch.Labels = &labels
	}
	patch.SupervisorIDs = req.SupervisorIDs

	if err := h.roster.UpdateMember(r.Context(), user.ID, contractID, userID, patch); err != nil {
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Member updated"})
}

func (h *ContractHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	contractID, err := uintParam(r, "contractID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	userID, err := uintParam(r, "userID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	if err := h.roster.RemoveMember(r.Context(), user.ID, contractID, userID); err != nil {
		respondError(w, h.log, err)
		return
	}

	h.log.Info("member removed",
		zap.Uint("contract_id", contractID),
		zap.Uint("user_id", userID))
	respondJSON(w, http.StatusOK, map[string]string{"message": "Member removed"})
}

func (h *ContractHandler) Supervisors(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	contractID, err := uintParam(r, "contractID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	member, err := h.roster.IsMember(r.Context(), contractID, user.ID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	if !member {
		respondError(w, h.log, apperr.Forbidden("not a member of this contract"))
		return
	}

	supervisors, err := h.roster.ContractSupervisors(r.Context(), contractID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	out := make([]userResponse, 0, len(supervisors))
	for i := range supervisors {
		out = append(out, toUserResponse(&supervisors[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"supervisors": out})
}
