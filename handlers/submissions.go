package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"contracthub/apperr"
	"contracthub/middleware"
	"contracthub/models"
	"contracthub/timesheets"
)

type SubmissionHandler struct {
	log *zap.Logger
	ts  *timesheets.Service
}

func NewSubmissionHandler(log *zap.Logger, ts *timesheets.Service) *SubmissionHandler {
	return &SubmissionHandler{log: log, ts: ts}
}

func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	taskID, err := uintParam(r, "taskID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, h.log, apperr.ValidationFailed("invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("timesheet")
	if err != nil {
		respondError(w, h.log, apperr.ValidationFailed("timesheet file is required"))
		return
	}
	defer file.Close()

	submission, err := h.ts.Submit(r.Context(), user.ID, taskID, timesheets.Upload{
		Reader: file,
		Name:   header.Filename,
	})
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	h.log.Info("timesheet submitted",
		zap.Uint("submission_id", submission.ID),
		zap.Uint("task_id", taskID),
		zap.Uint("submitter_id", user.ID))
	respondJSON(w, http.StatusCreated, submission)
}

// List returns the role-shaped listing for one task: owners see every
// submission with per-supervisor state, supervisors see only their
// supervisees, submitters see their own latest.
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	taskID, err := uintQuery(r, "task_id")
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	contractID, err := uintQuery(r, "contract_id")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	listing, err := h.ts.ListFor(r.Context(), user.ID, taskID, contractID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, listing)
}

func (h *SubmissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	submissionID, err := uintParam(r, "submissionID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	if err := h.ts.DeleteSubmission(r.Context(), user.ID, submissionID); err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Submission deleted"})
}

type decisionRequest struct {
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason"`
}

func (h *SubmissionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	submissionID, err := uintParam(r, "submissionID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	approval, err := h.ts.RecordDecision(r.Context(), user.ID, submissionID,
		models.ApprovalStatus(req.Status), req.RejectionReason)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	overall, err := h.ts.OverallStatus(r.Context(), submissionID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	h.log.Info("decision recorded",
		zap.Uint("submission_id", submissionID),
		zap.Uint("supervisor_id", user.ID),
		zap.String("status", string(approval.Status)))
	respondJSON(w, http.StatusOK, map[string]any{
		"approval":       approval,
		"overall_status": overall,
	})
}
