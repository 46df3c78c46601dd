package handlers

import (
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"contracthub/apperr"
	"contracthub/middleware"
	"contracthub/timesheets"
)

type DownloadHandler struct {
	log *zap.Logger
	ts  *timesheets.Service
}

func NewDownloadHandler(log *zap.Logger, ts *timesheets.Service) *DownloadHandler {
	return &DownloadHandler{log: log, ts: ts}
}

// File streams one submission's timesheet with a human-readable name.
func (h *DownloadHandler) File(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	submissionID, err := uintParam(r, "submissionID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	submission, err := h.ts.GetSubmission(r.Context(), user.ID, submissionID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	if submission.FilePath == "" {
		respondError(w, h.log, apperr.NotFound("submission has no file"))
		return
	}

	f, err := h.ts.OpenFile(r.Context(), submission)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", timesheets.DownloadName(submission)))
	if _, err := io.Copy(w, f); err != nil {
		h.log.Warn("download interrupted",
			zap.Uint("submission_id", submissionID), zap.Error(err))
	}
}

// Bundle streams a zip of every approved submission file for one task.
func (h *DownloadHandler) Bundle(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	taskID, err := uintParam(r, "taskID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("task_%d_approved_files.zip", taskID)))

	// BundleApproved buffers the archive and writes nothing until it is
	// complete, so error responses here are still clean JSON.
	count, err := h.ts.BundleApproved(r.Context(), user.ID, taskID, w)
	if err != nil {
		w.Header().Del("Content-Type")
		w.Header().Del("Content-Disposition")
		respondError(w, h.log, err)
		return
	}

	h.log.Info("approved bundle downloaded",
		zap.Uint("task_id", taskID), zap.Int("files", count))
}
