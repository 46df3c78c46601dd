package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"contracthub/apperr"
	"contracthub/middleware"
	"contracthub/models"
	"contracthub/timesheets"
)

const maxUploadMemory = 16 << 20

type TaskHandler struct {
	log *zap.Logger
	ts  *timesheets.Service
}

func NewTaskHandler(log *zap.Logger, ts *timesheets.Service) *TaskHandler {
	return &TaskHandler{log: log, ts: ts}
}

// taskParamsFromForm reads task fields from a multipart form. The
// template file is optional; link and file can coexist.
func taskParamsFromForm(r *http.Request) (timesheets.TaskParams, *timesheets.Upload, error) {
	var p timesheets.TaskParams

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return p, nil, apperr.ValidationFailed("invalid multipart form")
	}

	p.Title = r.FormValue("title")
	p.Details = r.FormValue("details")
	p.TemplateLink = r.FormValue("template_link")

	role, err := models.ParseRole(r.FormValue("role"))
	if err != nil {
		return p, nil, apperr.ValidationFailed("invalid role %q", r.FormValue("role"))
	}
	p.Role = role

	start, err := time.Parse("2006-01-02", r.FormValue("start_date"))
	if err != nil {
		return p, nil, apperr.ValidationFailed("invalid start_date, want YYYY-MM-DD")
	}
	p.StartDate = start

	if p.DueDate, err = parseDate(r.FormValue("due_date")); err != nil {
		return p, nil, err
	}

	file, header, err := r.FormFile("template_file")
	if err == http.ErrMissingFile {
		return p, nil, nil
	}
	if err != nil {
		return p, nil, apperr.ValidationFailed("invalid template file")
	}
	return p, &timesheets.Upload{Reader: file, Name: header.Filename}, nil
}

type taskResponse struct {
	*models.TimesheetTask
	TemplateFileURL string `json:"template_file_url,omitempty"`
}

func (h *TaskHandler) toResponse(task *models.TimesheetTask) taskResponse {
	return taskResponse{TimesheetTask: task, TemplateFileURL: h.ts.TemplateURL(task)}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	contractID, err := uintParam(r, "contractID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	params, template, err := taskParamsFromForm(r)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	task, err := h.ts.CreateTask(r.Context(), user.ID, contractID, params, template)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	h.log.Info("task created",
		zap.Uint("task_id", task.ID),
		zap.Uint("contract_id", contractID))
	respondJSON(w, http.StatusCreated, h.toResponse(task))
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	taskID, err := uintParam(r, "taskID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	params, template, err := taskParamsFromForm(r)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	task, err := h.ts.UpdateTask(r.Context(), user.ID, taskID, params, template)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toResponse(task))
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	taskID, err := uintParam(r, "taskID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	task, err := h.ts.GetTask(r.Context(), user.ID, taskID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toResponse(task))
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	contractID, err := uintParam(r, "contractID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	tasks, err := h.ts.ListTasks(r.Context(), user.ID, contractID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, h.toResponse(&tasks[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	taskID, err := uintParam(r, "taskID")
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	if err := h.ts.DeleteTask(r.Context(), user.ID, taskID); err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Task deleted"})
}
