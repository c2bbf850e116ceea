package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/menusync/internal/core"
)

const (
	// multipartMemory is how much of a form ParseMultipartForm keeps in
	// memory before spilling file parts to disk.
	multipartMemory = 8 << 20

	// multipartOverhead is the allowance for boundaries and part headers on
	// top of the file size cap.
	multipartOverhead = 1 << 20
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":            "ok",
		"scheduler_running": s.service.Status().Running,
	})
}

// handleSupportedFormats lists the accepted file formats and columns.
func (s *Server) handleSupportedFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, core.DescribeCapabilities())
}

// handleUpload syncs an uploaded catalog file and waits for the result.
// A job still running after the wait timeout answers 202 with its job id.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, core.InputError("read upload", core.ErrFileTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errInvalidForm, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if _, err := core.FormatFromFilename(header.Filename); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if header.Size > maxSize {
		s.respondError(w, r, core.InputError("read upload", core.ErrFileTooLarge), http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusInternalServerError)
		return
	}

	result := s.service.UploadAndSync(r.Context(), tenantID, data, header.Filename)
	writeJSON(w, r, resultStatus(result), result)
}

// fileScheduleRequest is the body of POST /sync/schedule/file.
type fileScheduleRequest struct {
	TenantID     int64  `json:"restaurant_id"`
	FilePath     string `json:"file_path"`
	ScheduleTime string `json:"schedule_time"`
	ScheduleType string `json:"schedule_type"`
}

// sheetsScheduleRequest is the body of POST /sync/schedule/sheets.
type sheetsScheduleRequest struct {
	TenantID      int64  `json:"restaurant_id"`
	SpreadsheetID string `json:"spreadsheet_id"`
	RangeName     string `json:"range_name"`
	ScheduleTime  string `json:"schedule_time"`
	ScheduleType  string `json:"schedule_type"`
}

// scheduleView is a definition as returned by the API, with its next fire
// and whether a run of the slot is in flight. The source is also echoed in
// the field names of the request that created it.
type scheduleView struct {
	core.ScheduleDefinition
	FilePath      string     `json:"file_path,omitempty"`
	SpreadsheetID string     `json:"spreadsheet_id,omitempty"`
	RangeName     string     `json:"range_name,omitempty"`
	NextRun       *time.Time `json:"next_run,omitempty"`
	Running       bool       `json:"running"`
}

type scheduleResponse struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Schedule *scheduleView `json:"schedule,omitempty"`
}

// handleScheduleFile creates or replaces the file schedule of a restaurant.
func (s *Server) handleScheduleFile(w http.ResponseWriter, r *http.Request) {
	var req fileScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	s.createSchedule(w, r, core.ScheduleDefinition{
		TenantID:     req.TenantID,
		SyncType:     core.SyncTypeFile,
		ScheduleType: scheduleTypeOrDefault(req.ScheduleType),
		ScheduleTime: req.ScheduleTime,
		Source:       req.FilePath,
	})
}

// handleScheduleSheets creates or replaces the spreadsheet schedule of a
// restaurant. Runs fail as not implemented until the channel exists.
func (s *Server) handleScheduleSheets(w http.ResponseWriter, r *http.Request) {
	var req sheetsScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	src := req.SpreadsheetID
	if req.RangeName != "" && src != "" {
		src += "!" + req.RangeName
	}
	s.createSchedule(w, r, core.ScheduleDefinition{
		TenantID:     req.TenantID,
		SyncType:     core.SyncTypeSheets,
		ScheduleType: scheduleTypeOrDefault(req.ScheduleType),
		ScheduleTime: req.ScheduleTime,
		Source:       src,
	})
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request, def core.ScheduleDefinition) {
	saved, err := s.service.CreateSchedule(r.Context(), def)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	view := s.view(saved)
	writeJSON(w, r, http.StatusOK, scheduleResponse{
		Success:  true,
		Message:  fmt.Sprintf("%s sync scheduled for restaurant %d: %s", saved.SyncType, saved.TenantID, describeSchedule(saved)),
		Schedule: &view,
	})
}

// handleListSchedules returns a restaurant's schedules keyed by sync type.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	defs, err := s.service.ListSchedules(r.Context(), tenantID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	schedules := make(map[string]scheduleView, len(defs))
	for _, def := range defs {
		schedules[string(def.SyncType)] = s.view(def)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"restaurant_id": tenantID,
		"schedules":     schedules,
	})
}

// handleListAllSchedules returns every schedule keyed by slot.
func (s *Server) handleListAllSchedules(w http.ResponseWriter, r *http.Request) {
	defs, err := s.service.ListAllSchedules(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	schedules := make(map[string]scheduleView, len(defs))
	for _, def := range defs {
		schedules[def.Slot().String()] = s.view(def)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"schedules": schedules,
		"total":     len(schedules),
	})
}

// handleRemoveSchedule deletes one channel's schedule, or all of them.
// Removing nothing is still a success.
func (s *Server) handleRemoveSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	syncType, err := syncTypeParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	removed, err := s.service.RemoveSchedule(r.Context(), tenantID, syncType)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	msg := fmt.Sprintf("Removed %d schedule(s) for restaurant %d", removed, tenantID)
	if removed == 0 {
		msg = fmt.Sprintf("No schedules to remove for restaurant %d", tenantID)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
		"removed": removed,
	})
}

// handleSyncNow runs a restaurant's scheduled syncs immediately.
func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	syncType, err := syncTypeParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	result := s.service.TriggerNow(r.Context(), tenantID, syncType)
	writeJSON(w, r, resultStatus(result), result)
}

// handleJob returns the current result of a job.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.JobResult(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleStatus reports scheduler and worker pool state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.Status())
}

func (s *Server) view(def core.ScheduleDefinition) scheduleView {
	v := scheduleView{
		ScheduleDefinition: def,
		Running:            s.service.Running(def.Slot()),
	}
	switch def.SyncType {
	case core.SyncTypeFile:
		v.FilePath = def.Source
	case core.SyncTypeSheets:
		v.SpreadsheetID, v.RangeName, _ = strings.Cut(def.Source, "!")
	}
	if next, ok := s.service.NextRun(def.Slot()); ok {
		v.NextRun = &next
	}
	return v
}

// resultStatus is 202 for jobs still running and 200 otherwise; a failed
// sync is reported in the body.
func resultStatus(result core.SyncResult) int {
	if result.Status == core.StatusRunning {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func tenantParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "tenantID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidTenant, raw)
	}
	return id, nil
}

// syncTypeParam reads ?sync_type, defaulting to all.
func syncTypeParam(r *http.Request) (core.SyncType, error) {
	t := core.SyncType(r.URL.Query().Get("sync_type"))
	switch {
	case t == "":
		return core.SyncTypeAll, nil
	case t == core.SyncTypeAll, t.Valid():
		return t, nil
	default:
		return "", errInvalidSyncTy
	}
}

func scheduleTypeOrDefault(t string) core.ScheduleType {
	if t == "" {
		return core.ScheduleDaily
	}
	return core.ScheduleType(t)
}

func describeSchedule(def core.ScheduleDefinition) string {
	if def.ScheduleType == core.ScheduleHourly {
		return "hourly"
	}
	return "daily at " + def.ScheduleTime
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}
