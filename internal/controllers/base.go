package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/drstein77/priceallocator/internal/adapter"
	"github.com/drstein77/priceallocator/internal/middleware"
	"github.com/drstein77/priceallocator/internal/models"
	"github.com/drstein77/priceallocator/internal/reallocator"
	"github.com/drstein77/priceallocator/internal/storage"
	"github.com/go-chi/chi"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Storage interface for reallocation runs
type Storage interface {
	Reallocate(context.Context, []models.LineItem) (models.Run, error)
	GetRuns(context.Context) ([]models.Run, error)
	GetRun(context.Context, string) (models.Run, error)
	Ping(context.Context) bool
	Limits() models.Limits
}

// Log interface for logging
type Log interface {
	Info(string, ...zapcore.Field)
	Error(string, ...zapcore.Field)
}

// BaseController struct for handling requests
type BaseController struct {
	storage Storage
	log     Log
}

// NewBaseController creates a new BaseController instance
func NewBaseController(storage Storage, log Log) *BaseController {
	return &BaseController{
		storage: storage,
		log:     log,
	}
}

// Route sets up the routes for the BaseController
func (h *BaseController) Route() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/ping", h.ping)
	r.Post("/api/v0/reallocations", h.postReallocation)

	r.Group(func(r chi.Router) {
		r.Use(middleware.ArchiveTypeMiddleware)
		r.Post("/api/v0/reallocations/csv", h.postReallocationCSV)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.CompressResponseMiddleware("reallocations.json"))
		r.Get("/api/v0/reallocations", h.getRuns)
		r.Get("/api/v0/reallocations/{id}", h.getRun)
	})

	return r
}

func (h *BaseController) postReallocation(w http.ResponseWriter, r *http.Request) {
	var req models.ReallocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	run, err := h.storage.Reallocate(r.Context(), req.Items)
	if err != nil {
		h.writeError(w, run.ID, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ReallocationResponse{RunID: run.ID, Result: run.Result})
}

func (h *BaseController) postReallocationCSV(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	sheet, err := adapter.ReadCSV(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	sheet.Currency = r.URL.Query().Get("currency")
	textReport := r.URL.Query().Get("report") == "text"

	rec := &recorder{storage: h.storage}
	_, err = adapter.Run(r.Context(), sheet, rec)
	if rec.run.ID != "" {
		w.Header().Set("X-Run-ID", rec.run.ID)
	}

	if err != nil {
		if rec.run.ID == "" {
			// the sheet could not be read
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		if textReport {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(statusFor(err))
			fmt.Fprint(w, sheet.Report())
			return
		}
		h.writeError(w, rec.run.ID, err)
		return
	}

	if textReport {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, sheet.Report())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	if err := sheet.Encode(w); err != nil {
		h.log.Error("Failed to encode csv response", zap.Error(err))
	}
}

func (h *BaseController) getRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.storage.GetRuns(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("failed to retrieve runs: %v", err)})
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}

	writeJSON(w, http.StatusOK, runs)
}

func (h *BaseController) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.storage.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "run not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *BaseController) ping(w http.ResponseWriter, r *http.Request) {
	if !h.storage.Ping(r.Context()) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *BaseController) writeError(w http.ResponseWriter, runID string, err error) {
	resp := models.ErrorResponse{Error: err.Error()}

	var ie *reallocator.InfeasibleError
	if errors.As(err, &ie) {
		perUnit := ie.PricePerUnit.Round(2)
		limit := ie.Limit
		resp.PricePerUnit = &perUnit
		resp.Limit = &limit
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Reallocation failed", zap.String("run_id", runID), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// statusFor maps reallocation errors: input errors are the client's,
// infeasible limits are unprocessable, anything else (non-convergence
// included) is ours.
func statusFor(err error) int {
	switch {
	case reallocator.IsInputError(err):
		return http.StatusBadRequest
	case reallocator.IsInfeasible(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// recorder lets adapter.Run go through the storage while keeping the
// recorded run for the response.
type recorder struct {
	storage Storage
	run     models.Run
}

func (r *recorder) Reallocate(ctx context.Context, items []models.LineItem) (*models.Result, error) {
	run, err := r.storage.Reallocate(ctx, items)
	r.run = run
	return run.Result, err
}

func (r *recorder) Limits() models.Limits {
	return r.storage.Limits()
}
