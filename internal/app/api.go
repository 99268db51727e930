// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"log"
	"net/http"
	"path"
	"time"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/motion_assessment/internal/connection"
	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/exercise"
	"github.com/relabs-tech/motion_assessment/internal/upload"
)

// connectTimeout bounds device selection plus connection of one slot.
const connectTimeout = 60 * time.Second

// Router exposes the capture service over HTTP.
func (c *Capture) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", c.handleHealth).Methods("GET")
	r.Handle("/metrics", c.Metrics.Handler()).Methods("GET")
	r.Handle("/ws/live", c.Live).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status.png", c.handleStatusPanel).Methods("GET")
	api.HandleFunc("/notices", c.handleNotices).Methods("GET")
	api.HandleFunc("/subject", c.handleGetSubject).Methods("GET")
	api.HandleFunc("/subject", c.handleSetSubject).Methods("PUT")

	api.HandleFunc("/slots", c.handleSlots).Methods("GET")
	api.HandleFunc("/slots/connect", c.handleConnectAll).Methods("POST")
	api.HandleFunc("/slots/{slot}/connect", c.handleConnect).Methods("POST")
	api.HandleFunc("/slots/{slot}/disconnect", c.handleDisconnect).Methods("POST")
	api.HandleFunc("/slots/{slot}/forget", c.handleForget).Methods("POST")

	api.HandleFunc("/exercises", c.handleExercises).Methods("GET")
	api.HandleFunc("/exercises/{id}/start", c.handleStart).Methods("POST")
	api.HandleFunc("/exercises/{id}/retry", c.handleRetry).Methods("POST")
	api.HandleFunc("/exercises/{id}/upload", c.handleUpload).Methods("POST")
	api.HandleFunc("/exercises/{id}/events", c.handleEvents).Methods("GET")
	api.HandleFunc("/exercises/{id}/files", c.handleFiles).Methods("GET")
	api.HandleFunc("/exercises/{id}/files/{name}", c.handleFile).Methods("GET")

	api.HandleFunc("/exercise", c.handleActive).Methods("GET")
	api.HandleFunc("/exercise/action", c.handleAction).Methods("POST")
	api.HandleFunc("/exercise/leg", c.handleLeg).Methods("POST")
	api.HandleFunc("/exercise/timer/{op}", c.handleTimer).Methods("POST")
	api.HandleFunc("/exercise/complete", c.handleComplete).Methods("POST")
	api.HandleFunc("/exercise/skip", c.handleSkip).Methods("POST")

	return r
}

func (c *Capture) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok", "liveClients": c.Live.Clients()}
	if err := c.Manager.Degraded(); err != nil {
		resp["status"] = "degraded"
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *Capture) handleStatusPanel(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, RenderStatusPanel(c.Panel())); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (c *Capture) handleNotices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.Notices())
}

func (c *Capture) handleGetSubject(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.Exercises.Subject())
}

func (c *Capture) handleSetSubject(w http.ResponseWriter, r *http.Request) {
	var s exercise.Subject
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c.Exercises.SetSubject(s)
	writeJSON(w, http.StatusOK, s)
}

// ---- slots ----

func (c *Capture) handleSlots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.Registry.Statuses())
}

func (c *Capture) handleConnect(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotVar(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), connectTimeout)
	defer cancel()
	if err := c.Manager.Connect(ctx, slot); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c.Registry.Status(slot))
}

func (c *Capture) handleConnectAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), connectTimeout)
	defer cancel()
	errs := c.Manager.ConnectAll(ctx)
	resp := struct {
		Slots  []device.Status          `json:"slots"`
		Errors map[device.SlotID]string `json:"errors,omitempty"`
	}{Slots: c.Registry.Statuses()}
	for slot, err := range errs {
		if err == nil {
			continue
		}
		if resp.Errors == nil {
			resp.Errors = make(map[device.SlotID]string)
		}
		resp.Errors[slot] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *Capture) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotVar(w, r)
	if !ok {
		return
	}
	if err := c.Manager.Disconnect(slot); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c.Registry.Status(slot))
}

func (c *Capture) handleForget(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotVar(w, r)
	if !ok {
		return
	}
	if err := c.Manager.Forget(slot); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c.Registry.Status(slot))
}

// ---- exercises ----

func (c *Capture) handleExercises(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.Exercises.Overview())
}

func (c *Capture) handleStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := c.Exercises.Start(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	c.exerciseChanged(id)
	c.handleActive(w, r)
}

func (c *Capture) handleActive(w http.ResponseWriter, _ *http.Request) {
	id := c.Exercises.Active()
	resp := map[string]any{"active": id}
	if id != "" {
		resp["elapsed"] = c.Exercises.Elapsed().Milliseconds()
		resp["samples"] = c.Aggregator.Len()
		resp["events"] = c.Exercises.Events(id)
	}
	writeJSON(w, http.StatusOK, resp)
}

type actionRequest struct {
	Action string `json:"action"`
	Leg    string `json:"leg"`
}

func (c *Capture) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	e, err := c.Exercises.RecordAction(req.Action, req.Leg)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	c.Live.Broadcast("event", e)
	writeJSON(w, http.StatusOK, e)
}

func (c *Capture) handleLeg(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	e, err := c.Exercises.SelectLeg(req.Leg)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	c.Live.Broadcast("event", e)
	writeJSON(w, http.StatusOK, e)
}

func (c *Capture) handleTimer(w http.ResponseWriter, r *http.Request) {
	var err error
	switch mux.Vars(r)["op"] {
	case "pause":
		err = c.Exercises.PauseTimer()
	case "resume":
		err = c.Exercises.ResumeTimer()
	case "reset":
		err = c.Exercises.ResetTimer()
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	c.handleActive(w, r)
}

func (c *Capture) handleComplete(w http.ResponseWriter, r *http.Request) {
	res, err := c.Exercises.Complete(r.Context())
	c.finished(w, res, err)
}

func (c *Capture) handleSkip(w http.ResponseWriter, r *http.Request) {
	res, err := c.Exercises.Skip(r.Context())
	c.finished(w, res, err)
}

// finished answers complete and skip. An upload failure still reports the
// result since the exercise is finished and its files can be re-sent.
func (c *Capture) finished(w http.ResponseWriter, res exercise.Result, err error) {
	if res.ExerciseID == "" {
		writeError(w, statusFor(err), err)
		return
	}
	c.exerciseChanged(res.ExerciseID)
	resp := struct {
		exercise.Result
		Files       []string `json:"files"`
		UploadError string   `json:"uploadError,omitempty"`
	}{Result: res}
	for _, f := range res.Files {
		resp.Files = append(resp.Files, f.Name)
	}
	if err != nil {
		log.Printf("capture: %s: %v", res.ExerciseID, err)
		resp.UploadError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type retryRequest struct {
	Confirm bool `json:"confirm"`
}

func (c *Capture) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.Exercises.Retry(id, req.Confirm); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	c.exerciseChanged(id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": c.Exercises.Status(id)})
}

func (c *Capture) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := c.Exercises.Upload(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "upload": "ok"})
}

func (c *Capture) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, _, ok := c.Exercises.Catalog().Lookup(id); !ok {
		writeError(w, http.StatusNotFound, exercise.ErrUnknownExercise)
		return
	}
	writeJSON(w, http.StatusOK, c.Exercises.Events(id))
}

func (c *Capture) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := c.Exercises.Files(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, path.Base(f.Name))
	}
	writeJSON(w, http.StatusOK, names)
}

func (c *Capture) handleFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	files, err := c.Exercises.Files(vars["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	for _, f := range files {
		if path.Base(f.Name) != vars["name"] {
			continue
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+vars["id"]+"_"+vars["name"]+`"`)
		w.Write(f.Content)
		return
	}
	http.NotFound(w, r)
}

func (c *Capture) exerciseChanged(id string) {
	for _, row := range c.Exercises.Overview() {
		if row.ID == id {
			c.Live.Broadcast("exercise", row)
			return
		}
	}
}

// ---- helpers ----

func slotVar(w http.ResponseWriter, r *http.Request) (device.SlotID, bool) {
	slot, err := device.ParseSlot(mux.Vars(r)["slot"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return "", false
	}
	return slot, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, exercise.ErrUnknownExercise):
		return http.StatusNotFound
	case errors.Is(err, exercise.ErrCategoryLocked),
		errors.Is(err, exercise.ErrExerciseActive),
		errors.Is(err, exercise.ErrAlreadyFinished),
		errors.Is(err, exercise.ErrNoActiveExercise),
		errors.Is(err, exercise.ErrNotCompleted),
		errors.Is(err, connection.ErrSelectionCancelled),
		errors.Is(err, connection.ErrConnectAborted):
		return http.StatusConflict
	case errors.Is(err, exercise.ErrConfirmationRequired),
		errors.Is(err, exercise.ErrUnknownAction),
		errors.Is(err, exercise.ErrInvalidLeg),
		errors.Is(err, upload.ErrNoSubject):
		return http.StatusBadRequest
	case errors.Is(err, connection.ErrTransportUnsupported):
		return http.StatusServiceUnavailable
	case errors.Is(err, upload.ErrBreakerOpen),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("capture: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
