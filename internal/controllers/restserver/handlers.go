package restserver

import (
	"encoding/json"
	"net/http"

	"github.com/chrissnell/paddymap/internal/pipeline"
	"github.com/chrissnell/paddymap/internal/runs"
	"github.com/chrissnell/paddymap/pkg/responseformat"
	"github.com/gorilla/mux"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteResponse(w, req, status, data); err != nil {
		h.controller.logger.Errorf("error encoding response: %v", err)
	}
}

func (h *Handlers) fail(w http.ResponseWriter, req *http.Request, status int, msg string) {
	if err := h.formatter.WriteError(w, req, status, msg); err != nil {
		h.controller.logger.Errorf("error encoding error response: %v", err)
	}
}

// Health reports liveness and the number of known runs.
func (h *Handlers) Health(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, HealthResponse{
		Status: "ok",
		Runs:   len(h.controller.opts.Registry.List()),
	})
}

// ListAOIs lists the configured areas of interest.
func (h *Handlers) ListAOIs(w http.ResponseWriter, req *http.Request) {
	aois := h.controller.opts.AOIs
	if aois == nil {
		aois = []string{}
	}
	h.write(w, req, http.StatusOK, aois)
}

// SubmitRun validates a run request, queues it and answers 202 with its
// status.
func (h *Handlers) SubmitRun(w http.ResponseWriter, req *http.Request) {
	var body RunRequest
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.fail(w, req, http.StatusBadRequest, "malformed run request: "+err.Error())
		return
	}

	pr, err := body.toPipeline()
	if err != nil {
		h.fail(w, req, http.StatusBadRequest, err.Error())
		return
	}
	if !h.knownAOI(pr.AOI) {
		h.fail(w, req, http.StatusNotFound, "unknown AOI "+pr.AOI)
		return
	}

	reg := h.controller.opts.Registry
	id := reg.Submit(pr.AOI, string(pr.Variant))
	h.controller.execute(id, pr)

	status, _ := reg.Get(id)
	w.Header().Set("Location", "/api/v1/runs/"+id)
	h.write(w, req, http.StatusAccepted, RunResponse{Status: status})
}

func (h *Handlers) knownAOI(name string) bool {
	for _, a := range h.controller.opts.AOIs {
		if a == name {
			return true
		}
	}
	return false
}

// ListRuns lists every run, oldest first.
func (h *Handlers) ListRuns(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, h.controller.opts.Registry.List())
}

// GetRun returns the status of a run and its result once it has succeeded.
func (h *Handlers) GetRun(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	status, ok := h.controller.opts.Registry.Get(id)
	if !ok {
		h.fail(w, req, http.StatusNotFound, runs.ErrUnknownRun.Error())
		return
	}
	res, _ := h.controller.result(id)
	h.write(w, req, http.StatusOK, RunResponse{Status: status, Result: res})
}

// finished resolves the result of a succeeded run, answering the request
// itself when there is none.
func (h *Handlers) finished(w http.ResponseWriter, req *http.Request) (*pipeline.Result, bool) {
	id := mux.Vars(req)["id"]
	status, ok := h.controller.opts.Registry.Get(id)
	if !ok {
		h.fail(w, req, http.StatusNotFound, runs.ErrUnknownRun.Error())
		return nil, false
	}
	res, ok := h.controller.result(id)
	switch {
	case ok:
	case status.State == runs.StatusSucceeded:
		h.fail(w, req, http.StatusGone, "result of run "+id+" is no longer held; submit the run again")
		return nil, false
	default:
		h.fail(w, req, http.StatusConflict, "run is "+status.State)
		return nil, false
	}
	return res, true
}

// GetStats returns the seasonally ordered area statistics of a run.
func (h *Handlers) GetStats(w http.ResponseWriter, req *http.Request) {
	res, ok := h.finished(w, req)
	if !ok {
		return
	}
	h.write(w, req, http.StatusOK, StatsResponse{
		NoClassifiedPixels: res.NoClassifiedPixels,
		SeasonalStatistics: res.SeasonalStatistics(),
	})
}

// ListLayers names the rasters a finished run exposes.
func (h *Handlers) ListLayers(w http.ResponseWriter, req *http.Request) {
	if _, ok := h.finished(w, req); !ok {
		return
	}
	h.write(w, req, http.StatusOK, pipeline.LayerNames())
}

// GetLayer returns one output raster of a run.
func (h *Handlers) GetLayer(w http.ResponseWriter, req *http.Request) {
	res, ok := h.finished(w, req)
	if !ok {
		return
	}
	layer, err := res.Layer(mux.Vars(req)["layer"])
	if err != nil {
		h.fail(w, req, http.StatusNotFound, err.Error())
		return
	}
	h.write(w, req, http.StatusOK, layer)
}
