package controllers

import (
	"net/http"
	"time"

	"github.com/rzbill/flocheck/internal/harness"
	"github.com/rzbill/flocheck/internal/runtime"
)

// sseTick is how often /v1/run/events samples the run status.
const sseTick = 250 * time.Millisecond

// RunController exposes the current run, the ledger and the dead letters.
type RunController struct {
	rt   *runtime.Runtime
	runs RunSource
}

func NewRunController(rt *runtime.Runtime, runs RunSource) *RunController {
	if runs == nil {
		runs = func() *harness.Handle { return nil }
	}
	return &RunController{rt: rt, runs: runs}
}

// RegisterRoutes registers:
// - run status and report (/v1/run, /v1/run/events)
// - ledger size (/v1/ledger)
// - embedded bus dead letters and counters (/v1/deadletters, /v1/bus)
func (c *RunController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/run", c.handleRun)
	mux.HandleFunc("GET /v1/run/events", c.handleRunEvents)
	mux.HandleFunc("GET /v1/ledger", c.handleLedger)
	mux.HandleFunc("GET /v1/deadletters", c.handleDeadLetters)
	mux.HandleFunc("GET /v1/bus", c.handleBusStats)
}

func snapshot(h *harness.Handle) runResp {
	st, res := h.Snapshot()
	return runResp{RunID: h.RunID(), Status: st.String(), Result: res}
}

func (c *RunController) handleRun(w http.ResponseWriter, r *http.Request) {
	h := c.runs()
	if h == nil {
		writeError(w, http.StatusNotFound, "No run")
		return
	}
	writeJSON(w, snapshot(h))
}

// handleRunEvents streams a status event whenever the run changes state and
// closes the stream once the run is terminal.
func (c *RunController) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	h := c.runs()
	if h == nil {
		writeError(w, http.StatusNotFound, "No run")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	sink := sseSink{w: w, r: r}

	tick := time.NewTicker(sseTick)
	defer tick.Stop()
	last := ""
	for {
		resp := snapshot(h)
		if resp.Status != last {
			last = resp.Status
			if err := sink.Send("status", resp); err != nil {
				return
			}
			_ = sink.Flush()
		}
		if resp.Result != nil {
			return
		}
		select {
		case <-sink.Context().Done():
			return
		case <-h.Done():
		case <-tick.C:
		}
	}
}

func (c *RunController) handleLedger(w http.ResponseWriter, r *http.Request) {
	l := c.rt.Ledger()
	n, err := l.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Ledger unavailable")
		return
	}
	resp := ledgerResp{Count: n}
	if parseBool(r.URL.Query().Get("ids")) {
		if resp.IDs, err = l.IDs(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Ledger unavailable")
			return
		}
	}
	writeJSON(w, resp)
}

func (c *RunController) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	b := c.rt.Embedded()
	if b == nil {
		writeError(w, http.StatusNotFound, "Dead letters are only kept by the embedded bus")
		return
	}
	cfg := c.rt.Config()
	evs, err := b.DeadLetters(cfg.PubsubName, cfg.Topic)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read dead letters")
		return
	}
	ids := make([]int, 0, len(evs))
	for _, e := range evs {
		ids = append(ids, e.ID)
	}
	if limit := parseLimit(r.URL.Query().Get("limit")); limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	writeJSON(w, deadLettersResp{Topic: cfg.Topic, IDs: ids})
}

func (c *RunController) handleBusStats(w http.ResponseWriter, r *http.Request) {
	b := c.rt.Embedded()
	if b == nil {
		writeError(w, http.StatusNotFound, "No embedded bus")
		return
	}
	writeJSON(w, b.Stats())
}
