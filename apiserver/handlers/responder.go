package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
)

type response map[string]interface{}

type responder struct {
	logger lager.Logger
	clock  clock.Clock
}

func (r *responder) respond(w http.ResponseWriter, status int, body response) {
	body["timestamp"] = r.clock.Now()

	payload, err := json.Marshal(body)
	if err != nil {
		r.logger.Error("failed-to-marshal-response", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

func (r *responder) ok(w http.ResponseWriter, body response) {
	r.respond(w, http.StatusOK, body)
}

func (r *responder) badRequest(w http.ResponseWriter, err error) {
	r.respond(w, http.StatusBadRequest, response{"status": "error", "message": err.Error()})
}

func (r *responder) failed(w http.ResponseWriter, action string, err error) {
	r.logger.Error(action, err)
	r.respond(w, http.StatusInternalServerError, response{"status": "error", "message": err.Error()})
}

// timeoutParam reads the "timeout" query parameter in seconds.
func timeoutParam(req *http.Request, defaultSeconds int64) (time.Duration, error) {
	raw := req.URL.Query().Get("timeout")
	if raw == "" {
		return time.Duration(defaultSeconds) * time.Second, nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", raw)
	}
	return time.Duration(seconds) * time.Second, nil
}

func intParam(req *http.Request, name string, bitSize int) (int64, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing parameter %q", name)
	}
	value, err := strconv.ParseInt(raw, 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return value, nil
}

func stringParam(req *http.Request, name string) (string, error) {
	value := req.URL.Query().Get(name)
	if value == "" {
		return "", fmt.Errorf("missing parameter %q", name)
	}
	return value, nil
}

func millisecondsSince(clock clock.Clock, start time.Time) int64 {
	return int64(clock.Since(start) / time.Millisecond)
}

var recipeCatalogue = []map[string]string{
	{"name": "mutex", "description": "Exclusive lock; each waiter watches only its predecessor"},
	{"name": "read-write-lock", "description": "Shared readers, exclusive writers"},
	{"name": "leader-latch", "description": "Long-lived leadership held for as long as the participant runs"},
	{"name": "leader-selector", "description": "Leadership revoked when the action returns or the session is lost"},
	{"name": "barrier", "description": "Blocks waiters while a node exists"},
	{"name": "double-barrier", "description": "Enter once N members arrive, leave once all have departed"},
	{"name": "shared-count", "description": "Versioned int32 with change notifications"},
	{"name": "atomic-counter", "description": "int64 updated by compare-and-set, optionally promoted to a lock"},
	{"name": "queue", "description": "Sequential persistent items, each consumed exactly once"},
}

func (r *responder) catalogue(w http.ResponseWriter, req *http.Request) {
	r.ok(w, response{"recipes": recipeCatalogue, "count": len(recipeCatalogue)})
}
