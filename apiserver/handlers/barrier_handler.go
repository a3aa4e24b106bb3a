package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cloudfoundry/zkrecipes/barrier"
)

const (
	defaultBarrierWaitInSeconds   = 10
	defaultDoubleBarrierInSeconds = 30
)

var errNoDoubleBarrier = errors.New("double barrier not created yet")

type barrierHandler struct {
	*responder
	recipes *Recipes

	doubleLock sync.Mutex
	double     *barrier.DoubleBarrier
}

func (h *barrierHandler) set(w http.ResponseWriter, req *http.Request) {
	err := h.recipes.Barrier.Set()
	if err != nil {
		h.failed(w, "barrier-set-failed", err)
		return
	}
	h.ok(w, response{"status": "success", "message": "barrier has been set"})
}

func (h *barrierHandler) remove(w http.ResponseWriter, req *http.Request) {
	err := h.recipes.Barrier.Remove()
	if err != nil {
		h.failed(w, "barrier-remove-failed", err)
		return
	}
	h.ok(w, response{"status": "success", "message": "barrier has been removed"})
}

func (h *barrierHandler) wait(w http.ResponseWriter, req *http.Request) {
	timeout, err := timeoutParam(req, defaultBarrierWaitInSeconds)
	if err != nil {
		h.badRequest(w, err)
		return
	}

	start := h.clock.Now()
	cleared, err := h.recipes.Barrier.WaitOnBarrier(timeout)
	if err != nil {
		h.failed(w, "barrier-wait-failed", err)
		return
	}

	h.ok(w, response{"barrier_cleared": cleared, "wait_time_ms": millisecondsSince(h.clock, start)})
}

func (h *barrierHandler) createDouble(w http.ResponseWriter, req *http.Request) {
	memberQty, err := intParam(req, "memberQty", 32)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	if memberQty < 1 {
		h.badRequest(w, errors.New("memberQty must be at least 1"))
		return
	}

	h.doubleLock.Lock()
	h.double = h.recipes.NewDoubleBarrier(int(memberQty))
	h.doubleLock.Unlock()

	h.ok(w, response{"status": "success", "member_qty": memberQty})
}

func (h *barrierHandler) currentDouble() *barrier.DoubleBarrier {
	h.doubleLock.Lock()
	defer h.doubleLock.Unlock()
	return h.double
}

func (h *barrierHandler) enterDouble(w http.ResponseWriter, req *http.Request) {
	h.crossDouble(w, req, "entered", (*barrier.DoubleBarrier).Enter)
}

func (h *barrierHandler) leaveDouble(w http.ResponseWriter, req *http.Request) {
	h.crossDouble(w, req, "left", (*barrier.DoubleBarrier).Leave)
}

func (h *barrierHandler) crossDouble(w http.ResponseWriter, req *http.Request, resultKey string, cross func(*barrier.DoubleBarrier, time.Duration) (bool, error)) {
	double := h.currentDouble()
	if double == nil {
		h.respond(w, http.StatusConflict, response{"status": "error", "message": errNoDoubleBarrier.Error()})
		return
	}

	timeout, err := timeoutParam(req, defaultDoubleBarrierInSeconds)
	if err != nil {
		h.badRequest(w, err)
		return
	}

	start := h.clock.Now()
	crossed, err := cross(double, timeout)
	if err != nil {
		h.failed(w, "double-barrier-"+resultKey+"-failed", err)
		return
	}

	h.ok(w, response{resultKey: crossed, "wait_time_ms": millisecondsSince(h.clock, start)})
}
