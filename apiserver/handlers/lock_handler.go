package handlers

import (
	"net/http"
	"sync"
	"time"

	"code.cloudfoundry.org/lager"
	"github.com/cloudfoundry/zkrecipes/locker"
)

const (
	defaultLockTimeoutInSeconds = 5
	criticalSectionTimeout      = 5 * time.Second
)

type lockHandler struct {
	*responder
	recipes *Recipes

	resourceLock sync.Mutex
	resources    map[string]string
}

func (h *lockHandler) acquire(w http.ResponseWriter, req *http.Request) {
	h.acquireMutex(w, req, h.recipes.Lock, "lock_acquired")
}

func (h *lockHandler) release(w http.ResponseWriter, req *http.Request) {
	h.releaseMutex(w, h.recipes.Lock, "lock_released")
}

func (h *lockHandler) acquireRead(w http.ResponseWriter, req *http.Request) {
	h.acquireMutex(w, req, h.recipes.ReadWriteLock.ReadLock(), "read_lock_acquired")
}

func (h *lockHandler) releaseRead(w http.ResponseWriter, req *http.Request) {
	h.releaseMutex(w, h.recipes.ReadWriteLock.ReadLock(), "read_lock_released")
}

func (h *lockHandler) acquireWrite(w http.ResponseWriter, req *http.Request) {
	h.acquireMutex(w, req, h.recipes.ReadWriteLock.WriteLock(), "write_lock_acquired")
}

func (h *lockHandler) releaseWrite(w http.ResponseWriter, req *http.Request) {
	h.releaseMutex(w, h.recipes.ReadWriteLock.WriteLock(), "write_lock_released")
}

func (h *lockHandler) acquireMutex(w http.ResponseWriter, req *http.Request, mutex *locker.Mutex, resultKey string) {
	timeout, err := timeoutParam(req, defaultLockTimeoutInSeconds)
	if err != nil {
		h.badRequest(w, err)
		return
	}

	acquired, err := mutex.Acquire(timeout)
	if err != nil {
		h.failed(w, "acquire-failed", err)
		return
	}

	h.ok(w, response{resultKey: acquired, "is_held": mutex.IsHeld()})
}

func (h *lockHandler) releaseMutex(w http.ResponseWriter, mutex *locker.Mutex, resultKey string) {
	if !mutex.IsHeld() {
		h.ok(w, response{resultKey: false, "message": "lock was not held by this process"})
		return
	}

	err := mutex.Release()
	if err != nil {
		h.failed(w, "release-failed", err)
		return
	}

	h.ok(w, response{resultKey: true, "is_held": mutex.IsHeld()})
}

func (h *lockHandler) status(w http.ResponseWriter, req *http.Request) {
	participants, err := h.recipes.Lock.Participants()
	if err != nil {
		h.failed(w, "lock-status-failed", err)
		return
	}

	body := response{
		"is_held":      h.recipes.Lock.IsHeld(),
		"participants": participants,
	}
	if token, held := h.recipes.Lock.Token(); held {
		body["token"] = token
	}
	h.ok(w, body)
}

func (h *lockHandler) criticalSection(w http.ResponseWriter, req *http.Request) {
	operation, err := stringParam(req, "operation")
	if err != nil {
		h.badRequest(w, err)
		return
	}

	ran, err := h.recipes.Lock.WithLock(criticalSectionTimeout, func() error {
		h.logger.Info("critical-section", lager.Data{"operation": operation})
		return nil
	})
	if err != nil {
		h.failed(w, "critical-section-failed", err)
		return
	}
	if !ran {
		h.ok(w, response{"status": "failed", "message": "could not acquire lock within timeout"})
		return
	}

	h.ok(w, response{"status": "success", "operation": operation})
}

func (h *lockHandler) readWriteStatus(w http.ResponseWriter, req *http.Request) {
	h.ok(w, response{
		"read_lock_held":  h.recipes.ReadWriteLock.ReadLock().IsHeld(),
		"write_lock_held": h.recipes.ReadWriteLock.WriteLock().IsHeld(),
	})
}

func (h *lockHandler) performRead(w http.ResponseWriter, req *http.Request) {
	resource, err := stringParam(req, "resource")
	if err != nil {
		h.badRequest(w, err)
		return
	}

	var data string
	ran, err := h.recipes.ReadWriteLock.PerformRead(criticalSectionTimeout, func() error {
		h.resourceLock.Lock()
		data = h.resources[resource]
		h.resourceLock.Unlock()
		return nil
	})
	if err != nil {
		h.failed(w, "perform-read-failed", err)
		return
	}
	if !ran {
		h.ok(w, response{"status": "failed", "message": "could not acquire read lock within timeout"})
		return
	}

	h.ok(w, response{"status": "success", "operation": "read", "resource": resource, "data": data})
}

func (h *lockHandler) performWrite(w http.ResponseWriter, req *http.Request) {
	resource, err := stringParam(req, "resource")
	if err != nil {
		h.badRequest(w, err)
		return
	}
	data := req.URL.Query().Get("data")

	ran, err := h.recipes.ReadWriteLock.PerformWrite(criticalSectionTimeout, func() error {
		h.resourceLock.Lock()
		h.resources[resource] = data
		h.resourceLock.Unlock()
		return nil
	})
	if err != nil {
		h.failed(w, "perform-write-failed", err)
		return
	}
	if !ran {
		h.ok(w, response{"status": "failed", "message": "could not acquire write lock within timeout"})
		return
	}

	h.ok(w, response{"status": "success", "operation": "write", "resource": resource, "data": data})
}
