package handlers

import (
	"net/http"

	"github.com/cloudfoundry/zkrecipes/counter"
)

type counterHandler struct {
	*responder
	recipes *Recipes
}

func (h *counterHandler) getShared(w http.ResponseWriter, req *http.Request) {
	value, err := h.recipes.SharedCount.GetCount()
	if err != nil {
		h.failed(w, "shared-count-get-failed", err)
		return
	}
	h.ok(w, response{"count": value.Value, "versioned_value": value})
}

func (h *counterHandler) setShared(w http.ResponseWriter, req *http.Request) {
	value, err := intParam(req, "value", 32)
	if err != nil {
		h.badRequest(w, err)
		return
	}

	err = h.recipes.SharedCount.SetCount(int32(value))
	if err != nil {
		h.failed(w, "shared-count-set-failed", err)
		return
	}
	h.ok(w, response{"status": "success", "new_count": value})
}

// incrementShared makes a single conditional attempt; a concurrent writer
// makes it fail rather than retry.
func (h *counterHandler) incrementShared(w http.ResponseWriter, req *http.Request) {
	previous, err := h.recipes.SharedCount.GetCount()
	if err != nil {
		h.failed(w, "shared-count-get-failed", err)
		return
	}

	succeeded, err := h.recipes.SharedCount.TrySetCount(previous, previous.Value+1)
	if err != nil {
		h.failed(w, "shared-count-increment-failed", err)
		return
	}

	newCount := previous.Value + 1
	if !succeeded {
		newCount = h.recipes.SharedCount.Count()
	}
	h.ok(w, response{"success": succeeded, "previous_count": previous.Value, "new_count": newCount})
}

func (h *counterHandler) getAtomic(w http.ResponseWriter, req *http.Request) {
	h.atomicResult(w, "atomic-counter-get-failed", nil)(h.recipes.AtomicCounter.Get())
}

func (h *counterHandler) incrementAtomic(w http.ResponseWriter, req *http.Request) {
	h.atomicResult(w, "atomic-counter-increment-failed", nil)(h.recipes.AtomicCounter.Increment())
}

func (h *counterHandler) decrementAtomic(w http.ResponseWriter, req *http.Request) {
	h.atomicResult(w, "atomic-counter-decrement-failed", nil)(h.recipes.AtomicCounter.Decrement())
}

func (h *counterHandler) addAtomic(w http.ResponseWriter, req *http.Request) {
	delta, err := intParam(req, "delta", 64)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.atomicResult(w, "atomic-counter-add-failed", response{"delta": delta})(h.recipes.AtomicCounter.Add(delta))
}

func (h *counterHandler) setAtomic(w http.ResponseWriter, req *http.Request) {
	value, err := intParam(req, "value", 64)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.atomicResult(w, "atomic-counter-set-failed", nil)(h.recipes.AtomicCounter.TrySet(value))
}

func (h *counterHandler) atomicResult(w http.ResponseWriter, action string, extra response) func(counter.AtomicValue, error) {
	return func(value counter.AtomicValue, err error) {
		if err != nil {
			h.failed(w, action, err)
			return
		}

		body := response{
			"succeeded":  value.Succeeded,
			"pre_value":  value.PreValue,
			"post_value": value.PostValue,
		}
		for key, v := range extra {
			body[key] = v
		}
		if !value.Succeeded {
			body["message"] = "operation did not take effect"
		}
		h.ok(w, body)
	}
}

func (h *counterHandler) events(w http.ResponseWriter, req *http.Request) {
	events := h.recipes.CounterEvents.Events()
	h.ok(w, response{"events": events, "count": len(events)})
}

func (h *counterHandler) clearEvents(w http.ResponseWriter, req *http.Request) {
	cleared := len(h.recipes.CounterEvents.Events())
	h.recipes.CounterEvents.Clear()
	h.ok(w, response{"status": "success", "cleared": cleared})
}
