package handlers

import "net/http"

type queueHandler struct {
	*responder
	recipes *Recipes
}

func (h *queueHandler) put(w http.ResponseWriter, req *http.Request) {
	message, err := stringParam(req, "message")
	if err != nil {
		h.badRequest(w, err)
		return
	}

	item, err := h.recipes.Queue.Put([]byte(message))
	if err != nil {
		h.failed(w, "queue-put-failed", err)
		return
	}
	h.ok(w, response{"status": "success", "item": item})
}

func (h *queueHandler) messages(w http.ResponseWriter, req *http.Request) {
	messages := h.recipes.ConsumedMessages.Messages()
	h.ok(w, response{"consumed_messages": messages, "count": len(messages)})
}

func (h *queueHandler) clear(w http.ResponseWriter, req *http.Request) {
	cleared := len(h.recipes.ConsumedMessages.Messages())
	h.recipes.ConsumedMessages.Clear()
	h.ok(w, response{"status": "success", "cleared": cleared})
}
