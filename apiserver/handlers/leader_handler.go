package handlers

import (
	"net/http"

	"github.com/cloudfoundry/zkrecipes/leader"
	"github.com/cloudfoundry/zkrecipes/storeadapter"
)

type leaderHandler struct {
	*responder
	recipes *Recipes
}

func (h *leaderHandler) announcedLeader(w http.ResponseWriter, req *http.Request) {
	info, err := leader.AnnouncedLeader(h.recipes.Adapter, h.recipes.LeaderAnnouncePath)
	if storeadapter.IsKeyNotFoundError(err) {
		h.respond(w, http.StatusNotFound, response{"message": "no leader has announced itself"})
		return
	}
	if err != nil {
		h.failed(w, "announced-leader-failed", err)
		return
	}

	h.ok(w, response{"leader": info})
}

func (h *leaderHandler) latchStatus(w http.ResponseWriter, req *http.Request) {
	participants, err := h.recipes.Latch.Participants()
	if err != nil {
		h.failed(w, "latch-status-failed", err)
		return
	}

	leaderID := ""
	if len(participants) > 0 {
		leaderID = participants[0].ID
	}

	h.ok(w, response{
		"id":                h.recipes.Latch.ID(),
		"is_leader":         h.recipes.Latch.HasLeadership(),
		"current_leader_id": leaderID,
		"participants":      participants,
	})
}

func (h *leaderHandler) selectorStatus(w http.ResponseWriter, req *http.Request) {
	participants, err := h.recipes.Selector.Participants()
	if err != nil {
		h.failed(w, "selector-status-failed", err)
		return
	}

	h.ok(w, response{
		"participant_id": h.recipes.Selector.ParticipantID(),
		"has_leadership": h.recipes.Selector.HasLeadership(),
		"leader_count":   h.recipes.Selector.LeadershipCount(),
		"participants":   participants,
	})
}
