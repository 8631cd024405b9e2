package rsvp

import (
	"net/http"

	"goji.io/pat"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/events"
	"github.com/commune-gg/commune/web"
)

var _ web.Plugin = (*Plugin)(nil)

func (p *Plugin) InitWeb() {
	web.CommunityMux.HandleFunc(pat.Get("/events/:event/rsvps"), handleCounts)
	web.CommunityMux.HandleFunc(pat.Get("/events/:event/rsvps/me"), handleGetMine)
	web.CommunityMux.HandleFunc(pat.Post("/events/:event/rsvps"), handleSubmit)
}

// communityEventID resolves the event in the path, treating events of other
// communities as absent. Writes the error response itself on failure.
func communityEventID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	ev, err := events.Get(r.Context(), common.MustParseInt(pat.Param(r, "event")))
	if err != nil {
		if err == events.ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "event not found")
			return 0, false
		}

		logger.WithError(err).Error("Failed loading event")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load event")
		return 0, false
	}

	if ev.CommunityID != web.ContextCommunityID(r.Context()) {
		web.WriteAPIError(w, http.StatusNotFound, "event not found")
		return 0, false
	}

	return ev.ID, true
}

func handleCounts(w http.ResponseWriter, r *http.Request) {
	eventID, ok := communityEventID(w, r)
	if !ok {
		return
	}

	counts, err := GetCounts(r.Context(), eventID)
	if err != nil {
		logger.WithError(err).Error("Failed loading rsvp counts")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load RSVPs")
		return
	}

	web.WriteJSON(w, http.StatusOK, counts)
}

func handleGetMine(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())

	eventID, ok := communityEventID(w, r)
	if !ok {
		return
	}

	m, err := Get(r.Context(), eventID, user.ID)
	if err != nil {
		logger.WithError(err).Error("Failed loading rsvp")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load RSVP")
		return
	}

	if m == nil {
		web.WriteAPIError(w, http.StatusNotFound, "no RSVP yet")
		return
	}

	web.WriteJSON(w, http.StatusOK, m)
}

type submitBody struct {
	Status string `json:"status"`
}

type submitResponse struct {
	RSVP   *RSVP   `json:"rsvp"`
	Counts *Counts `json:"counts"`
}

func handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())

	eventID, ok := communityEventID(w, r)
	if !ok {
		return
	}

	var body submitBody
	if err := web.ReadJSON(r, &body); err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid body")
		return
	}

	m, counts, err := Submit(r.Context(), eventID, user.ID, body.Status)
	if err != nil {
		switch err {
		case ErrInvalidStatus:
			web.WriteAPIError(w, http.StatusBadRequest, "invalid rsvp status")
		case ErrEventPassed:
			web.WriteAPIError(w, http.StatusConflict, "event has passed")
		case ErrCapacityReached:
			web.WriteAPIError(w, http.StatusConflict, "capacity reached")
		case events.ErrNotFound:
			web.WriteAPIError(w, http.StatusNotFound, "event not found")
		default:
			logger.WithError(err).Error("Failed submitting rsvp")
			web.WriteAPIError(w, http.StatusInternalServerError, "Failed to update RSVP")
		}
		return
	}

	web.WriteJSON(w, http.StatusOK, &submitResponse{RSVP: m, Counts: counts})
}
