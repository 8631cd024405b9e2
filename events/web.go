package events

import (
	"net/http"

	"goji.io/pat"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/communities"
	"github.com/commune-gg/commune/web"
)

var _ web.Plugin = (*Plugin)(nil)

func (p *Plugin) InitWeb() {
	web.APIMux.HandleFunc(pat.Get("/me/events"), handleMyEvents)
	web.APIMux.HandleFunc(pat.Get("/me/events/upcoming"), handleUpcoming)

	web.CommunityMux.HandleFunc(pat.Get("/events"), handleList)
	web.CommunityMux.HandleFunc(pat.Get("/events/:event"), handleGet)
	web.CommunityMux.HandleFunc(pat.Post("/events"), handleCreate)
	web.CommunityMux.HandleFunc(pat.Put("/events/:event"), handleUpdate)
	web.CommunityMux.HandleFunc(pat.Post("/events/:event/cancel"), handleCancel)
	web.CommunityMux.HandleFunc(pat.Delete("/events/:event"), handleSoftDelete)
	web.CommunityMux.Handle(pat.Delete("/events/:event/purge"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleHardDelete)))
}

func handleMyEvents(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	if user == nil {
		web.WriteAPIError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	evs, err := ListCreatedBy(r.Context(), user.ID)
	if err != nil {
		logger.WithError(err).Error("Failed listing user events")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load events")
		return
	}

	web.WriteJSON(w, http.StatusOK, evs)
}

type upcomingQuery struct {
	Limit int `schema:"limit"`
}

func handleUpcoming(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	if user == nil {
		web.WriteAPIError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	var q upcomingQuery
	web.DecodeQuery(r, &q)

	evs, err := ListUpcoming(r.Context(), user.ID, q.Limit)
	if err != nil {
		logger.WithError(err).Error("Failed listing upcoming events")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load events")
		return
	}

	web.WriteJSON(w, http.StatusOK, evs)
}

func handleList(w http.ResponseWriter, r *http.Request) {
	evs, err := ListByCommunity(r.Context(), web.ContextCommunityID(r.Context()))
	if err != nil {
		logger.WithError(err).Error("Failed listing community events")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load events")
		return
	}

	web.WriteJSON(w, http.StatusOK, evs)
}

func handleGet(w http.ResponseWriter, r *http.Request) {
	ev := loadCommunityEvent(w, r)
	if ev == nil {
		return
	}

	web.WriteJSON(w, http.StatusOK, ev)
}

// loadCommunityEvent loads the event in the path, treating events that
// belong to another community as absent. Writes the error response itself
// when it returns nil.
func loadCommunityEvent(w http.ResponseWriter, r *http.Request) *Event {
	ev, err := Get(r.Context(), common.MustParseInt(pat.Param(r, "event")))
	if err != nil {
		if err == ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "event not found")
			return nil
		}

		logger.WithError(err).Error("Failed loading event")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load event")
		return nil
	}

	if ev.CommunityID != web.ContextCommunityID(r.Context()) {
		web.WriteAPIError(w, http.StatusNotFound, "event not found")
		return nil
	}

	return ev
}

// requireManage loads the manage permission for the acting user, writing the
// error response itself when not allowed.
func requireManage(w http.ResponseWriter, r *http.Request) bool {
	user := web.ContextUser(r.Context())
	communityID := web.ContextCommunityID(r.Context())

	ok, err := communities.CanManageEvents(r.Context(), communityID, user.ID)
	if err != nil {
		logger.WithError(err).Error("Failed checking event permissions")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to check permissions")
		return false
	}

	if !ok {
		web.WriteAPIError(w, http.StatusForbidden, "requires community admin")
		return false
	}

	return true
}

func handleCreate(w http.ResponseWriter, r *http.Request) {
	if !requireManage(w, r) {
		return
	}

	var form Form
	if err := web.ReadJSON(r, &form); err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ev, err := Create(r.Context(), web.ContextCommunityID(r.Context()), web.ContextUser(r.Context()).ID, &form)
	if err != nil {
		if isValidationErr(err) {
			web.WriteAPIError(w, http.StatusBadRequest, err.Error())
			return
		}

		logger.WithError(err).Error("Failed creating event")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to create event")
		return
	}

	web.WriteJSON(w, http.StatusCreated, ev)
}

func handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !requireManage(w, r) {
		return
	}

	existing := loadCommunityEvent(w, r)
	if existing == nil {
		return
	}

	var form Form
	if err := web.ReadJSON(r, &form); err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ev, err := Update(r.Context(), existing.ID, &form)
	if err != nil {
		if err == ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "event not found")
			return
		}
		if isValidationErr(err) {
			web.WriteAPIError(w, http.StatusBadRequest, err.Error())
			return
		}

		logger.WithError(err).Error("Failed updating event")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to update event")
		return
	}

	web.WriteJSON(w, http.StatusOK, ev)
}

func handleCancel(w http.ResponseWriter, r *http.Request) {
	if !requireManage(w, r) {
		return
	}

	ev := loadCommunityEvent(w, r)
	if ev == nil {
		return
	}

	eventID := ev.ID
	err := Cancel(r.Context(), eventID)
	if err != nil {
		if err == ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "event not found")
			return
		}

		logger.WithError(err).Error("Failed cancelling event")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to cancel event")
		return
	}

	common.AddAuditLogEntry(web.ContextUser(r.Context()).ID, web.ContextCommunityID(r.Context()), "cancelled event ", eventID)
	web.WriteJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	if !requireManage(w, r) {
		return
	}

	ev := loadCommunityEvent(w, r)
	if ev == nil {
		return
	}

	eventID := ev.ID
	err := SoftDelete(r.Context(), eventID)
	if err != nil {
		if err == ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "event not found")
			return
		}

		logger.WithError(err).Error("Failed deleting event")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to delete event")
		return
	}

	common.AddAuditLogEntry(web.ContextUser(r.Context()).ID, web.ContextCommunityID(r.Context()), "deleted event ", eventID)
	web.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func handleHardDelete(w http.ResponseWriter, r *http.Request) {
	ev := loadCommunityEvent(w, r)
	if ev == nil {
		return
	}

	eventID := ev.ID
	err := HardDelete(r.Context(), eventID)
	if err != nil {
		if err == ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "event not found")
			return
		}

		logger.WithError(err).Error("Failed purging event")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to delete event")
		return
	}

	common.AddAuditLogEntry(web.ContextUser(r.Context()).ID, web.ContextCommunityID(r.Context()), "purged event ", eventID)
	web.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func isValidationErr(err error) bool {
	switch err {
	case ErrTitleRequired, ErrBadRecurrence, ErrStartInPast, ErrEndBeforeStart:
		return true
	}

	return false
}
