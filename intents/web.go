package intents

import (
	"net/http"

	"goji.io/pat"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/events"
	"github.com/commune-gg/commune/web"
)

var _ web.Plugin = (*Plugin)(nil)

func (p *Plugin) InitWeb() {
	web.CommunityMux.Handle(pat.Get("/intents"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleListUnread)))
	web.CommunityMux.Handle(pat.Post("/intents/:intent/convert"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleConvert)))
	web.CommunityMux.Handle(pat.Post("/intents/:intent/dismiss"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleDismiss)))
}

func handleListUnread(w http.ResponseWriter, r *http.Request) {
	result, err := ListUnread(r.Context(), web.ContextCommunityID(r.Context()))
	if err != nil {
		logger.WithError(err).Error("Failed listing intents")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load notifications")
		return
	}

	web.WriteJSON(w, http.StatusOK, result)
}

// loadIntent fetches the path intent and checks it belongs to the current
// community, writing the error response itself on failure.
func loadIntent(w http.ResponseWriter, r *http.Request) *Intent {
	intent, err := Get(r.Context(), common.MustParseInt(pat.Param(r, "intent")))
	if err != nil {
		if err == ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "intent not found")
			return nil
		}

		logger.WithError(err).Error("Failed loading intent")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load notification")
		return nil
	}

	if intent.CommunityID != web.ContextCommunityID(r.Context()) {
		web.WriteAPIError(w, http.StatusNotFound, "intent not found")
		return nil
	}

	return intent
}

func handleConvert(w http.ResponseWriter, r *http.Request) {
	intent := loadIntent(w, r)
	if intent == nil {
		return
	}

	if intent.Read {
		web.WriteAPIError(w, http.StatusConflict, "intent already handled")
		return
	}

	ev, err := CreateEventFromIntent(r.Context(), intent, web.ContextUser(r.Context()).ID)
	if err != nil {
		switch err {
		case ErrUnknownIntent, ErrBadDetails:
			web.WriteAPIError(w, http.StatusBadRequest, err.Error())
			return
		case events.ErrTitleRequired, events.ErrStartInPast, events.ErrEndBeforeStart, events.ErrBadRecurrence:
			web.WriteAPIError(w, http.StatusBadRequest, err.Error())
			return
		}

		logger.WithError(err).Error("Failed converting intent")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to create event")
		return
	}

	web.WriteJSON(w, http.StatusCreated, ev)
}

func handleDismiss(w http.ResponseWriter, r *http.Request) {
	intent := loadIntent(w, r)
	if intent == nil {
		return
	}

	err := Dismiss(r.Context(), intent)
	if err != nil {
		if err == ErrAlreadyRead {
			web.WriteAPIError(w, http.StatusConflict, "intent already handled")
			return
		}

		logger.WithError(err).Error("Failed dismissing intent")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to update notification")
		return
	}

	common.AddAuditLogEntry(web.ContextUser(r.Context()).ID, intent.CommunityID, "dismissed intent ", intent.ID)
	web.WriteJSON(w, http.StatusOK, map[string]bool{"dismissed": true})
}
