package moderation

import (
	"context"
	"net/http"

	"goji.io/pat"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/web"
)

var _ web.Plugin = (*Plugin)(nil)

func (p *Plugin) InitWeb() {
	web.CommunityMux.HandleFunc(pat.Post("/flags"), handleFlag)
	web.CommunityMux.Handle(pat.Get("/flags"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleList)))
	web.CommunityMux.Handle(pat.Post("/flags/:flag/resolve"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleResolve)))
	web.CommunityMux.Handle(pat.Post("/flags/:flag/reject"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleReject)))
}

type flagForm struct {
	TargetKind string `json:"target_kind"`
	TargetID   int64  `json:"target_id"`
	Reason     string `json:"reason"`
}

func handleFlag(w http.ResponseWriter, r *http.Request) {
	if web.ContextMemberRole(r.Context()) == "" {
		web.WriteAPIError(w, http.StatusForbidden, "requires community membership")
		return
	}

	var form flagForm
	if err := web.ReadJSON(r, &form); err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid body")
		return
	}

	flag, err := FlagContent(r.Context(), web.ContextCommunityID(r.Context()), web.ContextUser(r.Context()).ID,
		form.TargetKind, form.TargetID, form.Reason)
	if err != nil {
		switch err {
		case ErrBadTargetKind, ErrReasonRequired:
			web.WriteAPIError(w, http.StatusBadRequest, err.Error())
			return
		}

		logger.WithError(err).Error("Failed creating flag")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to report content")
		return
	}

	web.WriteJSON(w, http.StatusCreated, flag)
}

type listFlagsQuery struct {
	All   bool `schema:"all"`
	Limit int  `schema:"limit"`
}

func handleList(w http.ResponseWriter, r *http.Request) {
	var q listFlagsQuery
	web.DecodeQuery(r, &q)

	communityID := web.ContextCommunityID(r.Context())

	var result []*Flag
	var err error
	if q.All {
		result, err = ListRecent(r.Context(), communityID, q.Limit)
	} else {
		result, err = ListOpen(r.Context(), communityID)
	}
	if err != nil {
		logger.WithError(err).Error("Failed listing flags")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load flags")
		return
	}

	web.WriteJSON(w, http.StatusOK, result)
}

func handleResolve(w http.ResponseWriter, r *http.Request) {
	handleClose(w, r, Resolve, "resolved flag ")
}

func handleReject(w http.ResponseWriter, r *http.Request) {
	handleClose(w, r, Reject, "rejected flag ")
}

func handleClose(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, flagID, adminID int64) (*Flag, error), auditVerb string) {
	admin := web.ContextUser(r.Context())
	communityID := web.ContextCommunityID(r.Context())
	flagID := common.MustParseInt(pat.Param(r, "flag"))

	flag, err := Get(r.Context(), flagID)
	if err == nil && flag.CommunityID != communityID {
		web.WriteAPIError(w, http.StatusNotFound, "flag not found")
		return
	}

	if err == nil {
		flag, err = fn(r.Context(), flagID, admin.ID)
	}
	if err != nil {
		switch err {
		case ErrNotFound:
			web.WriteAPIError(w, http.StatusNotFound, "flag not found")
			return
		case ErrAlreadyClosed:
			web.WriteAPIError(w, http.StatusConflict, "flag already handled")
			return
		}

		logger.WithError(err).Error("Failed closing flag")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to update flag")
		return
	}

	common.AddAuditLogEntry(admin.ID, communityID, auditVerb, flagID)
	web.WriteJSON(w, http.StatusOK, flag)
}
