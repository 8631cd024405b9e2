package communities

import (
	"net/http"

	"goji.io/pat"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/web"
)

var _ web.Plugin = (*Plugin)(nil)

func (p *Plugin) InitWeb() {
	web.APIMux.HandleFunc(pat.Get("/communities"), handleSearch)
	web.APIMux.HandleFunc(pat.Post("/communities"), handleCreate)
	web.APIMux.HandleFunc(pat.Get("/me/communities"), handleListMine)

	web.CommunityMux.HandleFunc(pat.Get("/"), handleGet)
	web.CommunityMux.HandleFunc(pat.Post("/join"), handleJoin)
	web.CommunityMux.HandleFunc(pat.Post("/leave"), handleLeave)
	web.CommunityMux.Handle(pat.Post("/members/:user/role"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleSetRole)))
	web.CommunityMux.Handle(pat.Get("/audit_log"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleAuditLog)))
}

type searchQuery struct {
	Q     string `schema:"q"`
	Limit int    `schema:"limit"`
}

func handleSearch(w http.ResponseWriter, r *http.Request) {
	var q searchQuery
	if err := web.DecodeQuery(r, &q); err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid query")
		return
	}

	list, err := Search(r.Context(), q.Q, q.Limit)
	if err != nil {
		logger.WithError(err).Error("Failed searching communities")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load communities")
		return
	}

	ids := make([]int64, len(list))
	for i, c := range list {
		ids[i] = c.ID
	}

	counts, err := BatchMemberCounts(r.Context(), ids)
	if err != nil {
		logger.WithError(err).Error("Failed loading member counts")
	} else {
		for _, c := range list {
			c.MemberCount = counts[c.ID]
		}
	}

	web.WriteJSON(w, http.StatusOK, list)
}

type createBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

func handleCreate(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	if user == nil {
		web.WriteAPIError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	var body createBody
	if err := web.ReadJSON(r, &body); err != nil || body.Name == "" {
		web.WriteAPIError(w, http.StatusBadRequest, "name is required")
		return
	}

	c, err := Create(r.Context(), user.ID, body.Name, body.Description, body.ImageURL)
	if err != nil {
		logger.WithError(err).Error("Failed creating community")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to create community")
		return
	}

	web.WriteJSON(w, http.StatusCreated, c)
}

func handleListMine(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	if user == nil {
		web.WriteAPIError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	list, err := ListForUser(r.Context(), user.ID)
	if err != nil {
		logger.WithError(err).Error("Failed listing user communities")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load communities")
		return
	}

	web.WriteJSON(w, http.StatusOK, list)
}

func handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := Get(r.Context(), web.ContextCommunityID(r.Context()))
	if err != nil {
		if err == ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "community not found")
			return
		}

		logger.WithError(err).Error("Failed loading community")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load community")
		return
	}

	web.WriteJSON(w, http.StatusOK, c)
}

func handleJoin(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())

	err := Join(r.Context(), web.ContextCommunityID(r.Context()), user.ID)
	if err != nil {
		if err == ErrAlreadyMember {
			web.WriteAPIError(w, http.StatusConflict, "already a member")
			return
		}

		logger.WithError(err).Error("Failed joining community")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to join community")
		return
	}

	web.WriteJSON(w, http.StatusOK, map[string]bool{"joined": true})
}

func handleLeave(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())

	err := Leave(r.Context(), web.ContextCommunityID(r.Context()), user.ID)
	if err != nil {
		if err == ErrLastAdmin {
			web.WriteAPIError(w, http.StatusConflict, "cannot remove the last admin")
			return
		}

		logger.WithError(err).Error("Failed leaving community")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to leave community")
		return
	}

	web.WriteJSON(w, http.StatusOK, map[string]bool{"left": true})
}

type setRoleBody struct {
	Role string `json:"role"`
}

func handleSetRole(w http.ResponseWriter, r *http.Request) {
	admin := web.ContextUser(r.Context())
	communityID := web.ContextCommunityID(r.Context())
	targetID := common.MustParseInt(pat.Param(r, "user"))

	var body setRoleBody
	if err := web.ReadJSON(r, &body); err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid body")
		return
	}

	err := SetMemberRole(r.Context(), communityID, targetID, body.Role)
	if err != nil {
		if err == ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "member not found")
			return
		}

		logger.WithError(err).Error("Failed setting member role")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to update role")
		return
	}

	common.AddAuditLogEntry(admin.ID, communityID, "set role of ", targetID, " to ", body.Role)
	web.WriteJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func handleAuditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := common.GetAuditLogEntries(web.ContextCommunityID(r.Context()))
	if err != nil {
		logger.WithError(err).Error("Failed loading audit log")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load audit log")
		return
	}

	web.WriteJSON(w, http.StatusOK, entries)
}
