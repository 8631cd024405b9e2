package stats

import (
	"net/http"
	"strings"

	"goji.io/pat"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/config"
	"github.com/commune-gg/commune/web"
)

var confPlatformAdmins = config.RegisterOption("commune.platform_admins", "Comma separated user ids with platform wide admin access", "")

var _ web.Plugin = (*Plugin)(nil)

func (p *Plugin) InitWeb() {
	web.CommunityMux.Handle(pat.Get("/stats/overview"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleOverview)))
	web.CommunityMux.Handle(pat.Get("/stats/ai_ops"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleAIOps)))
	web.CommunityMux.Handle(pat.Get("/stats/trending"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(handleTrending)))

	web.APIMux.HandleFunc(pat.Get("/admin/stats"), handlePlatformStats)
}

type windowQuery struct {
	Window string `schema:"window"`
}

// parseWindowParam decodes the window query param, writing the error
// response itself on bad input.
func parseWindowParam(w http.ResponseWriter, r *http.Request) (Window, bool) {
	var q windowQuery
	web.DecodeQuery(r, &q)

	window, err := ParseWindow(q.Window)
	if err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, err.Error())
		return "", false
	}

	return window, true
}

func handleOverview(w http.ResponseWriter, r *http.Request) {
	window, ok := parseWindowParam(w, r)
	if !ok {
		return
	}

	ov, err := CommunityOverview(r.Context(), web.ContextCommunityID(r.Context()), window)
	if err != nil {
		logger.WithError(err).Error("Failed building community overview")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	web.WriteJSON(w, http.StatusOK, ov)
}

func handleAIOps(w http.ResponseWriter, r *http.Request) {
	window, ok := parseWindowParam(w, r)
	if !ok {
		return
	}

	report, err := AIOpsReport(r.Context(), web.ContextCommunityID(r.Context()), window)
	if err != nil {
		logger.WithError(err).Error("Failed building ai ops report")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	web.WriteJSON(w, http.StatusOK, report)
}

func handleTrending(w http.ResponseWriter, r *http.Request) {
	window, ok := parseWindowParam(w, r)
	if !ok {
		return
	}

	topics, err := TrendingTopics(r.Context(), web.ContextCommunityID(r.Context()), window)
	if err != nil {
		logger.WithError(err).Error("Failed building trending topics")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	web.WriteJSON(w, http.StatusOK, topics)
}

func handlePlatformStats(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	if user == nil {
		web.WriteAPIError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	if !IsPlatformAdmin(user.ID) {
		web.WriteAPIError(w, http.StatusForbidden, "requires platform admin")
		return
	}

	window, ok := parseWindowParam(w, r)
	if !ok {
		return
	}

	ov, err := PlatformStats(r.Context(), window)
	if err != nil {
		logger.WithError(err).Error("Failed building platform stats")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	web.WriteJSON(w, http.StatusOK, ov)
}

// IsPlatformAdmin checks the user against the configured platform admin
// list.
func IsPlatformAdmin(userID int64) bool {
	ids := make([]int64, 0)
	for _, part := range strings.Split(confPlatformAdmins.GetString(), ",") {
		parsed, err := common.ParseInt(strings.TrimSpace(part))
		if err == nil {
			ids = append(ids, parsed)
		}
	}

	return common.ContainsInt64(ids, userID)
}
