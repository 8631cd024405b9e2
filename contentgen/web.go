package contentgen

import (
	"net/http"
	"strings"

	"goji.io/pat"

	"github.com/commune-gg/commune/web"
)

var _ web.Plugin = (*Plugin)(nil)

func (p *Plugin) InitWeb() {
	web.CommunityMux.Handle(pat.Post("/contentgen/description"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(p.handleGenerateDescription)))
	web.CommunityMux.Handle(pat.Post("/contentgen/tags"),
		web.RequireCommunityAdminMiddleware(http.HandlerFunc(p.handleSuggestTags)))
}

type promptForm struct {
	Prompt string `json:"prompt"`
}

func (p *Plugin) handleGenerateDescription(w http.ResponseWriter, r *http.Request) {
	var form promptForm
	if err := web.ReadJSON(r, &form); err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid body")
		return
	}

	form.Prompt = strings.TrimSpace(form.Prompt)
	if form.Prompt == "" {
		web.WriteAPIError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	communityID := web.ContextCommunityID(r.Context())

	text, err := p.client.GenerateDescription(r.Context(), form.Prompt)
	LogOperation(r.Context(), communityID, OpGenerateDescription, statusForErr(err))
	if err != nil {
		if err == ErrRemoteRejected {
			web.WriteAPIError(w, http.StatusBadGateway, "Generation request was rejected")
			return
		}

		logger.WithError(err).Error("Failed generating description")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to generate description")
		return
	}

	web.WriteJSON(w, http.StatusOK, map[string]string{"text": text})
}

type textForm struct {
	Text string `json:"text"`
}

func (p *Plugin) handleSuggestTags(w http.ResponseWriter, r *http.Request) {
	var form textForm
	if err := web.ReadJSON(r, &form); err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid body")
		return
	}

	form.Text = strings.TrimSpace(form.Text)
	if form.Text == "" {
		web.WriteAPIError(w, http.StatusBadRequest, "text is required")
		return
	}

	communityID := web.ContextCommunityID(r.Context())

	tags, err := p.client.SuggestTags(r.Context(), form.Text)
	LogOperation(r.Context(), communityID, OpSuggestTags, statusForErr(err))
	if err != nil {
		if err == ErrRemoteRejected {
			web.WriteAPIError(w, http.StatusBadGateway, "Tag suggestion was rejected")
			return
		}

		logger.WithError(err).Error("Failed suggesting tags")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to suggest tags")
		return
	}

	web.WriteJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}
