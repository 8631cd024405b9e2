package posts

import (
	"net/http"

	"goji.io/pat"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/web"
)

var _ web.Plugin = (*Plugin)(nil)

func (p *Plugin) InitWeb() {
	web.APIMux.HandleFunc(pat.Get("/me/messages"), handleInbox)
	web.APIMux.HandleFunc(pat.Get("/me/messages/unread_count"), handleUnreadCount)
	web.APIMux.HandleFunc(pat.Post("/me/messages"), handleSendMessage)
	web.APIMux.HandleFunc(pat.Post("/me/messages/:message/read"), handleMarkMessageRead)

	web.CommunityMux.HandleFunc(pat.Get("/posts"), handleList)
	web.CommunityMux.HandleFunc(pat.Post("/posts"), handleCreate)
	web.CommunityMux.HandleFunc(pat.Delete("/posts/:post"), handleDelete)
}

type listQuery struct {
	Limit         int  `schema:"limit"`
	Announcements bool `schema:"announcements"`
}

func handleList(w http.ResponseWriter, r *http.Request) {
	var q listQuery
	web.DecodeQuery(r, &q)

	communityID := web.ContextCommunityID(r.Context())

	var result []*Post
	var err error
	if q.Announcements {
		result, err = ListAnnouncements(r.Context(), communityID, q.Limit)
	} else {
		result, err = ListByCommunity(r.Context(), communityID, q.Limit)
	}
	if err != nil {
		logger.WithError(err).Error("Failed listing posts")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load posts")
		return
	}

	web.WriteJSON(w, http.StatusOK, result)
}

type createForm struct {
	Content        string `json:"content"`
	IsAnnouncement bool   `json:"is_announcement"`
}

func handleCreate(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	role := web.ContextMemberRole(r.Context())
	if role == "" {
		web.WriteAPIError(w, http.StatusForbidden, "requires community membership")
		return
	}

	var form createForm
	if err := web.ReadJSON(r, &form); err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if form.IsAnnouncement && !common.IsRoleElevated(role) {
		web.WriteAPIError(w, http.StatusForbidden, "requires community admin")
		return
	}

	communityID := web.ContextCommunityID(r.Context())

	var post *Post
	var err error
	if form.IsAnnouncement {
		post, err = CreateAnnouncement(r.Context(), communityID, user.ID, form.Content)
	} else {
		post, err = Create(r.Context(), communityID, user.ID, form.Content)
	}
	if err != nil {
		if err == ErrContentRequired || err == ErrContentTooLong {
			web.WriteAPIError(w, http.StatusBadRequest, err.Error())
			return
		}

		logger.WithError(err).Error("Failed creating post")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to create post")
		return
	}

	web.WriteJSON(w, http.StatusCreated, post)
}

func handleDelete(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	communityID := web.ContextCommunityID(r.Context())
	postID := common.MustParseInt(pat.Param(r, "post"))

	post, err := Get(r.Context(), postID)
	if err != nil {
		if err == ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "post not found")
			return
		}

		logger.WithError(err).Error("Failed loading post")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to delete post")
		return
	}

	if post.CommunityID != communityID {
		web.WriteAPIError(w, http.StatusNotFound, "post not found")
		return
	}

	// authors can remove their own posts, admins anyone's
	if post.AuthorID != user.ID && !common.IsRoleElevated(web.ContextMemberRole(r.Context())) {
		web.WriteAPIError(w, http.StatusForbidden, "requires community admin")
		return
	}

	if err := SoftDelete(r.Context(), postID); err != nil {
		if err == ErrNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "post not found")
			return
		}

		logger.WithError(err).Error("Failed deleting post")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to delete post")
		return
	}

	if post.AuthorID != user.ID {
		common.AddAuditLogEntry(user.ID, communityID, "deleted post ", postID)
	}

	web.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type inboxQuery struct {
	Limit int `schema:"limit"`
}

func handleInbox(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	if user == nil {
		web.WriteAPIError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	var q inboxQuery
	web.DecodeQuery(r, &q)

	msgs, err := Inbox(r.Context(), user.ID, q.Limit)
	if err != nil {
		logger.WithError(err).Error("Failed loading inbox")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	web.WriteJSON(w, http.StatusOK, msgs)
}

func handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	if user == nil {
		web.WriteAPIError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	count, err := UnreadMessageCount(r.Context(), user.ID)
	if err != nil {
		logger.WithError(err).Error("Failed counting unread messages")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	web.WriteJSON(w, http.StatusOK, map[string]int{"unread": count})
}

type sendMessageForm struct {
	RecipientID int64  `json:"recipient_id"`
	Content     string `json:"content"`
}

func handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	if user == nil {
		web.WriteAPIError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	var form sendMessageForm
	if err := web.ReadJSON(r, &form); err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid body")
		return
	}

	msg, err := SendMessage(r.Context(), user.ID, form.RecipientID, form.Content)
	if err != nil {
		switch err {
		case ErrSelfMessage, ErrContentRequired, ErrContentTooLong:
			web.WriteAPIError(w, http.StatusBadRequest, err.Error())
			return
		}

		logger.WithError(err).Error("Failed sending message")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	web.WriteJSON(w, http.StatusCreated, msg)
}

func handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	if user == nil {
		web.WriteAPIError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	err := MarkMessageRead(r.Context(), common.MustParseInt(pat.Param(r, "message")), user.ID)
	if err != nil {
		if err == ErrMessageNotFound {
			web.WriteAPIError(w, http.StatusNotFound, "message not found")
			return
		}

		logger.WithError(err).Error("Failed marking message read")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to update message")
		return
	}

	web.WriteJSON(w, http.StatusOK, map[string]bool{"read": true})
}
