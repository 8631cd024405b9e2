package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/mediocregopher/radix/v3"
	"goji.io/pat"

	"github.com/commune-gg/commune/common"
)

// CurrentUser is the acting user resolved from the session token. Identity
// issuance itself is handled by the external auth provider, we only map
// tokens to user ids.
type CurrentUser struct {
	ID       int64
	Username string
}

// MemberRoleResolver is set by the communities plugin during registration,
// it returns the role of userID in communityID or an empty string for a
// non-member. Kept as a function var to avoid an import cycle.
var MemberRoleResolver func(ctx context.Context, communityID, userID int64) (string, error)

// SessionMiddleware resolves the bearer token to a user and puts it in the
// request context, requests without a valid token pass through without one.
func SessionMiddleware(inner http.Handler) http.Handler {
	mw := func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			inner.ServeHTTP(w, r)
			return
		}

		user, err := userFromToken(token)
		if err != nil {
			logger.WithError(err).Error("Failed resolving session token")
			inner.ServeHTTP(w, r)
			return
		}

		if user == nil {
			inner.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), common.ContextKeyUser, user)
		inner.ServeHTTP(w, r.WithContext(ctx))
	}
	return http.HandlerFunc(mw)
}

// RequireSessionMiddleware rejects requests that don't carry a valid session
func RequireSessionMiddleware(inner http.Handler) http.Handler {
	mw := func(w http.ResponseWriter, r *http.Request) {
		if ContextUser(r.Context()) == nil {
			WriteAPIError(w, http.StatusUnauthorized, "not logged in")
			return
		}

		inner.ServeHTTP(w, r)
	}
	return http.HandlerFunc(mw)
}

// CommunityMiddleware parses the :community path param and attaches the
// community id and the current user's member role to the context.
func CommunityMiddleware(inner http.Handler) http.Handler {
	mw := func(w http.ResponseWriter, r *http.Request) {
		communityID := common.MustParseInt(pat.Param(r, "community"))
		if communityID == 0 {
			WriteAPIError(w, http.StatusBadRequest, "invalid community id")
			return
		}

		ctx := context.WithValue(r.Context(), common.ContextKeyCurrentCommunity, communityID)

		user := ContextUser(ctx)
		if user != nil && MemberRoleResolver != nil {
			role, err := MemberRoleResolver(ctx, communityID, user.ID)
			if err != nil {
				logger.WithError(err).WithField("community", communityID).Error("Failed resolving member role")
			} else {
				ctx = context.WithValue(ctx, common.ContextKeyCurrentMemberRole, role)
			}
		}

		inner.ServeHTTP(w, r.WithContext(ctx))
	}
	return http.HandlerFunc(mw)
}

// RequireCommunityAdminMiddleware rejects requests from users that can't
// manage the community in the path (admin or co-admin).
func RequireCommunityAdminMiddleware(inner http.Handler) http.Handler {
	mw := func(w http.ResponseWriter, r *http.Request) {
		if !common.IsRoleElevated(ContextMemberRole(r.Context())) {
			WriteAPIError(w, http.StatusForbidden, "requires community admin")
			return
		}

		inner.ServeHTTP(w, r)
	}
	return http.HandlerFunc(mw)
}

// RecoverMiddleware turns handler panics into 500s instead of killing the
// process
func RecoverMiddleware(inner http.Handler) http.Handler {
	mw := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithField("url", r.URL.Path).Error("Recovered from panic in handler: ", rec)
				WriteAPIError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		inner.ServeHTTP(w, r)
	}
	return http.HandlerFunc(mw)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}

	return ""
}

func userFromToken(token string) (*CurrentUser, error) {
	var raw map[string]string
	err := common.RedisPool.Do(radix.Cmd(&raw, "HGETALL", "sessions:"+token))
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 {
		return nil, nil
	}

	return &CurrentUser{
		ID:       common.MustParseInt(raw["user_id"]),
		Username: raw["username"],
	}, nil
}

// ContextUser returns the current user, or nil when the request carried no
// valid session.
func ContextUser(ctx context.Context) *CurrentUser {
	if v := ctx.Value(common.ContextKeyUser); v != nil {
		return v.(*CurrentUser)
	}

	return nil
}

// ContextCommunityID returns the community id from the path, only valid
// below CommunityMiddleware.
func ContextCommunityID(ctx context.Context) int64 {
	if v := ctx.Value(common.ContextKeyCurrentCommunity); v != nil {
		return v.(int64)
	}

	return 0
}

// ContextMemberRole returns the current user's role in the current
// community, empty for non-members.
func ContextMemberRole(ctx context.Context) string {
	if v := ctx.Value(common.ContextKeyCurrentMemberRole); v != nil {
		return v.(string)
	}

	return ""
}
