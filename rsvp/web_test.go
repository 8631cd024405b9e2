package rsvp

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"goji.io"
	"goji.io/pat"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/testutils"
	"github.com/commune-gg/commune/web"
)

func rsvpTestMux(userID int64) *goji.Mux {
	mux := goji.NewMux()

	community := goji.SubMux()
	community.Use(func(inner http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), common.ContextKeyUser, &web.CurrentUser{ID: userID})
			ctx = context.WithValue(ctx, common.ContextKeyCurrentCommunity, common.MustParseInt(pat.Param(r, "community")))
			inner.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	mux.Handle(pat.New("/communities/:community/*"), community)

	community.HandleFunc(pat.Get("/events/:event/rsvps"), handleCounts)
	community.HandleFunc(pat.Get("/events/:event/rsvps/me"), handleGetMine)
	community.HandleFunc(pat.Post("/events/:event/rsvps"), handleSubmit)

	return mux
}

func TestRoutesScopedToCommunity(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "event_rsvps", "events")

	// createTestEvent writes into community 1, the requests below go
	// through community 2's path
	ev := createTestEvent(t, 0)
	mux := rsvpTestMux(10)
	base := "/communities/2/events/" + common.StrID(ev.ID) + "/rsvps"

	for _, c := range []struct {
		method string
		url    string
		body   string
	}{
		{"GET", base, ""},
		{"GET", base + "/me", ""},
		{"POST", base, `{"status": "going"}`},
	} {
		var r *http.Request
		if c.body != "" {
			r = httptest.NewRequest(c.method, c.url, bytes.NewReader([]byte(c.body)))
		} else {
			r = httptest.NewRequest(c.method, c.url, nil)
		}

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, r)
		require.Equal(t, http.StatusNotFound, rec.Code, "%s %s", c.method, c.url)
	}

	// the rejected submit wrote nothing
	var count int
	err := common.PQ.QueryRow(`SELECT COUNT(*) FROM event_rsvps WHERE event_id = $1`, ev.ID).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestSubmitThroughHandler(t *testing.T) {
	defer testutils.ClearTables(common.PQ, "event_rsvps", "events")

	ev := createTestEvent(t, 0)
	mux := rsvpTestMux(10)

	r := httptest.NewRequest("POST", "/communities/1/events/"+common.StrID(ev.ID)+"/rsvps",
		bytes.NewReader([]byte(`{"status": "going"}`)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)

	count, err := AttendanceCount(context.Background(), ev.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}
