package contentgen

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://gateway.test"

func mockedClient() *Client {
	c := NewClient(testBaseURL, "test-key")
	httpmock.ActivateNonDefault(c.http)
	return c
}

func TestGenerateDescription(t *testing.T) {
	c := mockedClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testBaseURL+"/v1/generate",
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
			return httpmock.NewJsonResponse(200, map[string]string{"text": "A lovely evening of chess."})
		})

	text, err := c.GenerateDescription(context.Background(), "chess night")
	require.NoError(t, err)
	require.Equal(t, "A lovely evening of chess.", text)
}

func TestSuggestTags(t *testing.T) {
	c := mockedClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testBaseURL+"/v1/tags",
		httpmock.NewStringResponder(200, `{"tags": ["chess", "gaming"]}`))

	tags, err := c.SuggestTags(context.Background(), "weekly chess night at the cafe")
	require.NoError(t, err)
	require.Equal(t, []string{"chess", "gaming"}, tags)
}

func TestRetriesServerErrors(t *testing.T) {
	c := mockedClient()
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", testBaseURL+"/v1/generate",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(502, "bad gateway"), nil
			}
			return httpmock.NewJsonResponse(200, map[string]string{"text": "third time lucky"})
		})

	text, err := c.GenerateDescription(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "third time lucky", text)
	require.Equal(t, 3, calls)
}

func TestClientErrorsNotRetried(t *testing.T) {
	c := mockedClient()
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", testBaseURL+"/v1/tags",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(400, "bad request"), nil
		})

	_, err := c.SuggestTags(context.Background(), "text")
	require.Equal(t, ErrRemoteRejected, err)
	require.Equal(t, 1, calls)
}
