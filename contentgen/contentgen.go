// Package contentgen wraps the external text generation gateway used for
// event descriptions and tag suggestions. No inference runs locally, this is
// a thin http client plus an operations log the dashboards aggregate over.
package contentgen

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"emperror.dev/errors"
	"github.com/cenkalti/backoff"
	jsoniter "github.com/json-iterator/go"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/config"
)

var (
	confGatewayURL = config.RegisterOption("commune.contentgen_url", "Base URL of the text generation gateway", "")
	confGatewayKey = config.RegisterOption("commune.contentgen_key", "API key for the text generation gateway", "")

	logger = common.GetPluginLogger(&Plugin{})
)

type Plugin struct {
	client *Client
}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Content generation",
		SysName:  "contentgen",
		Category: common.PluginCategoryMisc,
	}
}

func RegisterPlugin() {
	common.RegisterDBSchemas("contentgen", DBSchemas...)

	if confGatewayURL.GetString() == "" {
		logger.Warn("Missing content generation gateway url, not loading plugin")
		return
	}

	common.RegisterPlugin(&Plugin{
		client: NewClient(confGatewayURL.GetString(), confGatewayKey.GetString()),
	})
}

// Operation names as stored in ai_operations
const (
	OpGenerateDescription = "generate_description"
	OpSuggestTags         = "suggest_tags"
)

const (
	OpStatusOK    = "ok"
	OpStatusError = "error"
)

var ErrRemoteRejected = errors.Sentinel("content generation gateway rejected the request")

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   time.Second * 30,
			Transport: &common.LoggingTransport{},
		},
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

type tagsRequest struct {
	Text string `json:"text"`
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

// GenerateDescription asks the gateway for a polished event description
// from the admin's rough prompt.
func (c *Client) GenerateDescription(ctx context.Context, prompt string) (string, error) {
	var resp generateResponse
	err := c.do(ctx, "/v1/generate", &generateRequest{Prompt: prompt}, &resp)
	if err != nil {
		return "", err
	}

	return resp.Text, nil
}

// SuggestTags asks the gateway for topic tags describing the given text.
func (c *Client) SuggestTags(ctx context.Context, text string) ([]string, error) {
	var resp tagsResponse
	err := c.do(ctx, "/v1/tags", &tagsRequest{Text: text}, &resp)
	if err != nil {
		return nil, err
	}

	return resp.Tags, nil
}

// do posts the request body as json and decodes the response, retrying
// server side failures with exponential backoff. 4xx responses are not
// retried.
func (c *Client) do(ctx context.Context, path string, reqBody, respBody interface{}) error {
	encoded, err := jsoniter.Marshal(reqBody)
	if err != nil {
		return errors.WithStackIf(err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("gateway returned %d", resp.StatusCode)
		}

		if resp.StatusCode >= 400 {
			return backoff.Permanent(ErrRemoteRejected)
		}

		err = jsoniter.NewDecoder(resp.Body).Decode(respBody)
		if err != nil {
			return backoff.Permanent(err)
		}

		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	err = backoff.Retry(op, policy)
	if err != nil {
		if err == ErrRemoteRejected {
			return err
		}
		return errors.WrapIf(err, "content generation request failed")
	}

	return nil
}

// LogOperation records the outcome of a gateway call; the stats dashboards
// derive per operation success rates from these rows.
func LogOperation(ctx context.Context, communityID int64, operation, status string) {
	_, err := common.PQ.ExecContext(ctx,
		`INSERT INTO ai_operations (id, community_id, operation, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		common.GenID(), communityID, operation, status, time.Now())
	if err != nil {
		logger.WithError(err).WithField("community", communityID).Error("Failed recording ai operation")
	}
}

func statusForErr(err error) string {
	if err != nil {
		return OpStatusError
	}

	return OpStatusOK
}
