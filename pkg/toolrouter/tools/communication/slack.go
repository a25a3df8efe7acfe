// Package communication implements the slack_notify tool body: post a
// message to a configured Slack channel, grounded on the teacher's own
// slack-go wrapper client.
package communication

import (
	"context"
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// Client is a thin wrapper around the slack-go SDK, scoped to a single
// default channel the tool posts into unless the call overrides it.
type Client struct {
	api       *goslack.Client
	channelID string
}

// NewClient creates a Slack API client bound to token and a default
// channel.
func NewClient(token, channelID string) *Client {
	return &Client{api: goslack.New(token), channelID: channelID}
}

// NewClientWithAPIURL creates a Slack API client that targets a custom API
// URL, useful for testing against a mock server.
func NewClientWithAPIURL(token, channelID, apiURL string) *Client {
	return &Client{api: goslack.New(token, goslack.OptionAPIURL(apiURL)), channelID: channelID}
}

// PostMessage sends text to channelID (or the client's default channel when
// empty).
func (c *Client) PostMessage(ctx context.Context, channelID, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if channelID == "" {
		channelID = c.channelID
	}
	_, _, err := c.api.PostMessageContext(ctx, channelID, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}

// Handler builds the slack_notify Handler.
func Handler(client *Client) toolrouter.Handler {
	return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		message, _ := call.Input["message"].(string)
		if message == "" {
			return nil, fmt.Errorf("slack_notify: \"message\" input is required")
		}
		channel, _ := call.Input["channel"].(string)

		if err := client.PostMessage(ctx, channel, message, 5*time.Second); err != nil {
			return nil, fmt.Errorf("slack_notify: %w", err)
		}
		return map[string]any{"posted": true}, nil
	}
}
