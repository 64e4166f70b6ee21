// Package platform implements the Graph-style HTTP client for the external
// messaging provider: OAuth token exchange, channel token minting, account
// lookup, and outbound message delivery.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/orivon/pagerelay/internal/token"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://graph.facebook.com/v18.0"

type Client struct {
	http      *http.Client
	baseURL   string
	appID     string
	appSecret string
	logger    *zap.Logger
}

func NewClient(baseURL, appID, appSecret string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		appID:     appID,
		appSecret: appSecret,
		logger:    logger,
	}
}

type oauthError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type accountInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExchangeForLongLivedToken trades a (possibly short-lived) user token for a
// long-lived one via the fb_exchange_token grant.
func (c *Client) ExchangeForLongLivedToken(ctx context.Context, shortToken string) (string, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", c.appID)
	q.Set("client_secret", c.appSecret)
	q.Set("fb_exchange_token", shortToken)

	var resp tokenResponse
	if err := c.get(ctx, "/oauth/access_token?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("exchanging user token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("exchanging user token: empty access_token in response")
	}
	return resp.AccessToken, nil
}

// MintChannelToken obtains a page-scoped token from a fresh owner token.
func (c *Client) MintChannelToken(ctx context.Context, channelID, ownerToken string) (string, error) {
	q := url.Values{}
	q.Set("fields", "access_token")
	q.Set("access_token", ownerToken)

	var resp tokenResponse
	if err := c.get(ctx, "/"+url.PathEscape(channelID)+"?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("minting channel token for %s: %w", channelID, err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("minting channel token for %s: empty access_token in response", channelID)
	}
	return resp.AccessToken, nil
}

// AccountInfo holds the public identity of a channel account.
type AccountInfo struct {
	AccountID   string
	DisplayName string
}

func (c *Client) FetchAccountInfo(ctx context.Context, channelID, accessToken string) (AccountInfo, error) {
	q := url.Values{}
	q.Set("fields", "id,name")
	q.Set("access_token", accessToken)

	var resp accountInfo
	if err := c.get(ctx, "/"+url.PathEscape(channelID)+"?"+q.Encode(), &resp); err != nil {
		return AccountInfo{}, fmt.Errorf("fetching account info for %s: %w", channelID, err)
	}
	return AccountInfo{AccountID: resp.ID, DisplayName: resp.Name}, nil
}

type sendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// Send delivers a text message to recipientID on the given channel and
// returns the provider message id of the outbound message.
func (c *Client) Send(ctx context.Context, channelID, accessToken, recipientID, text string) (string, error) {
	var payload sendRequest
	payload.Recipient.ID = recipientID
	payload.Message.Text = text

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling send payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages?access_token=%s",
		c.baseURL, url.PathEscape(channelID), url.QueryEscape(accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending message to %s: %w", recipientID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading send response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.apiError(resp.StatusCode, respBody)
	}

	var sent sendResponse
	if err := json.Unmarshal(respBody, &sent); err != nil {
		return "", fmt.Errorf("parsing send response: %w", err)
	}

	c.logger.Debug("Message sent",
		zap.String("channel_id", channelID),
		zap.String("recipient_id", recipientID),
		zap.String("message_id", sent.MessageID))
	return sent.MessageID, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading provider response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing provider response: %w", err)
	}
	return nil
}

// apiError maps provider rejections onto the credential taxonomy: an OAuth
// 4xx means the token is dead and the refresh must not be retried.
func (c *Client) apiError(status int, body []byte) error {
	var oe oauthError
	if err := json.Unmarshal(body, &oe); err == nil && oe.Error.Type != "" {
		if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden {
			return fmt.Errorf("provider error %d (%s): %s: %w",
				status, oe.Error.Type, oe.Error.Message, token.ErrCredentialInvalid)
		}
		return fmt.Errorf("provider error %d (%s): %s", status, oe.Error.Type, oe.Error.Message)
	}
	return fmt.Errorf("provider returned status %d", status)
}
