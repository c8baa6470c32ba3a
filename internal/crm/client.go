// Package crm provides the HTTP client for the CRM (LeadConnector) API.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"
)

const (
	apiVersion = "2021-07-28"
	// UserAgent is sent on every CRM request, including token refreshes.
	UserAgent = "FTL-Prints-Pipeline/1.0"

	serviceName  = "crm"
	maxErrorBody = 512
)

// TokenSource yields the Authorization header value for CRM calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Retries    int
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// OptionsFromConfig builds Options from the CRM config.
func OptionsFromConfig(cfg config.CRMConfig) Options {
	return Options{
		BaseURL:    cfg.GetCRMBaseURL(),
		Retries:    cfg.GetCRMRetries(),
		RetryDelay: cfg.GetCRMRetryDelay(),
	}
}

// APIError is a non-2xx CRM response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm api %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Retryable reports whether the status is one the client retries.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusInternalServerError || e.Status == http.StatusServiceUnavailable
}

// Client is the CRM API client. It holds no per-run state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	retries    int
	retryDelay time.Duration
	log        *logger.Logger
}

// New creates a CRM client.
func New(opts Options, tokens TokenSource, log *logger.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: httpClient,
		tokens:     tokens,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		log:        log,
	}
}

// SearchOpportunities lists up to 100 opportunities of one pipeline.
func (c *Client) SearchOpportunities(ctx context.Context, pipelineID, locationID string) ([]Opportunity, error) {
	params := url.Values{}
	params.Set("pipeline_id", pipelineID)
	params.Set("location_id", locationID)
	params.Set("limit", "100")

	body, err := c.do(ctx, http.MethodGet, "/opportunities/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	opps, err := ParseOpportunitySearch(body)
	if err != nil {
		return nil, apperr.Unavailable("crm returned a malformed opportunity list", err)
	}
	return opps, nil
}

// SearchConversations lists the conversations of a contact.
func (c *Client) SearchConversations(ctx context.Context, contactID, locationID string) ([]Conversation, error) {
	params := url.Values{}
	params.Set("contactId", contactID)
	params.Set("locationId", locationID)

	body, err := c.do(ctx, http.MethodGet, "/conversations/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	convos, err := ParseConversationSearch(body)
	if err != nil {
		return nil, apperr.Unavailable("crm returned a malformed conversation list", err)
	}
	return convos, nil
}

// ListMessages lists up to 100 messages of a conversation, newest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	body, err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages?limit=100", nil)
	if err != nil {
		return nil, err
	}
	msgs, err := ParseMessageList(body)
	if err != nil {
		return nil, apperr.Unavailable("crm returned a malformed message list", err)
	}
	return msgs, nil
}

// GetMessageBody fetches the raw (usually HTML) body of one message.
func (c *Client) GetMessageBody(ctx context.Context, messageID string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/conversations/messages/"+url.PathEscape(messageID), nil)
	if err != nil {
		return "", err
	}
	text, err := ParseMessageBody(body)
	if err != nil {
		return "", apperr.Unavailable("crm returned a malformed message", err)
	}
	return text, nil
}

// ListNotes lists the notes of a contact in CRM order.
func (c *Client) ListNotes(ctx context.Context, contactID string) ([]Note, error) {
	body, err := c.do(ctx, http.MethodGet, "/contacts/"+url.PathEscape(contactID)+"/notes", nil)
	if err != nil {
		return nil, err
	}
	notes, err := ParseNoteList(body)
	if err != nil {
		return nil, apperr.Unavailable("crm returned a malformed note list", err)
	}
	return notes, nil
}

// CreateNote adds a note to a contact.
func (c *Client) CreateNote(ctx context.Context, contactID, text string) error {
	_, err := c.do(ctx, http.MethodPost, "/contacts/"+url.PathEscape(contactID)+"/notes", map[string]string{"body": text})
	return err
}

// SendMessage sends an email or SMS and returns the CRM message id.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/conversations/messages", req)
	if err != nil {
		return "", err
	}
	id, err := ParseSendMessage(body)
	if err != nil {
		return "", apperr.Unavailable("crm returned a malformed send result", err)
	}
	return id, nil
}

// UpdateOpportunityStage moves an opportunity to another pipeline stage.
func (c *Client) UpdateOpportunityStage(ctx context.Context, opportunityID, stageID string) error {
	_, err := c.do(ctx, http.MethodPut, "/opportunities/"+url.PathEscape(opportunityID), map[string]string{"pipelineStageId": stageID})
	return err
}

// do performs one logical request. Only 500 and 503 are retried, after a fixed delay.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, apperr.Unavailable("crm authentication failed", err)
	}

	var encoded []byte
	if payload != nil {
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode crm request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		body, apiErr, err := c.send(ctx, method, path, token, encoded, attempt+1)
		if err != nil {
			return nil, apperr.Unavailable("crm request failed", err)
		}
		if apiErr == nil {
			return body, nil
		}
		if !apiErr.Retryable() || attempt >= c.retries {
			return nil, apperr.Unavailable("crm request failed", apiErr)
		}
		if err := sleepCtx(ctx, c.retryDelay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) send(ctx context.Context, method, path, token string, payload []byte, attempt int) ([]byte, *APIError, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Version", apiVersion)
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("crm request failed", "method", method, "path", path, "error", err)
		return nil, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	c.log.ExternalCall(serviceName, method, path, resp.StatusCode, attempt)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil, nil
	}
	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}
	return nil, &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: snippet}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
