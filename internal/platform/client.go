package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/config"
	"github.com/spec-kit/support-gateway/internal/domain"
)

const (
	requestTimeout = 15 * time.Second
	maxRetries     = 2
	nonceCap       = 512
)

// Result reports the outcome of a write call without forcing callers to
// inspect transport errors.
type Result struct {
	OK     bool
	Status int
	Body   string
}

// Client is the REST side of the chat platform API. The gateway delivers
// events; everything the bot asks for explicitly goes through here.
type Client struct {
	baseURL string
	token   string
	botAuth bool
	http    *http.Client
	node    *snowflake.Node
	logger  *zap.Logger

	mu         sync.Mutex
	sentNonces map[string]struct{}
	nonceOrder []string
}

// NewClient builds a REST client. Bot auth mode prefixes the token per the
// platform convention; user mode sends it bare.
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) (*Client, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return &Client{
		baseURL:    cfg.APIBaseURL,
		token:      cfg.Token,
		botAuth:    cfg.AuthMode == "bot",
		http:       &http.Client{Timeout: requestTimeout},
		node:       node,
		logger:     logger,
		sentNonces: make(map[string]struct{}),
	}, nil
}

// NextNonce issues a fresh client nonce. Outbound messages carry it so the
// echo delivered back over the gateway is recognizable as the bot's own.
func (c *Client) NextNonce() string {
	return c.node.Generate().String()
}

type outboundMessage struct {
	Content string `json:"content"`
	Nonce   string `json:"nonce,omitempty"`
}

// SendMessage posts a message to a channel, tagging it with a nonce. The
// nonce is remembered before the write so the gateway echo can never beat the
// ledger entry.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) (Result, error) {
	payload := outboundMessage{Content: content, Nonce: c.NextNonce()}
	c.rememberNonce(payload.Nonce)
	return c.write(ctx, http.MethodPost,
		fmt.Sprintf("/channels/%s/messages", channelID), payload)
}

// OwnsNonce reports whether the nonce was issued for one of this client's
// recent outbound messages.
func (c *Client) OwnsNonce(nonce string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sentNonces[nonce]
	return ok
}

func (c *Client) rememberNonce(nonce string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentNonces[nonce] = struct{}{}
	c.nonceOrder = append(c.nonceOrder, nonce)
	if len(c.nonceOrder) > nonceCap {
		delete(c.sentNonces, c.nonceOrder[0])
		c.nonceOrder = c.nonceOrder[1:]
	}
}

// EditMessage replaces the content of an existing message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) (Result, error) {
	return c.write(ctx, http.MethodPatch,
		fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID),
		outboundMessage{Content: content})
}

type channelResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
	Type     int    `json:"type"`
}

// GetChannels lists the guild's channels for the hydration scan.
func (c *Client) GetChannels(ctx context.Context, guildID string) ([]domain.Channel, error) {
	var raw []channelResponse
	if err := c.get(ctx, fmt.Sprintf("/guilds/%s/channels", guildID), &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Channel, 0, len(raw))
	for _, ch := range raw {
		out = append(out, domain.Channel{
			ID:       ch.ID,
			Name:     ch.Name,
			GuildID:  guildID,
			ParentID: ch.ParentID,
			Type:     ch.Type,
		})
	}
	return out, nil
}

type messageResponse struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"author"`
}

// GetMessages pulls up to limit recent messages of a channel, oldest first.
func (c *Client) GetMessages(ctx context.Context, channelID string, limit int) ([]domain.ArchivedMessage, error) {
	var raw []messageResponse
	path := fmt.Sprintf("/channels/%s/messages?limit=%d", channelID, limit)
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}
	// The API returns newest first.
	out := make([]domain.ArchivedMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		m := raw[i]
		sentAt, err := time.Parse(time.RFC3339, m.Timestamp)
		if err != nil {
			sentAt = time.Now().UTC()
		}
		out = append(out, domain.ArchivedMessage{
			MessageID:      m.ID,
			AuthorID:       m.Author.ID,
			AuthorUsername: m.Author.Username,
			Content:        m.Content,
			SentAt:         sentAt,
		})
	}
	return out, nil
}

type memberResponse struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"user"`
	Nick  string   `json:"nick"`
	Roles []string `json:"roles"`
}

func (m memberResponse) toDomain() domain.Member {
	return domain.Member{
		UserID:   m.User.ID,
		Username: m.User.Username,
		Nick:     m.Nick,
		Roles:    m.Roles,
		Bot:      m.User.Bot,
	}
}

// SearchMembers queries the member directory by username prefix.
func (c *Client) SearchMembers(ctx context.Context, guildID, query string, limit int) ([]domain.Member, error) {
	var raw []memberResponse
	path := fmt.Sprintf("/guilds/%s/members/search?query=%s&limit=%d",
		guildID, url.QueryEscape(query), limit)
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// ListMembers pages through the member directory. Requires privileged access;
// callers fall back to SearchMembers sweeps when this returns 403.
func (c *Client) ListMembers(ctx context.Context, guildID string, limit int, after string) ([]domain.Member, error) {
	path := fmt.Sprintf("/guilds/%s/members?limit=%d", guildID, limit)
	if after != "" {
		path += "&after=" + url.QueryEscape(after)
	}
	var raw []memberResponse
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// StatusError carries a non-2xx REST response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform: status %d: %s", e.Status, e.Body)
}

// IsForbidden reports whether err is a 403 response.
func IsForbidden(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.Status == http.StatusForbidden
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return &StatusError{Status: resp.Status, Body: resp.Body}
	}
	return json.Unmarshal([]byte(resp.Body), out)
}

func (c *Client) write(ctx context.Context, method, path string, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return Result{}, err
	}
	resp.OK = resp.Status >= 200 && resp.Status < 300
	if !resp.OK {
		c.logger.Warn("platform write rejected",
			zap.String("path", path), zap.Int("status", resp.Status))
	}
	return resp, nil
}

// do issues one request, retrying after the server-advised delay on rate
// limit responses.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (Result, error) {
	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return Result{}, err
		}
		req.Header.Set("Authorization", c.authHeader())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return Result{}, err
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			return Result{}, err
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			delay := retryAfter(resp.Header.Get("Retry-After"))
			c.logger.Warn("rate limited, backing off",
				zap.String("path", path), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		return Result{Status: resp.StatusCode, Body: string(respBody)}, nil
	}
}

func (c *Client) authHeader() string {
	if c.botAuth {
		return "Bot " + c.token
	}
	return c.token
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return time.Second
}
