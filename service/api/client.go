package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PPClient/logger"
	"PPClient/module/chat/model"
	"PPClient/tools/errs"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const maxErrorBody = 512

// Client reads chats, messages and users from the REST side of the server.
type Client struct {
	base *url.URL
	http *http.Client
	log  *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport base; bearer auth is layered on top.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errs.ErrArgs.WrapMsg("invalid api url", "url", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 15 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.OrNamed(c.log, "api")

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	authed := *c.http
	authed.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		Base:   base,
	}
	c.http = &authed
	return c, nil
}

func (c *Client) Chats(ctx context.Context) ([]model.ChatSummary, error) {
	var out []model.ChatSummary
	if err := c.get(ctx, "/chats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Messages(ctx context.Context, chatID int64) ([]model.Message, error) {
	var out []model.Message
	if err := c.get(ctx, "/chats/"+strconv.FormatInt(chatID, 10)+"/messages", &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ChatID == 0 {
			out[i].ChatID = chatID
		}
	}
	return out, nil
}

func (c *Client) User(ctx context.Context, userID int64) (model.User, error) {
	var out model.User
	err := c.get(ctx, "/users/"+strconv.FormatInt(userID, 10), &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, into any) error {
	u := *c.base
	u.Path = c.base.Path + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errs.Wrap(err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.ErrRemoteAPI.WrapMsg(err.Error(), "path", path)
	}
	defer resp.Body.Close()
	c.log.Debug("api call", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errs.ErrRemoteAPI.WrapMsg(fmt.Sprintf("status %d", resp.StatusCode), "path", path, "body", strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return errs.ErrRemoteAPI.WrapMsg("decode: "+err.Error(), "path", path)
	}
	return nil
}
