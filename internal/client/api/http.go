package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medguard/medguard-client/internal/common"
	"github.com/medguard/medguard-client/internal/logging"
	"github.com/medguard/medguard-client/internal/netx"
)

// refreshSkew is how close to expiry an access token may get before the
// client refreshes it ahead of a request instead of waiting for a 401.
const refreshSkew = 30 * time.Second

// HTTPClient implements Client over plain JSON/REST.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	onTokens     func(TokenPair)
}

func NewHTTPClient(baseURL string, timeout time.Duration, log logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "api"),
	}
}

func (c *HTTPClient) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

func (c *HTTPClient) OnTokens(fn func(TokenPair)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTokens = fn
}

func (c *HTTPClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *HTTPClient) storeTokens(tp TokenPair) {
	c.mu.Lock()
	c.accessToken = tp.AccessToken
	c.refreshToken = tp.RefreshToken
	fn := c.onTokens
	c.mu.Unlock()
	if fn != nil {
		fn(tp)
	}
}

// tokenExpiringSoon inspects the unverified exp claim. Signature validation
// is the server's job; the client only needs the timestamp to avoid sending
// requests it knows will bounce.
func tokenExpiringSoon(token string) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().Add(refreshSkew).After(exp.Time)
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// do performs one JSON request. When authed is set, the current access token
// is attached; an expired-token response triggers a single refresh followed
// by one retry, mirroring the token rotation the server expects.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any, authed bool) error {
	if authed {
		access, refresh := c.tokens()
		if refresh != "" && tokenExpiringSoon(access) {
			if err := c.refreshTokens(ctx); err != nil {
				// Let the request proceed with the stale token; the 401
				// path below reports the definitive outcome.
				c.log.Debug(ctx, "proactive token refresh failed", "error", err)
			}
		}
	}

	status, err := c.send(ctx, method, path, body, out, authed)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && authed {
		_, refresh := c.tokens()
		if refresh == "" {
			return common.ErrTokenExpired
		}
		if err := c.refreshTokens(ctx); err != nil {
			return err
		}
		status, err = c.send(ctx, method, path, body, out, authed)
		if err != nil {
			return err
		}
	}

	return mapStatus(status)
}

// send performs a single round trip and decodes a 2xx body into out.
// It returns the status code for non-2xx responses so do can decide about
// retrying; network-layer failures are classified and returned as errors.
func (c *HTTPClient) send(ctx context.Context, method, path string, body any, out any, authed bool) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		access, _ := c.tokens()
		req.Header.Set(common.AccessTokenHeaderName, "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if netx.IsTransient(err) {
			return 0, fmt.Errorf("%s %s: %w", method, path, common.ErrUnavailable)
		}
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return 0, fmt.Errorf("decode response: %w", err)
			}
		}
		return resp.StatusCode, nil
	}

	// Drain the error envelope for logging; classification is by status
	// code only, never by message text.
	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	if eb.Error != "" {
		c.log.Debug(ctx, "server rejected request", "status", resp.StatusCode, "detail", eb.Error)
	}

	return resp.StatusCode, nil
}

// mapStatus converts a terminal HTTP status into the shared error taxonomy.
func mapStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return common.ErrTokenExpired
	case status == http.StatusForbidden:
		return common.ErrUnauthorized
	case status == http.StatusNotFound:
		return common.ErrNotFound
	case status == http.StatusConflict:
		return common.ErrServerConflict
	default:
		return fmt.Errorf("unexpected status %d: %w", status, common.ErrInternal)
	}
}

func (c *HTTPClient) refreshTokens(ctx context.Context) error {
	_, refresh := c.tokens()
	if refresh == "" {
		return common.ErrTokenExpired
	}

	tp, err := c.Refresh(ctx, refresh)
	if err != nil {
		return err
	}
	c.storeTokens(*tp)
	return nil
}

func (c *HTTPClient) Login(ctx context.Context, email string, password []byte) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": string(password)}

	var res LoginResult
	status, err := c.send(ctx, http.MethodPost, "/auth/login", body, &res, false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, common.ErrInvalidCredentials
	}
	if err := mapStatus(status); err != nil {
		return nil, err
	}

	c.SetTokens(res.AccessToken, res.RefreshToken)
	return &res, nil
}

func (c *HTTPClient) Me(ctx context.Context) (*UserInfo, error) {
	var info UserInfo
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &info, true); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, true)
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var tp TokenPair
	status, err := c.send(ctx, http.MethodPost, "/auth/refresh", body, &tp, false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, common.ErrRefreshTokenExpired
	}
	if err := mapStatus(status); err != nil {
		return nil, err
	}
	return &tp, nil
}

func (c *HTTPClient) FetchEntity(ctx context.Context, entityID string) (*EntitySnapshot, error) {
	var snap EntitySnapshot
	if err := c.do(ctx, http.MethodGet, "/entities/"+entityID, nil, &snap, true); err != nil {
		return nil, err
	}
	return &snap, nil
}

// pushRequest carries the new field values plus the server timestamp the
// client last saw, so the server can reject writes over moved-on state.
type pushRequest struct {
	Fields            map[string]string `json:"fields"`
	ExpectedUpdatedAt time.Time         `json:"expected_updated_at"`
}

func (c *HTTPClient) PushEntity(ctx context.Context, entityID string, fields map[string]string, expectedUpdatedAt time.Time) (*EntitySnapshot, error) {
	var snap EntitySnapshot
	body := pushRequest{Fields: fields, ExpectedUpdatedAt: expectedUpdatedAt}
	if err := c.do(ctx, http.MethodPut, "/entities/"+entityID, body, &snap, true); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, false)
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
