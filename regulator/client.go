/*
Package regulator is the HTTP client for the supervisor's filing API.

PURPOSE:
  Holds one long-lived session (cookie jar + bearer token) per process and
  exposes get/post/put on the API's /inv resources. HTTP-level failures are
  never Go errors: every call returns a Response with the decoded body and
  status so callers can log and surface the regulator's payload verbatim.

TOKEN LIFECYCLE:
  - Login posts {user, cia, password} and receives a JWT.
  - The token's exp claim is read without verifying the signature.
  - Proactive refresh when time-to-expiry falls under RefreshMargin.
  - Reactive refresh exactly once on HTTP 401, replaying the request.

RETRIES:
  Only transport failures (timeouts, refused connections) are retried, up
  to MaxRetries attempts, sleeping RetryDelay * 2^(attempt-1) in between.
  Exhausting them yields a synthetic 503 response.

SEE ALSO:
  - lifecycle/: endpoint-level calls (entrega, confirmarEntrega, ...)
*/
package regulator

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

// =============================================================================
// CONFIG
// =============================================================================

type Config struct {
	BaseURL        string
	Username       string
	Password       string
	Company        string // 4-char company code ("cia")
	MaxRetries     int
	RetryDelay     time.Duration
	RefreshMargin  time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	VerifySSL      bool
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = 5 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 20 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// =============================================================================
// RESPONSE
// =============================================================================

// Response is a decoded API answer. Body is always non-nil.
type Response struct {
	Body   map[string]any
	Status int
}

func (r Response) IsError() bool { return r.Status >= 400 }

// JSON re-encodes the body for logging and storage.
func (r Response) JSON() json.RawMessage {
	data, err := json.Marshal(r.Body)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// String returns Body[key] when it is a string.
func (r Response) String(key string) string {
	s, _ := r.Body[key].(string)
	return s
}

func errorResponse(status int, msg string) Response {
	return Response{Body: map[string]any{"error": msg}, Status: status}
}

const (
	authErrorMessage = "Error de autenticación"
	emptyBodyMessage = "Sin contenido"
	maxErrorText     = 1000
)

// =============================================================================
// CLIENT
// =============================================================================

type Client struct {
	cfg    Config
	http   *http.Client
	logger *logrus.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds the client. It does not log in; the first call does.
func New(cfg Config, logger *logrus.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("regulator: base URL is required")
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("regulator: cookie jar: %w", err)
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: !cfg.VerifySSL}, //nolint:gosec // operator-controlled
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: transport, Jar: jar, Timeout: cfg.ConnectTimeout + cfg.ReadTimeout},
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}, nil
}

// Company returns the configured company code.
func (c *Client) Company() string { return c.cfg.Company }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// =============================================================================
// TOKEN LIFECYCLE
// =============================================================================

// Login authenticates and stores the new token.
func (c *Client) Login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"user":     c.cfg.Username,
		"cia":      c.cfg.Company,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("regulator: login: %w", err)
	}
	defer resp.Body.Close()

	decoded := decodeBody(resp)
	if decoded.IsError() {
		return "", fmt.Errorf("regulator: login: status %d: %v", decoded.Status, decoded.Body["error"])
	}
	token := decoded.String("token")
	if token == "" {
		return "", fmt.Errorf("regulator: login: response carries no token")
	}

	c.token = token
	c.expiresAt = tokenExpiry(token)
	c.logger.WithFields(logrus.Fields{
		"module":     "regulator",
		"token":      safeToken(token),
		"expires_at": c.expiresAt,
	}).Info("logged in to regulator API")
	return token, nil
}

// tokenExpiry reads the exp claim without verifying the signature. A zero
// time means "unknown", which forces a refresh before every call.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// validToken returns a token that will not expire within RefreshMargin,
// logging in again when needed.
func (c *Client) validToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && !c.expiresAt.IsZero() && c.now().Add(c.cfg.RefreshMargin).Before(c.expiresAt) {
		return c.token, nil
	}
	return c.loginLocked(ctx)
}

// refresh forces a new login after a 401.
func (c *Client) refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
	return c.loginLocked(ctx)
}

func safeToken(token string) string {
	if len(token) <= 10 {
		return "..."
	}
	return token[:10] + "..."
}

// =============================================================================
// RESOURCES
// =============================================================================

// Get fetches {base}/inv/{resource} with query params.
func (c *Client) Get(ctx context.Context, resource string, params url.Values) Response {
	u := c.resourceURL(resource)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.request(ctx, http.MethodGet, u, nil)
}

// Post sends body as JSON to {base}/inv/{resource}.
func (c *Client) Post(ctx context.Context, resource string, body any) Response {
	return c.requestJSON(ctx, http.MethodPost, resource, body)
}

// Put sends body as JSON to {base}/inv/{resource}.
func (c *Client) Put(ctx context.Context, resource string, body any) Response {
	return c.requestJSON(ctx, http.MethodPut, resource, body)
}

func (c *Client) resourceURL(resource string) string {
	return c.cfg.BaseURL + "/inv/" + strings.TrimLeft(resource, "/")
}

func (c *Client) requestJSON(ctx context.Context, method, resource string, body any) Response {
	data, err := json.Marshal(body)
	if err != nil {
		return errorResponse(http.StatusBadRequest, fmt.Sprintf("payload inválido: %v", err))
	}
	return c.request(ctx, method, c.resourceURL(resource), data)
}

func (c *Client) request(ctx context.Context, method, u string, body []byte) Response {
	log := c.logger.WithFields(logrus.Fields{"module": "regulator", "method": method, "url": u})
	refreshed := false

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		token, err := c.validToken(ctx)
		if err != nil {
			log.WithError(err).Error("could not obtain regulator token")
			return errorResponse(http.StatusUnauthorized, authErrorMessage)
		}

		resp, err := c.send(ctx, method, u, body, token)
		if err == nil && resp.Status == http.StatusUnauthorized && !refreshed {
			refreshed = true
			log.Warn("token rejected, logging in again")
			if token, err = c.refresh(ctx); err != nil {
				log.WithError(err).Error("re-authentication failed")
				return errorResponse(http.StatusUnauthorized, authErrorMessage)
			}
			resp, err = c.send(ctx, method, u, body, token)
		}
		if err == nil {
			log.WithFields(logrus.Fields{"status": resp.Status, "attempt": attempt}).Debug("regulator call completed")
			return resp
		}

		log.WithFields(logrus.Fields{"attempt": attempt, "max": c.cfg.MaxRetries}).WithError(err).Warn("regulator call failed")
		if ctx.Err() != nil {
			return errorResponse(http.StatusServiceUnavailable, ctx.Err().Error())
		}
		if attempt < c.cfg.MaxRetries {
			delay := c.cfg.RetryDelay * time.Duration(1<<(attempt-1))
			if err := c.sleep(ctx, delay); err != nil {
				return errorResponse(http.StatusServiceUnavailable, err.Error())
			}
		}
	}
	return errorResponse(http.StatusServiceUnavailable,
		fmt.Sprintf("Se agotaron los %d reintentos para %s", c.cfg.MaxRetries, u))
}

// send performs one HTTP exchange. err is only set for transport failures.
func (c *Client) send(ctx context.Context, method, u string, body []byte, token string) (Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Token", token)
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{"module": "regulator", "method": method, "url": u, "token": safeToken(token)}).Debug("sending regulator request")

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	return decodeBody(resp), nil
}

// decodeBody turns any HTTP answer into a Response. Non-JSON bodies become
// {"error": <first 1000 chars>}; non-object JSON is wrapped under "data".
func decodeBody(resp *http.Response) Response {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResponse(resp.StatusCode, err.Error())
	}
	var v any
	if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &v) == nil {
		if obj, ok := v.(map[string]any); ok {
			return Response{Body: obj, Status: resp.StatusCode}
		}
		return Response{Body: map[string]any{"data": v}, Status: resp.StatusCode}
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		text = emptyBodyMessage
	}
	if len(text) > maxErrorText {
		text = text[:maxErrorText]
	}
	return Response{Body: map[string]any{"error": text}, Status: resp.StatusCode}
}
