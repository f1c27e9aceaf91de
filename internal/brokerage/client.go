package brokerage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
)

// Credentials are the login inputs. OTP is only sent when the server asks
// for a second factor.
type Credentials struct {
	Email    string
	Password string
	OTP      string
}

// ClientConfig tunes the HTTP client. Zero values take the defaults below.
type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	RatePerSecond  float64
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
}

const (
	defaultTimeout        = 30 * time.Second
	defaultRatePerSecond  = 5
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 2 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Client talks JSON over HTTP to the brokerage API. It implements Source and
// SecuritySource once a session token is set.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	timeout        time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	token          string
	log            zerolog.Logger
}

var (
	_ Source         = (*Client)(nil)
	_ SecuritySource = (*Client)(nil)
)

// NewClient creates a brokerage client. Requests are paced by a token bucket
// of RatePerSecond with a burst of one.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRatePerSecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:     cfg.HTTPClient,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		timeout:        cfg.Timeout,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		log:            log.With().Str("component", "brokerage").Logger(),
	}
}

// SetToken installs a bearer token obtained from Login or the token cache.
func (c *Client) SetToken(token string) {
	c.token = token
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       string `json:"error"`
}

const otpRequired = "otp_required"

// Login performs the password step and, when the server answers
// otp_required, the second-factor step. On success the token is installed on
// the client and returned as a Session.
func (c *Client) Login(ctx context.Context, creds Credentials) (Session, error) {
	resp, status, err := c.postLogin(ctx, loginRequest{Email: creds.Email, Password: creds.Password})
	if err != nil {
		return Session{}, err
	}

	if status == http.StatusUnauthorized && resp.Error == otpRequired {
		if creds.OTP == "" {
			return Session{}, fmt.Errorf("%w: %w", apperrors.ErrAuthentication, apperrors.ErrSecondFactorRequired)
		}
		c.log.Debug().Msg("second factor requested")
		resp, status, err = c.postLogin(ctx, loginRequest{Email: creds.Email, Password: creds.Password, OTP: creds.OTP})
		if err != nil {
			return Session{}, err
		}
	}

	if status != http.StatusOK || resp.AccessToken == "" {
		msg := resp.Error
		if msg == "" {
			msg = http.StatusText(status)
		}
		return Session{}, fmt.Errorf("%w: %s", apperrors.ErrAuthentication, msg)
	}

	c.SetToken(resp.AccessToken)

	session := Session{AccessToken: resp.AccessToken}
	if resp.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return session, nil
}

func (c *Client) postLogin(ctx context.Context, body loginRequest) (loginResponse, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return loginResponse{}, 0, err
	}

	data, status, err := c.do(ctx, http.MethodPost, "/auth/login", nil, payload)
	if err != nil {
		return loginResponse{}, status, fmt.Errorf("%w: %w", apperrors.ErrAuthentication, err)
	}

	var resp loginResponse
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil && status == http.StatusOK {
			return loginResponse{}, status, fmt.Errorf("%w: malformed login response: %w", apperrors.ErrAuthentication, err)
		}
	}
	return resp, status, nil
}

// CheckSession makes one authenticated request with the installed token. A
// rejected token returns ErrAuthentication.
func (c *Client) CheckSession(ctx context.Context) error {
	data, status, err := c.do(ctx, http.MethodGet, "/accounts", nil, nil)
	if err != nil {
		return err
	}
	return statusError(status, data)
}

// ListAccounts returns every account visible to the session.
func (c *Client) ListAccounts(ctx context.Context) ([]RawRecord, error) {
	return c.getRecords(ctx, "/accounts", nil)
}

// ListPositions returns the current holdings of one account.
func (c *Client) ListPositions(ctx context.Context, accountID string) ([]RawRecord, error) {
	return c.getRecords(ctx, "/accounts/"+url.PathEscape(accountID)+"/positions", nil)
}

// ListHistoricalValuations returns daily valuation points for rangeSpec ("1y" etc).
func (c *Client) ListHistoricalValuations(ctx context.Context, accountID, rangeSpec string) ([]RawRecord, error) {
	if rangeSpec == "" {
		rangeSpec = DefaultHistoryRange
	}
	return c.getRecords(ctx, "/accounts/"+url.PathEscape(accountID)+"/history", url.Values{"range": {rangeSpec}})
}

// ListActivities returns the account's activity feed.
func (c *Client) ListActivities(ctx context.Context, accountID string) ([]RawRecord, error) {
	return c.getRecords(ctx, "/accounts/"+url.PathEscape(accountID)+"/activities", nil)
}

// GetSecurity returns the descriptive record for one security.
func (c *Client) GetSecurity(ctx context.Context, securityID string) (RawRecord, error) {
	data, status, err := c.do(ctx, http.MethodGet, "/securities/"+url.PathEscape(securityID), nil, nil)
	if err != nil {
		return nil, err
	}
	if err := statusError(status, data); err != nil {
		return nil, err
	}
	return DecodeRecord(data)
}

func (c *Client) getRecords(ctx context.Context, path string, query url.Values) ([]RawRecord, error) {
	data, status, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	if err := statusError(status, data); err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return DecodeRecords(data)
}

// statusError maps a non-retryable, non-2xx answer onto an error.
func statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", apperrors.ErrAuthentication, status)
	default:
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return fmt.Errorf("brokerage error %d: %s", status, snippet)
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// do sends one request, waiting on the rate limiter before every attempt and
// retrying 429 and 5xx answers with exponential backoff. Each attempt is
// bounded by the client timeout. The body and status of the final answer are
// returned; transport errors and an exhausted retry budget are errors.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	backoff := c.initialBackoff
	var lastStatus int

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			c.log.Debug().Str("path", path).Int("attempt", attempt).Int("status", lastStatus).Dur("backoff", backoff).Msg("retrying request")
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}

		data, status, err := c.attempt(ctx, method, target, body)
		if err != nil {
			return nil, 0, err
		}
		if retryable(status) {
			lastStatus = status
			continue
		}
		return data, status, nil
	}

	return nil, lastStatus, fmt.Errorf("%w: %s %s gave status %d after %d attempts",
		apperrors.ErrBrokerageUnavailable, method, path, lastStatus, c.maxAttempts)
}

func (c *Client) attempt(ctx context.Context, method, target string, body []byte) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, 0, fmt.Errorf("%s %s timed out after %s: %w", method, target, c.timeout, err)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}
