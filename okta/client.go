package okta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/utils"
)

// Page size limits matching what the Okta API allows per endpoint
const (
	appPageLimit    = 1000
	userPageLimit   = 200
	devicePageLimit = 1000
)

// ClientAPI is the surface of the Okta Admin API the toolkit uses
type ClientAPI interface {
	ListApplications(ctx context.Context) ([]Application, error)
	ListApplicationUsers(ctx context.Context, appID string) ([]AppUser, error)
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListDevices(ctx context.Context) ([]Device, error)
	ListDeviceUsers(ctx context.Context, deviceID string) ([]DeviceUser, error)
	ListUserFactors(ctx context.Context, userID string) ([]Factor, error)
	DeleteFactor(ctx context.Context, userID, factorID string) error
	EnrollPushFactor(ctx context.Context, userID string) (*FactorEnrollment, error)
}

// APIError - a non-2xx response from the Okta API
type APIError struct {
	StatusCode int
	Code       string
	Summary    string
}

func (e *APIError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("okta API error %d (%s): %s", e.StatusCode, e.Code, e.Summary)
	}
	return fmt.Sprintf("okta API error %d", e.StatusCode)
}

// IsNotFound reports whether err is an Okta 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsPermanent reports whether err is a non-retryable client error (403, 404
// and friends) that should be logged and skipped rather than retried
func IsPermanent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusTooManyRequests
}

// Client is a hand-rolled Okta Admin API client. Pagination and retry are
// explicit: the retrying HTTP client handles transient failures, and
// collectPages walks rel="next" links page by page.
type Client struct {
	baseURL string
	token   string
	client  *utils.HTTPClient
	limiter *rate.Limiter
}

// NewClient creates an Okta Admin API client. requestsPerSec throttles calls
// below the org's rate limit; zero or negative selects a conservative default.
func NewClient(baseURL, token string, requestsPerSec float64) *Client {
	if requestsPerSec <= 0 {
		requestsPerSec = 10
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  utils.NewHTTPClient(60*time.Second, nil),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

// buildURL constructs an API URL under /api/v1 with optional query params
func (c *Client) buildURL(elem []string, query url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse Okta org URL")
	}
	u.Path = path.Join(append([]string{u.Path, "api", "v1"}, elem...)...)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// doRequest performs one API call and returns the body and headers. Non-2xx
// responses become *APIError values so callers can distinguish permanent
// failures from transport errors.
func (c *Client) doRequest(ctx context.Context, method, rawURL string, body io.Reader) ([]byte, http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "SSWS "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if resp != nil {
			// retries exhausted on a 429/5xx; surface it as an API error
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, nil, &APIError{StatusCode: resp.StatusCode, Summary: "retries exhausted"}
		}
		return nil, nil, errors.Wrapf(err, "%s %s", method, rawURL)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			ErrorCode    string `json:"errorCode"`
			ErrorSummary string `json:"errorSummary"`
		}
		if json.Unmarshal(respBody, &payload) == nil {
			apiErr.Code = payload.ErrorCode
			apiErr.Summary = payload.ErrorSummary
		}
		return nil, nil, apiErr
	}

	return respBody, resp.Header, nil
}

// nextLink extracts the rel="next" URL from an RFC 5988 Link header, if any
func nextLink(h http.Header) string {
	for _, link := range h.Values("Link") {
		for _, part := range strings.Split(link, ",") {
			segments := strings.Split(part, ";")
			if len(segments) < 2 {
				continue
			}
			target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
			for _, param := range segments[1:] {
				if strings.TrimSpace(param) == `rel="next"` {
					return target
				}
			}
		}
	}
	return ""
}

// collectPages walks rel="next" links from startURL, handing each page body
// to accumulate, until the provider stops returning a next link
func (c *Client) collectPages(ctx context.Context, startURL string, accumulate func(body []byte) error) error {
	pageURL := startURL
	for page := 1; pageURL != ""; page++ {
		body, headers, err := c.doRequest(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return errors.Wrapf(err, "fetch page %d", page)
		}
		if err := accumulate(body); err != nil {
			return errors.Wrapf(err, "decode page %d", page)
		}
		pagesFetched.Inc()
		pageURL = nextLink(headers)
	}
	return nil
}

var _ ClientAPI = (*Client)(nil)
