package jira

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jiraharvest/pkg/config"
	"jiraharvest/pkg/errors"
	"jiraharvest/pkg/logger"
	"jiraharvest/pkg/ratelimit"
	"jiraharvest/pkg/retry"
)

// DefaultRequestTimeout bounds a single attempt.
const DefaultRequestTimeout = 30 * time.Second

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL        string
	APIVersion     string
	PageSize       int
	Fields         []string
	JQLTemplate    string
	RequestTimeout time.Duration
	UserAgent      string
	Credentials    Credentials

	// Policy is applied around every page fetch.
	Policy *retry.Policy
	// Limiter paces attempts, retries included.
	Limiter ratelimit.Limiter
	// HTTPClient is used as-is; per-attempt deadlines come from the context.
	HTTPClient *http.Client
	Logger     logger.Logger
}

// Client fetches pages of issues from the Jira search endpoint.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	headers     map[string]string
	pageSize    int
	fields      []string
	jqlTemplate string
	timeout     time.Duration
	creds       Credentials
	policy      *retry.Policy
	limiter     ratelimit.Limiter
	logger      logger.Logger
}

// NewClient creates a new Jira search client
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	policy := opts.Policy
	if policy == nil {
		policy = retry.DefaultPolicy()
		policy.Logger = log
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	fields := opts.Fields
	if len(fields) == 0 {
		fields = config.DefaultFields
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "jiraharvest/1.0"
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   SearchEndpoint(opts.BaseURL, opts.APIVersion),
		headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": userAgent,
		},
		pageSize:    opts.PageSize,
		fields:      fields,
		jqlTemplate: opts.JQLTemplate,
		timeout:     timeout,
		creds:       opts.Credentials,
		policy:      policy,
		limiter:     limiter,
		logger:      log,
	}
}

// NewClientFromConfig wires a Client from the loaded configuration.
func NewClientFromConfig(cfg *config.Config, creds Credentials, log logger.Logger) *Client {
	return NewClient(Options{
		BaseURL:        cfg.Jira.BaseURL,
		APIVersion:     cfg.Jira.APIVersion,
		PageSize:       cfg.Jira.PageSize,
		Fields:         cfg.Jira.Fields,
		JQLTemplate:    cfg.Jira.JQLTemplate,
		RequestTimeout: cfg.Jira.RequestTimeout,
		UserAgent:      cfg.Jira.UserAgent,
		Credentials:    creds,
		Policy:         retry.FromConfig(cfg.Retry, log),
		Limiter:        ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute),
		Logger:         log,
	})
}

// PageSize is the maxResults sent with every search.
func (c *Client) PageSize() int {
	return c.pageSize
}

// FetchPage returns the page of project issues starting at offset, in
// ascending creation order. Transient failures are retried according to the
// client's policy; the returned error is final.
func (c *Client) FetchPage(ctx context.Context, project string, offset int) (*Page, error) {
	url := SearchURL(c.endpoint, ProjectJQL(c.jqlTemplate, project), offset, c.pageSize, c.fields)

	c.logger.DebugWithFields("fetching page", map[string]interface{}{
		"source": project,
		"offset": offset,
	})

	page, err := retry.DoWithResult(ctx, c.policy, func(ctx context.Context) (*Page, error) {
		return c.fetchOnce(ctx, project, url)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s at offset %d: %w", project, offset, err)
	}
	return page, nil
}

// fetchOnce is one attempt: pacing, a request bounded by the per-attempt
// deadline, and classification of the outcome.
func (c *Client) fetchOnce(ctx context.Context, project, url string) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, canceled(err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	c.authenticate(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, err, "request failed")
	}
	defer resp.Body.Close()
	logger.LogRequest(c.logger, req.Method, url, resp.StatusCode, time.Since(start))

	if err := c.checkResponseStatus(project, resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, err, "failed to read response body")
	}

	return c.decodePage(url, resp.StatusCode, body)
}

func (c *Client) authenticate(req *http.Request) {
	if c.creds.Empty() {
		return
	}
	if c.creds.Email != "" {
		req.SetBasicAuth(c.creds.Email, c.creds.APIToken)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.APIToken)
}

// transportError classifies a failure below HTTP. Cancellation of the
// caller's context is final; an expired attempt deadline or any other
// connectivity problem is retryable.
func (c *Client) transportError(parent, attempt context.Context, err error, msg string) error {
	if parent.Err() != nil {
		return canceled(parent.Err())
	}

	var netErr net.Error
	timedOut := attempt.Err() == context.DeadlineExceeded ||
		(stderrors.As(err, &netErr) && netErr.Timeout())

	c.logger.WarnWithFields(msg, map[string]interface{}{
		"error":   err.Error(),
		"timeout": timedOut,
	})

	if timedOut {
		// No cause: a wrapped DeadlineExceeded reads as final to retry.
		return &errors.Error{
			Type:    errors.ErrorTypeTimeout,
			Message: fmt.Sprintf("%s: attempt exceeded %s", msg, c.timeout),
		}
	}
	return &errors.Error{
		Type:    errors.ErrorTypeNetwork,
		Message: fmt.Sprintf("%s: %v", msg, err),
	}
}

func canceled(err error) error {
	return &errors.Error{Type: errors.ErrorTypeCanceled, Message: err.Error(), Err: err}
}

// checkResponseStatus maps non-2xx responses to typed errors.
func (c *Client) checkResponseStatus(project string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	errType := errors.FromStatusCode(resp.StatusCode)
	apiErr := &errors.Error{
		Type:    errType,
		Code:    resp.StatusCode,
		Message: describeFailure(resp),
	}

	switch errType {
	case errors.ErrorTypeRateLimit:
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		logger.LogRateLimit(c.logger, project, apiErr.RetryAfter)
	case errors.ErrorTypeServerError:
		c.logger.WarnWithFields("server error", map[string]interface{}{
			"status": resp.StatusCode,
			"source": project,
		})
	default:
		c.logger.ErrorWithFields("request rejected", map[string]interface{}{
			"status":  resp.StatusCode,
			"source":  project,
			"message": apiErr.Message,
		})
	}
	return apiErr
}

// describeFailure extracts Jira's error messages from a failed response.
func describeFailure(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil {
		msgs := append([]string(nil), parsed.ErrorMessages...)
		for field, msg := range parsed.Errors {
			msgs = append(msgs, field+": "+msg)
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return fmt.Sprintf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) decodePage(url string, status int, body []byte) (*Page, error) {
	var parsed searchResponse
	err := json.Unmarshal(body, &parsed)
	if err == nil && parsed.Total == nil {
		err = stderrors.New("response has no total")
	}
	if err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse search response", map[string]interface{}{
			"url":          url,
			"status":       status,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return nil, &errors.Error{
			Type:    errors.ErrorTypeParsing,
			Code:    status,
			Message: fmt.Sprintf("failed to parse search response: %v", err),
			Err:     err,
		}
	}

	return &Page{
		StartAt:    parsed.StartAt,
		MaxResults: parsed.MaxResults,
		Total:      *parsed.Total,
		Issues:     parsed.Issues,
	}, nil
}
