package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/inboxly/mail-assistant/pkg/logger"
	"github.com/inboxly/mail-assistant/pkg/prom"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

var (
	// ErrCircuitOpen is returned without touching the network while the
	// breaker considers the processor down.
	ErrCircuitOpen = errors.New("payment gateway circuit is open")
	// ErrGatewayUnavailable is returned when all retry attempts are exhausted.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// GatewayError carries the processor's error code and HTTP status for
// non-retryable upstream failures.
type GatewayError struct {
	Status  int
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
}

// Config holds everything the adapter needs to talk to the payment
// processor. Constructed once at startup and passed in explicitly.
type Config struct {
	APIBaseURL    string
	APIKey        string
	WebhookSecret string

	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Token bucket for outbound calls. Calls block until a slot frees up.
	RequestsPerSecond float64
	Burst             int

	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	MaxConns int
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Timeout == 0 {
		out.Timeout = 30 * time.Second
	}
	if out.MaxRetries == 0 {
		out.MaxRetries = 3
	}
	if out.RetryBaseDelay == 0 {
		out.RetryBaseDelay = 200 * time.Millisecond
	}
	if out.RequestsPerSecond == 0 {
		out.RequestsPerSecond = 20
	}
	if out.Burst == 0 {
		out.Burst = int(out.RequestsPerSecond)
	}
	if out.CircuitBreakerThreshold == 0 {
		out.CircuitBreakerThreshold = 5
	}
	if out.CircuitBreakerTimeout == 0 {
		out.CircuitBreakerTimeout = 60 * time.Second
	}
	if out.MaxConns == 0 {
		out.MaxConns = 100
	}
	return &out
}

// Client is the single outbound door to the payment processor. Requests are
// form-encoded with bracketed nesting (parent[child]=v), responses are JSON.
type Client struct {
	config   *Config
	client   *fasthttp.Client
	limiter  *rate.Limiter
	breaker  *circuitBreaker
	verifier *WebhookVerifier
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.APIBaseURL == "" {
		return nil, errors.New("api base url is required")
	}
	if config.APIKey == "" {
		return nil, errors.New("api key is required")
	}

	cfg := config.withDefaults()

	httpClient := &fasthttp.Client{
		MaxConnsPerHost:     cfg.MaxConns,
		ReadTimeout:         cfg.Timeout,
		WriteTimeout:        cfg.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
	}

	c := &Client{
		config:   cfg,
		client:   httpClient,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:  newCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout),
		verifier: NewWebhookVerifier(cfg.WebhookSecret),
	}

	logger.Info("payment gateway client initialized",
		"base_url", cfg.APIBaseURL,
		"rps", cfg.RequestsPerSecond,
		"timeout", cfg.Timeout)

	return c, nil
}

// CreateCustomer registers the user with the payment processor and returns
// the processor-side customer id.
func (c *Client) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	form := url.Values{}
	form.Set("email", email)
	encodeNested(form, "metadata", metadata)

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/v1/customers", form, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CheckoutSessionParams describes a single-package checkout.
type CheckoutSessionParams struct {
	CustomerID  string
	ProductName string
	UsdAmount   float64
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

type CheckoutSession struct {
	SessionID   string
	CheckoutURL string
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("customer", p.CustomerID)
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(int64(p.UsdAmount*100), 10))
	form.Set("line_items[0][price_data][product_data][name]", p.ProductName)
	encodeNested(form, "metadata", p.Metadata)

	var resp struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/v1/checkout/sessions", form, &resp); err != nil {
		return nil, err
	}
	return &CheckoutSession{SessionID: resp.ID, CheckoutURL: resp.URL}, nil
}

// CreateBillingPortalSession returns a URL where the customer can manage
// payment methods and view invoices.
func (c *Client) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/v1/billing_portal/sessions", form, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// VerifyWebhook authenticates and parses an inbound webhook delivery. This
// is purely local; no rate limiting or breaker involved.
func (c *Client) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return c.verifier.VerifyAndParse(payload, signatureHeader)
}

// do runs one logical API call, retrying transient failures (5xx, 429,
// connection errors) with exponential backoff. Non-429 4xx responses surface
// immediately as *GatewayError.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			prom.IncGatewayRetry()
			delay := c.config.RetryBaseDelay * time.Duration(1<<(attempt-1))
			if ra := retryAfterHint(lastErr); ra > delay {
				delay = ra
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		// every attempt is a request on the wire, so every attempt takes a
		// rate-limit slot
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		if err := c.breaker.Allow(); err != nil {
			return err
		}

		status, body, retryAfter, err := c.roundTrip(ctx, method, path, form)
		if err != nil {
			c.breaker.RecordFailure()
			lastErr = err
			logger.Warn("payment gateway request failed",
				"method", method, "path", path, "attempt", attempt+1, "error", err)
			continue
		}

		if status >= 200 && status < 300 {
			c.breaker.RecordSuccess()
			if out != nil {
				if err := json.Unmarshal(body, out); err != nil {
					return fmt.Errorf("failed to decode gateway response: %w", err)
				}
			}
			return nil
		}

		gwErr := parseAPIError(status, body)
		if status == fasthttp.StatusTooManyRequests || status >= 500 {
			c.breaker.RecordFailure()
			lastErr = &retryableError{err: gwErr, retryAfter: retryAfter}
			logger.Warn("payment gateway returned retryable status",
				"method", method, "path", path, "status", status, "attempt", attempt+1)
			continue
		}

		// The processor answered; a 4xx is our fault, not an outage.
		c.breaker.RecordSuccess()
		return gwErr
	}

	return fmt.Errorf("%w: %d attempts: %v", ErrGatewayUnavailable, c.config.MaxRetries+1, lastErr)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, form url.Values) (int, []byte, time.Duration, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.APIBaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if form != nil {
		req.SetBodyString(form.Encode())
	}

	deadline := time.Now().Add(c.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, 0, fmt.Errorf("request failed: %w", err)
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	var retryAfter time.Duration
	if v := resp.Header.Peek("Retry-After"); len(v) > 0 {
		if secs, err := strconv.Atoi(string(v)); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	return resp.StatusCode(), body, retryAfter, nil
}

func parseAPIError(status int, body []byte) *GatewayError {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	code := payload.Error.Code
	if code == "" {
		code = "unknown"
	}
	return &GatewayError{Status: status, Code: code, Message: payload.Error.Message}
}

// retryableError keeps the processor's Retry-After hint attached to the
// failure so the next backoff can honor it.
type retryableError struct {
	err        error
	retryAfter time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryAfterHint(err error) time.Duration {
	var re *retryableError
	if errors.As(err, &re) {
		return re.retryAfter
	}
	return 0
}

// encodeNested writes map entries as parent[key]=value form fields.
func encodeNested(form url.Values, parent string, values map[string]string) {
	for k, v := range values {
		form.Set(parent+"["+k+"]", v)
	}
}
