// Package http provides the HTTP transport used by the flow service
// client, with bounded retries for reads, credential application and
// replay, interceptors, and optional response caching.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/thammuio/flowgate/internal/constants"
	"github.com/thammuio/flowgate/pkg/flow"
)

// Credentials attaches authentication to outgoing requests. Refresh is
// called once after an unauthorized response; credentials that cannot
// be re-acquired return an error and the 401 surfaces to the caller.
type Credentials interface {
	Apply(ctx context.Context, header http.Header) error
	Refresh(ctx context.Context) error
}

// Request represents one API request.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
}

// Response represents an API response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client is the HTTP client for the flow service API. Reads retry on
// transient failures; mutations are sent exactly once, so a conflict or
// timeout is reported rather than silently re-issued.
type Client struct {
	baseURL          string
	credentials      Credentials
	retryingClient   *retryablehttp.Client
	directClient     *retryablehttp.Client
	transport        *http.Transport
	logger           flow.Logger
	debug            bool
	userAgent        string
	requestedBy      string
	proxyContextPath string
	interceptors     *flow.InterceptorChain
	cacheManager     *flow.CacheManager
	cachePolicy      *flow.CachingPolicy
	cacheTTL         time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger used for debug output.
func WithLogger(logger flow.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request/response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithRetryConfig tunes retries for read requests.
func WithRetryConfig(maxRetries int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.retryingClient.RetryMax = maxRetries
		c.retryingClient.RetryWaitMin = waitMin
		c.retryingClient.RetryWaitMax = waitMax
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRequestedBy overrides the X-Requested-By value sent on mutations.
func WithRequestedBy(requestedBy string) Option {
	return func(c *Client) {
		c.requestedBy = requestedBy
	}
}

// WithProxyContextPath sets the X-ProxyContextPath header on every
// request, for gateways that rewrite paths.
func WithProxyContextPath(path string) Option {
	return func(c *Client) {
		c.proxyContextPath = path
	}
}

// WithTLSConfig replaces the TLS configuration of the underlying
// transport.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(c *Client) {
		c.transport.TLSClientConfig = tlsConfig
	}
}

// WithInterceptors attaches an interceptor chain.
func WithInterceptors(chain *flow.InterceptorChain) Option {
	return func(c *Client) {
		c.interceptors = chain
	}
}

// WithCache enables response caching for requests the policy admits.
func WithCache(manager *flow.CacheManager, policy *flow.CachingPolicy) Option {
	return func(c *Client) {
		c.cacheManager = manager
		c.cachePolicy = policy
	}
}

// WithCacheTTL sets the lifetime of cached responses.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithHTTPTimeout overrides the per-request timeout. Both executors share
// one underlying client, so the timeout applies to reads and mutations
// alike.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.retryingClient.HTTPClient.Timeout = timeout
			c.directClient.HTTPClient.Timeout = timeout
		}
	}
}

// NewClient creates an HTTP client for the given API base URL. A nil
// credentials value sends unauthenticated requests.
func NewClient(baseURL string, credentials Credentials, opts ...Option) *Client {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		transport = &http.Transport{}
	}

	transport = transport.Clone()

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   constants.DefaultHTTPTimeout,
	}

	retrying := retryablehttp.NewClient()
	retrying.HTTPClient = httpClient
	retrying.RetryMax = constants.DefaultRetryMax
	retrying.RetryWaitMin = constants.DefaultRetryWaitMin
	retrying.RetryWaitMax = constants.DefaultRetryWaitMax
	retrying.Logger = nil
	retrying.ErrorHandler = retryablehttp.PassthroughErrorHandler

	direct := retryablehttp.NewClient()
	direct.HTTPClient = httpClient
	direct.RetryMax = 0
	direct.Logger = nil
	direct.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		credentials:    credentials,
		retryingClient: retrying,
		directClient:   direct,
		transport:      transport,
		userAgent:      constants.ClientName,
		requestedBy:    constants.ClientName,
		cacheTTL:       constants.DefaultCacheTTL,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Do executes the request and returns the response. Error statuses
// return both the response and a typed error, so callers can inspect
// the body alongside the error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	bodyBytes, err := marshalBody(req.Body)
	if err != nil {
		return nil, err
	}

	cacheKey := c.cacheKeyFor(req)
	if cacheKey != "" {
		if entry, cacheErr := c.cacheManager.GetEntry(ctx, cacheKey); cacheErr == nil {
			return &Response{
				StatusCode: http.StatusOK,
				Headers:    http.Header{"X-Cache": []string{"HIT"}},
				Body:       entry.Data,
			}, nil
		}
	}

	resp, err := c.send(ctx, req, bodyBytes, true)
	if err != nil {
		return resp, err
	}

	if cacheKey != "" && resp.StatusCode == http.StatusOK {
		_ = c.cacheManager.SetWithETag(ctx, cacheKey, resp.Body, resp.Headers.Get("ETag"), c.cacheTTL)
	}

	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// DeleteWithQuery performs a DELETE request carrying query parameters,
// used for revisioned deletes.
func (c *Client) DeleteWithQuery(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path, Query: query})
}

func (c *Client) send(ctx context.Context, req *Request, bodyBytes []byte, allowReplay bool) (*Response, error) {
	httpReq, err := c.buildRequest(ctx, req, bodyBytes)
	if err != nil {
		return nil, err
	}

	var interceptReq *flow.Request

	if c.interceptors != nil {
		interceptReq = &flow.Request{
			Method:   req.Method,
			Path:     req.Path,
			Headers:  httpReq.Header,
			Body:     bodyBytes,
			Metadata: map[string]interface{}{},
		}

		if err := c.interceptors.ExecuteRequestInterceptors(ctx, interceptReq); err != nil {
			return nil, err
		}
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method": req.Method,
			"url":    httpReq.URL.String(),
		})
	}

	httpResp, err := c.executorFor(req.Method).Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = httpResp.Body.Close()
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// One refresh-and-replay cycle on 401. Credentials that cannot be
	// re-acquired fail Refresh and the 401 falls through below.
	if httpResp.StatusCode == http.StatusUnauthorized && allowReplay && c.credentials != nil {
		if refreshErr := c.credentials.Refresh(ctx); refreshErr == nil {
			return c.send(ctx, req, bodyBytes, false)
		}
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status_code": httpResp.StatusCode,
			"url":         httpReq.URL.String(),
		})
	}

	response := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
	}

	var apiErr error
	if httpResp.StatusCode >= http.StatusBadRequest {
		apiErr = flow.NewAPIError(req.Method, req.Path, httpResp.StatusCode, body)
	}

	if c.interceptors != nil {
		interceptResp := &flow.Response{
			StatusCode: httpResp.StatusCode,
			Headers:    httpResp.Header,
			Body:       body,
			Error:      apiErr,
		}

		if interceptErr := c.interceptors.ExecuteResponseInterceptors(ctx, interceptReq, interceptResp); interceptErr != nil {
			return response, interceptErr
		}
	}

	if apiErr != nil {
		return response, apiErr
	}

	return response, nil
}

func (c *Client) buildRequest(ctx context.Context, req *Request, bodyBytes []byte) (*retryablehttp.Request, error) {
	requestURL := c.baseURL + req.Path

	var rawBody interface{}
	if bodyBytes != nil {
		rawBody = bodyBytes
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, requestURL, rawBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if len(req.Query) > 0 {
		httpReq.URL.RawQuery = req.Query.Encode()
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	if bodyBytes != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if !isReadMethod(req.Method) {
		httpReq.Header.Set(constants.HeaderRequestedBy, c.requestedBy)
	}

	if c.proxyContextPath != "" {
		httpReq.Header.Set(constants.HeaderProxyContextPath, c.proxyContextPath)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if c.credentials != nil {
		if err := c.credentials.Apply(ctx, httpReq.Header); err != nil {
			return nil, fmt.Errorf("failed to apply credentials: %w", err)
		}
	}

	return httpReq, nil
}

// executorFor routes reads through the retrying client and everything
// else through the single-attempt client.
func (c *Client) executorFor(method string) *retryablehttp.Client {
	if isReadMethod(method) {
		return c.retryingClient
	}

	return c.directClient
}

func (c *Client) cacheKeyFor(req *Request) string {
	if c.cacheManager == nil || c.cachePolicy == nil {
		return ""
	}

	if !c.cachePolicy.ShouldCache(req.Method, req.Path, http.StatusOK) {
		return ""
	}

	return c.cacheManager.GetCacheKey(req.Method, req.Path, flattenQuery(req.Query))
}

func isReadMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func marshalBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	if raw, ok := body.([]byte); ok {
		return raw, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	return data, nil
}

func flattenQuery(query url.Values) map[string]string {
	if len(query) == 0 {
		return nil
	}

	params := make(map[string]string, len(query))
	for key, values := range query {
		params[key] = strings.Join(values, ",")
	}

	return params
}
