package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/contracts"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// errUpstream marks a 5xx answer so it counts against the breaker
var errUpstream = errors.New("upstream server error")

// hopHeaders are connection specific and never forwarded
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ServiceClient handles HTTP communication with one upstream service
type ServiceClient struct {
	name       string
	baseURL    *url.URL
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
	// upgrades carries websocket connections, which cannot be buffered
	upgrades *httputil.ReverseProxy
}

// NewServiceClient creates a client for the upstream at baseURL
func NewServiceClient(name, baseURL string, timeout time.Duration) (*ServiceClient, error) {
	target, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid %s service url %q", name, baseURL)
	}
	return &ServiceClient{
		name:       name,
		baseURL:    target,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    utils.NewCircuitBreaker(name, 5, 30*time.Second),
		upgrades:   httputil.NewSingleHostReverseProxy(target),
	}, nil
}

// ServiceClients holds all upstream clients
type ServiceClients struct {
	Auth  *ServiceClient
	Blog  *ServiceClient
	Files *ServiceClient
}

func (scs *ServiceClients) all() []*ServiceClient {
	return []*ServiceClient{scs.Auth, scs.Blog, scs.Files}
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// ProxyRequest forwards the request to the upstream, path and query unchanged
func (sc *ServiceClient) ProxyRequest(c *gin.Context) {
	if isUpgrade(c.Request) {
		sc.upgrades.ServeHTTP(c.Writer, c.Request)
		return
	}

	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read request body")
		return
	}

	var (
		status  int
		header  http.Header
		payload []byte
	)
	err = sc.breaker.Execute(c.Request.Context(), func(ctx context.Context) error {
		req, err := sc.newRequest(ctx, c, bodyBytes)
		if err != nil {
			return err
		}
		resp, err := sc.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		status, header = resp.StatusCode, resp.Header
		if status >= http.StatusInternalServerError {
			return errUpstream
		}
		return nil
	})

	switch {
	case err == nil, errors.Is(err, errUpstream):
		// a 5xx from the upstream is relayed as is
	case errors.Is(err, utils.ErrCircuitOpen), errors.Is(err, utils.ErrTooManyRequests):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, fmt.Sprintf("%s service temporarily unavailable", sc.name))
		return
	default:
		logrus.WithField("upstream", sc.name).WithError(err).Warn("Proxy request failed")
		utils.ErrorResponse(c, http.StatusBadGateway, fmt.Sprintf("Failed to communicate with %s service", sc.name))
		return
	}

	for key, values := range header {
		// CORS is answered by the gateway itself
		if isHopHeader(key) || strings.HasPrefix(http.CanonicalHeaderKey(key), "Access-Control-") {
			continue
		}
		for _, value := range values {
			c.Writer.Header().Add(key, value)
		}
	}
	c.Data(status, header.Get("Content-Type"), payload)
}

func (sc *ServiceClient) newRequest(ctx context.Context, c *gin.Context, body []byte) (*http.Request, error) {
	target := *sc.baseURL
	target.Path = sc.baseURL.Path + c.Request.URL.Path
	target.RawQuery = c.Request.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, c.Request.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for key, values := range c.Request.Header {
		if isHopHeader(key) {
			continue
		}
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if id := c.GetString("request_id"); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	req.Header.Set("X-Forwarded-For", c.ClientIP())
	return req, nil
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, key) {
			return true
		}
	}
	return false
}

// HealthCheck checks if the upstream answers /health
func (sc *ServiceClient) HealthCheck(ctx context.Context) error {
	return sc.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.baseURL.String()+"/health", nil)
		if err != nil {
			return fmt.Errorf("failed to create health check request: %w", err)
		}
		resp, err := sc.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("health check request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("service returned status %d", resp.StatusCode)
		}
		return nil
	})
}

// rpcPinger reaches the RPC-only services
type rpcPinger interface {
	SendAs(ctx context.Context, pattern string, payload any, tenantID string, out any) error
}

// ServiceStatus is the health of one dependency
type ServiceStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Breaker string `json:"breaker,omitempty"`
}

// GetServiceStatus checks every HTTP upstream and RPC service concurrently
func (scs *ServiceClients) GetServiceStatus(ctx context.Context, rpc rpcPinger) map[string]ServiceStatus {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		status = make(map[string]ServiceStatus)
	)
	record := func(name string, s ServiceStatus) {
		mu.Lock()
		status[name] = s
		mu.Unlock()
	}

	for _, sc := range scs.all() {
		wg.Add(1)
		go func(sc *ServiceClient) {
			defer wg.Done()
			s := ServiceStatus{Healthy: true, Breaker: string(sc.breaker.GetState())}
			if err := sc.HealthCheck(ctx); err != nil {
				s.Healthy, s.Error = false, err.Error()
			}
			record(sc.name+"_service", s)
		}(sc)
	}

	if rpc != nil {
		for name, pattern := range map[string]string{"tenant_service": contracts.TenantPing, "users_service": contracts.UsersPing} {
			wg.Add(1)
			go func(name, pattern string) {
				defer wg.Done()
				var pong contracts.Pong
				if err := rpc.SendAs(ctx, pattern, nil, "", &pong); err != nil {
					record(name, ServiceStatus{Error: err.Error()})
					return
				}
				record(name, ServiceStatus{Healthy: pong.Status == "ok"})
			}(name, pattern)
		}
	}

	wg.Wait()
	return status
}
