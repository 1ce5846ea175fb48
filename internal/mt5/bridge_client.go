package mt5

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Timeouts for bridge calls. Health probes are deliberately short so the
// watchdog never blocks a full poll cycle on a dead bridge.
const (
	healthTimeout  = 5 * time.Second
	requestTimeout = 30 * time.Second
)

// BridgeClient implements Terminal over the MT5 bridge service's REST API.
// The bridge process owns the actual terminal connection; this client just
// proxies login/read calls to it.
type BridgeClient struct {
	http *resty.Client
	log  zerolog.Logger
}

// NewBridgeClient creates a bridge client for the given base URL
func NewBridgeClient(baseURL string, log zerolog.Logger) *BridgeClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")

	return &BridgeClient{
		http: client,
		log:  log.With().Str("client", "mt5_bridge").Logger(),
	}
}

// Health probes the bridge health endpoint. Any transport error or non-200
// response counts as unhealthy.
func (c *BridgeClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	resp, err := c.http.R().SetContext(ctx).Get("/api/health")
	if err != nil {
		return fmt.Errorf("bridge health request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("bridge health returned status %d", resp.StatusCode())
	}
	return nil
}

type loginRequest struct {
	Login    int64  `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

type bridgeError struct {
	Error string `json:"error"`
}

// Login selects the active account on the bridge terminal
func (c *BridgeClient) Login(ctx context.Context, login int64, password, server string) error {
	c.log.Debug().Int64("login", login).Str("server", server).Msg("Login: calling bridge")

	var errBody bridgeError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(loginRequest{Login: login, Password: password, Server: server}).
		SetError(&errBody).
		Post("/api/login")
	if err != nil {
		return fmt.Errorf("bridge login request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bridge login failed for %d: status %d: %s", login, resp.StatusCode(), errBody.Error)
	}
	return nil
}

// AccountInfo reads the active account's live metrics
func (c *BridgeClient) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&info).
		Get("/api/account_info")
	if err != nil {
		return nil, fmt.Errorf("bridge account_info request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bridge account_info returned status %d", resp.StatusCode())
	}
	return &info, nil
}

// Positions lists open positions for the active account
func (c *BridgeClient) Positions(ctx context.Context) ([]Position, error) {
	var positions []Position
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&positions).
		Get("/api/positions")
	if err != nil {
		return nil, fmt.Errorf("bridge positions request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bridge positions returned status %d", resp.StatusCode())
	}
	return positions, nil
}

// DealsInRange fetches deal history for the active account in [from, to]
func (c *BridgeClient) DealsInRange(ctx context.Context, from, to time.Time) ([]Deal, error) {
	var deals []Deal
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("from", from.UTC().Format(time.RFC3339)).
		SetQueryParam("to", to.UTC().Format(time.RFC3339)).
		SetResult(&deals).
		Get("/api/deals")
	if err != nil {
		return nil, fmt.Errorf("bridge deals request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bridge deals returned status %d", resp.StatusCode())
	}

	c.log.Debug().Int("count", len(deals)).Time("from", from).Time("to", to).Msg("Fetched deals from bridge")
	return deals, nil
}

// Close is a no-op for the HTTP-backed client; the bridge owns the terminal session
func (c *BridgeClient) Close() {}
