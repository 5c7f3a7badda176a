// Package evolution talks to an Evolution API deployment, the collaborator
// that bridges workspaces to their WhatsApp messaging channel. Deployments
// differ in URL prefix and response shape between versions, so the client
// probes a fixed list of candidate endpoints and digs QR codes and connection
// state out of whatever payload comes back. All of that tolerance stays
// inside this package.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned when the client was built without a base URL.
var ErrNotConfigured = errors.New("evolution: base URL not configured")

// APIError carries the status and detail of a failed Evolution call.
type APIError struct {
	Operation string
	Status    int
	Detail    string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("evolution: %s failed: %s", e.Operation, e.Detail)
	}
	return fmt.Sprintf("evolution: %s failed (%d): %s", e.Operation, e.Status, e.Detail)
}

const defaultTimeout = 5 * time.Second

// Config holds the connection settings for an Evolution deployment.
type Config struct {
	BaseURL     string
	APIKey      string
	Integration string
	Timeout     time.Duration
}

// Client is a minimal Evolution API client. Instances are keyed by the
// workspace schema name so channel state survives slug renames.
type Client struct {
	baseURL     string
	apiKey      string
	integration string
	client      *http.Client
	logger      *zap.Logger
}

// NewClient builds a Client. An empty BaseURL yields a client whose calls
// all return ErrNotConfigured, so wiring stays unconditional.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		panic("logger is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	integration := strings.TrimSpace(cfg.Integration)
	if integration == "" {
		integration = "Baileys"
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		integration: integration,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Configured reports whether a base URL was provided.
func (c *Client) Configured() bool { return c.baseURL != "" }

// baseVariants lists the URL prefixes Evolution deployments are known to
// serve the API under. Order matters; the bare base wins when it works.
func (c *Client) baseVariants() []string {
	variants := []string{
		c.baseURL,
		c.baseURL + "/api",
		c.baseURL + "/v1",
		c.baseURL + "/api/v1",
		c.baseURL + "/api/v2",
		c.baseURL + "/manager/api",
	}
	seen := make(map[string]struct{}, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// expand appends path to every base variant, in probe order.
func (c *Client) expand(path string) []string {
	variants := c.baseVariants()
	urls := make([]string, 0, len(variants))
	for _, base := range variants {
		urls = append(urls, base+path)
	}
	return urls
}

// Status describes the connection state of one channel instance.
type Status struct {
	Connected bool
	Known     bool // false when the state could not be inferred
	State     string
	Details   map[string]any
}

// ConnectResult is what a create-and-connect round trip yields.
type ConnectResult struct {
	InstanceName     string
	Created          bool
	AlreadyConnected bool
	QRBase64         string
}

// Status queries the connection state of an instance. Unknown instances come
// back as State "not_created" rather than an error: a workspace that never
// connected a channel is a normal situation, not a failure.
func (c *Client) Status(ctx context.Context, instance string) (Status, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return Status{}, &APIError{Operation: "status", Detail: "instance name is required"}
	}
	if !c.Configured() {
		return Status{}, ErrNotConfigured
	}

	var endpoints []string
	for _, base := range c.baseVariants() {
		endpoints = append(endpoints,
			base+"/instance/connectionState/"+instance,
			base+"/instance/status/"+instance,
			base+"/instance/info/"+instance,
		)
	}

	var lastErr string
	sawNotFound := false
	for _, url := range endpoints {
		payload, status, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		if status < 200 || status >= 300 {
			if status == http.StatusNotFound {
				sawNotFound = true
			}
			lastErr = fmt.Sprintf("%d: %s", status, responseDetail(payload))
			continue
		}

		connected, known, state, details := inferConnectionState(payload)
		c.logger.Debug("channel status resolved",
			zap.String("instance", instance),
			zap.Bool("connected", connected),
			zap.String("state", state))
		return Status{Connected: connected, Known: known, State: state, Details: details}, nil
	}

	if sawNotFound {
		return Status{Connected: false, Known: true, State: "not_created"}, nil
	}
	return Status{}, &APIError{Operation: "status", Detail: lastErr}
}

// CreateInstance registers the instance with Evolution. An already-existing
// instance (HTTP 409) is not an error; the boolean reports whether anything
// new was created.
func (c *Client) CreateInstance(ctx context.Context, instance string) (bool, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return false, &APIError{Operation: "create", Detail: "instance name is required"}
	}
	if !c.Configured() {
		return false, ErrNotConfigured
	}

	body := map[string]any{
		"instanceName": instance,
		"qrcode":       true,
		"integration":  c.integration,
		"channel":      c.integration,
	}

	lastErr := &APIError{Operation: "create", Detail: "no endpoint responded"}
	for _, url := range c.expand("/instance/create") {
		payload, status, err := c.do(ctx, http.MethodPost, url, body)
		if err != nil {
			lastErr = &APIError{Operation: "create", Detail: err.Error()}
			continue
		}
		switch {
		case status >= 200 && status < 300:
			return true, nil
		case status == http.StatusConflict:
			return false, nil
		default:
			lastErr = &APIError{Operation: "create", Status: status, Detail: responseDetail(payload)}
		}
	}
	return false, lastErr
}

// Connect ensures the instance exists and fetches a pairing QR code. When
// the instance is already connected no QR is issued; reconnecting would
// drop the live session.
func (c *Client) Connect(ctx context.Context, instance string) (ConnectResult, error) {
	status, err := c.Status(ctx, instance)
	if err != nil {
		return ConnectResult{}, err
	}
	if status.Connected {
		return ConnectResult{InstanceName: instance, AlreadyConnected: true}, nil
	}

	created, err := c.CreateInstance(ctx, instance)
	if err != nil {
		// Some deployments preprovision instances; connect may still work.
		c.logger.Info("channel instance create failed, trying connect anyway",
			zap.String("instance", instance), zap.Error(err))
	}

	lastErr := &APIError{Operation: "connect", Detail: "no endpoint responded"}
	for _, url := range c.expand("/instance/connect/" + instance) {
		payload, code, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = &APIError{Operation: "connect", Detail: err.Error()}
			continue
		}
		if code < 200 || code >= 300 {
			lastErr = &APIError{Operation: "connect", Status: code, Detail: responseDetail(payload)}
			continue
		}

		qr := extractQRBase64(payload)
		if qr == "" {
			return ConnectResult{}, &APIError{Operation: "connect", Detail: "no QR code in response"}
		}
		return ConnectResult{InstanceName: instance, Created: created, QRBase64: stripDataURL(qr)}, nil
	}
	return ConnectResult{}, lastErr
}

// DeleteInstance disconnects and removes the instance. Endpoint names vary
// between Evolution versions, so the known candidates are tried in order
// and the last failure is reported if none succeed.
func (c *Client) DeleteInstance(ctx context.Context, instance string) error {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return &APIError{Operation: "delete", Detail: "instance name is required"}
	}
	if !c.Configured() {
		return ErrNotConfigured
	}

	type candidate struct {
		method string
		url    string
	}
	var candidates []candidate
	for _, base := range c.baseVariants() {
		candidates = append(candidates,
			candidate{http.MethodPost, base + "/instance/logout/" + instance},
			candidate{http.MethodPost, base + "/instance/disconnect/" + instance},
			candidate{http.MethodPost, base + "/instance/close/" + instance},
			candidate{http.MethodDelete, base + "/instance/delete/" + instance},
		)
	}

	var lastErr string
	for _, candidate := range candidates {
		var body map[string]any
		if candidate.method == http.MethodPost {
			body = map[string]any{}
		}
		payload, status, err := c.do(ctx, candidate.method, candidate.url, body)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		if status >= 200 && status < 300 {
			c.logger.Info("channel instance removed",
				zap.String("instance", instance), zap.String("url", candidate.url))
			return nil
		}
		lastErr = fmt.Sprintf("%d: %s", status, responseDetail(payload))
	}
	return &APIError{Operation: "delete", Detail: lastErr}
}

// do issues one request and decodes the body. Non-JSON bodies are wrapped
// in a map so callers can treat every payload uniformly.
func (c *Client) do(ctx context.Context, method, url string, body any) (any, int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		payload = map[string]any{"text": strings.TrimSpace(string(raw))}
	}
	return payload, resp.StatusCode, nil
}

// extractQRBase64 digs a QR image out of a payload. Evolution versions nest
// it under different keys, so the named candidates are tried first and then
// the whole payload is walked.
func extractQRBase64(payload any) string {
	switch value := payload.(type) {
	case string:
		trimmed := strings.TrimSpace(value)
		// Long strings are image data; short ones are state words like "qr".
		if len(trimmed) > 50 {
			return trimmed
		}
	case map[string]any:
		for _, key := range []string{"base64", "qrcode", "qr", "qrCode", "qr_code", "qrcodeBase64", "qrBase64"} {
			if nested, ok := value[key]; ok {
				if found := extractQRBase64(nested); found != "" {
					return found
				}
			}
		}
		for _, nested := range value {
			if found := extractQRBase64(nested); found != "" {
				return found
			}
		}
	case []any:
		for _, item := range value {
			if found := extractQRBase64(item); found != "" {
				return found
			}
		}
	}
	return ""
}

func stripDataURL(value string) string {
	const prefix = "data:image/png;base64,"
	if strings.HasPrefix(strings.ToLower(value), prefix) {
		return value[len(prefix):]
	}
	return value
}

// inferConnectionState normalizes the many status payload shapes into one
// verdict. known is false when neither a boolean nor a recognized state word
// was present.
func inferConnectionState(payload any) (connected, known bool, state string, details map[string]any) {
	details = map[string]any{}

	root, _ := payload.(map[string]any)
	if nested, ok := root["instance"].(map[string]any); ok {
		root = nested
	}
	if root == nil {
		return false, false, "", details
	}

	for _, key := range []string{"state", "status", "connectionState", "connection_status", "connectionStatus", "instanceStatus"} {
		if value, ok := root[key]; ok && value != nil {
			state = strings.TrimSpace(fmt.Sprint(value))
			break
		}
	}

	for _, key := range []string{"connected", "isConnected", "online", "logged", "authenticated"} {
		if value, ok := root[key].(bool); ok {
			return value, true, state, pickDetails(root, details)
		}
	}

	switch strings.ToLower(state) {
	case "open", "connected", "online", "ready", "authenticated", "logged", "active":
		return true, true, state, pickDetails(root, details)
	case "close", "closed", "disconnected", "offline", "error", "connecting", "qr", "qrcode":
		return false, true, state, pickDetails(root, details)
	}

	// A QR in the payload means the instance is still waiting to pair.
	for _, key := range []string{"qr", "qrcode", "qrCode", "qr_code", "base64", "qrcodeBase64"} {
		if _, ok := root[key]; ok {
			return false, true, state, pickDetails(root, details)
		}
	}
	return false, false, state, pickDetails(root, details)
}

func pickDetails(root, details map[string]any) map[string]any {
	for _, key := range []string{"number", "phone", "profileName", "pushName", "owner", "jid"} {
		if value, ok := root[key]; ok && value != nil {
			details[key] = value
		}
	}
	return details
}

func responseDetail(payload any) string {
	if root, ok := payload.(map[string]any); ok {
		for _, key := range []string{"message", "msg", "error", "detail", "text"} {
			if value, ok := root[key]; ok && value != nil {
				detail := strings.TrimSpace(fmt.Sprint(value))
				if detail != "" {
					if len(detail) > 300 {
						detail = detail[:300]
					}
					return detail
				}
			}
		}
	}
	return "no response detail"
}
