package master

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/worldline-go/klient"

	"github.com/fleetward/fleetward/internal/models"
)

// HTTPClient is the concrete MasterClient talking to the master's REST API over klient's
// HTTP transport, matching the configurable-TLS, deadline-bound client used elsewhere in
// this codebase family for outbound HTTP integrations.
type HTTPClient struct {
	baseURL string
	client  *klient.Client
	timeout time.Duration
}

// Config controls the HTTP transport.
type Config struct {
	BaseURL            string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// NewHTTPClient constructs a klient-backed MasterClient.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	opts := []klient.OptionClientFn{
		klient.WithDisableBaseURLCheck(true),
		klient.WithDisableEnvValues(true),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, klient.WithInsecureSkipVerify(true))
	}
	c, err := klient.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to construct master HTTP client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{baseURL: strings.TrimRight(cfg.BaseURL, "/"), client: c, timeout: timeout}, nil
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) Login(ctx context.Context, username, credential string) (*models.MasterToken, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{"username": {username}, "password": {credential}, "eauth": {"pam"}}
	var out struct {
		Return []struct {
			Token  string `json:"token"`
			Start  float64 `json:"start"`
			Expire float64 `json:"expire"`
			Eauth  string `json:"eauth"`
		} `json:"return"`
	}
	if err := c.postForm(ctx, "/login", form, &out); err != nil {
		return nil, err
	}
	if len(out.Return) == 0 {
		return nil, models.NewAPIError(models.KindUpstreamUnavailable, "master login returned no token")
	}
	r := out.Return[0]
	return &models.MasterToken{
		Token:  r.Token,
		Start:  int64(r.Start),
		Expire: int64(r.Expire),
		UserID: username,
		Eauth:  r.Eauth,
	}, nil
}

func (c *HTTPClient) RunJob(ctx context.Context, tok *models.MasterToken, job RunJob) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]interface{}{
		"client": string(job.Mode),
		"tgt":    job.Target,
		"tgt_type": string(job.TargetType),
		"fun":    job.Function,
		"arg":    job.Args,
		"kwarg":  job.Kwargs,
	}
	if job.BatchSize != "" {
		body["batch"] = job.BatchSize
	}
	var out map[string]interface{}
	if err := c.postJSON(ctx, "/", tok, body, &out); err != nil {
		return nil, err
	}
	return out["return"], nil
}

func (c *HTTPClient) ListKeys(ctx context.Context, tok *models.MasterToken) ([]models.MinionKey, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out struct {
		Return struct {
			MinionsPre     []string `json:"minions_pre"`
			Minions        []string `json:"minions"`
			MinionsRejected []string `json:"minions_rejected"`
			MinionsDenied   []string `json:"minions_denied"`
		} `json:"return"`
	}
	if err := c.getJSON(ctx, "/keys", tok, &out); err != nil {
		return nil, err
	}
	keys := make([]models.MinionKey, 0)
	add := func(ids []string, state string) {
		for _, id := range ids {
			keys = append(keys, models.MinionKey{ID: id, State: state})
		}
	}
	add(out.Return.MinionsPre, string(KeyUnaccepted))
	add(out.Return.Minions, string(KeyAccepted))
	add(out.Return.MinionsRejected, string(KeyRejected))
	add(out.Return.MinionsDenied, string(KeyDenied))
	return keys, nil
}

func (c *HTTPClient) AcceptKey(ctx context.Context, tok *models.MasterToken, state KeyState, id string) error {
	return c.keyAction(ctx, tok, "accept", id)
}

func (c *HTTPClient) RejectKey(ctx context.Context, tok *models.MasterToken, state KeyState, id string) error {
	return c.keyAction(ctx, tok, "reject", id)
}

func (c *HTTPClient) DeleteKey(ctx context.Context, tok *models.MasterToken, state KeyState, id string) error {
	return c.keyAction(ctx, tok, "delete", id)
}

func (c *HTTPClient) keyAction(ctx context.Context, tok *models.MasterToken, action, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var out map[string]interface{}
	return c.postJSON(ctx, fmt.Sprintf("/keys/%s/%s", action, id), tok, nil, &out)
}

func (c *HTTPClient) RefreshMinion(ctx context.Context, tok *models.MasterToken, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var out map[string]interface{}
	return c.postJSON(ctx, "/", tok, map[string]interface{}{
		"client": string(RunLocalAsync),
		"tgt":    id,
		"fun":    "saltutil.refresh_pillar",
	}, &out)
}

func (c *HTTPClient) ListenEvents(ctx context.Context, tok *models.MasterToken) (EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return nil, models.WrapAPIError(models.KindUpstreamUnavailable, "failed to build event stream request", err)
	}
	req.Header.Set("X-Auth-Token", tok.Token)
	resp, err := c.client.HTTP.Do(req)
	if err != nil {
		return nil, models.WrapAPIError(models.KindUpstreamUnavailable, "failed to connect to event stream", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, models.NewAPIError(models.KindUnauthorized, "event stream authentication failed")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, models.WrapAPIError(models.KindUpstreamUnavailable, "event stream returned non-200", fmt.Errorf("status %d", resp.StatusCode))
	}
	return &sseEventStream{body: resp.Body}, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, tok *models.MasterToken, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return models.WrapAPIError(models.KindInternalError, "failed to build request", err)
	}
	if tok != nil {
		req.Header.Set("X-Auth-Token", tok.Token)
	}
	return c.do(req, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, tok *models.MasterToken, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return models.WrapAPIError(models.KindInternalError, "failed to encode request body", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return models.WrapAPIError(models.KindInternalError, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != nil {
		req.Header.Set("X-Auth-Token", tok.Token)
	}
	return c.do(req, out)
}

func (c *HTTPClient) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return models.WrapAPIError(models.KindInternalError, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.HTTP.Do(req)
	if err != nil {
		return models.WrapAPIError(models.KindUpstreamUnavailable, "master request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return models.NewAPIError(models.KindUnauthorized, "master rejected credentials")
	}
	if resp.StatusCode >= 500 {
		return models.NewAPIError(models.KindUpstreamUnavailable, "master returned a server error")
	}
	if resp.StatusCode >= 400 {
		return models.NewAPIError(models.KindInvalidRequest, "master rejected the request")
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return models.WrapAPIError(models.KindInternalError, "failed to decode master response", err)
	}
	return nil
}

// sseEventStream adapts the master's event stream body into an EventStream by reading
// "tag: ...\ndata: ...\n\n" framed lines, mirroring the wire framing used for the
// browser-facing SSE broadcaster (§4.8) but on the inbound side.
type sseEventStream struct {
	body io.ReadCloser
}

func (s *sseEventStream) Next(ctx context.Context) (StreamEvent, error) {
	type result struct {
		ev  StreamEvent
		err error
	}
	done := make(chan result, 1)
	go func() {
		ev, err := readOneSSEFrame(s.body)
		done <- result{ev, err}
	}()
	select {
	case <-ctx.Done():
		return StreamEvent{}, ctx.Err()
	case r := <-done:
		return r.ev, r.err
	}
}

func (s *sseEventStream) Close() error { return s.body.Close() }

func readOneSSEFrame(r io.Reader) (StreamEvent, error) {
	var tag, data string
	buf := make([]byte, 1)
	var line strings.Builder
	flush := func() {
		text := line.String()
		line.Reset()
		switch {
		case strings.HasPrefix(text, "tag:"):
			tag = strings.TrimSpace(strings.TrimPrefix(text, "tag:"))
		case strings.HasPrefix(text, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(text, "data:"))
		}
	}
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				if line.Len() == 0 && tag != "" && data != "" {
					return StreamEvent{Tag: tag, Data: data}, nil
				}
				flush()
				continue
			}
			line.WriteByte(buf[0])
		}
		if err != nil {
			return StreamEvent{}, err
		}
	}
}
