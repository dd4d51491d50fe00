// Package restclient is a Go SDK for the REST front-end in
// internal/restapi, generalized from the teacher's internal/client
// package (same Client{baseURL, httpClient} shape) from a single-node KV
// API to this system's multi-store REST surface
// (create/get/put/dput/remove/destroy, all scoped by store_id). A 404
// response is reported as ErrStoreNotFound; transport and decoding
// failures are returned as wrapped errors.
package restclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Client talks to one dstore REST front-end process, which may host
// several stores distinguished by store_id.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. baseURL looks like "http://localhost:8080".
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Entry is one key/value/version triple, as carried in a response's
// data list.
type Entry struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Version *int64 `json:"version"`
}

type envelope struct {
	Result  bool    `json:"result"`
	StoreID string  `json:"store_id"`
	Data    []Entry `json:"data"`
}

// Create provisions a store under sid.
func (c *Client) Create(ctx context.Context, sid, root, home string, cacheSize int) error {
	form := url.Values{"root": {root}, "home": {home}, "size": {strconv.Itoa(cacheSize)}}
	env, err := c.do(ctx, http.MethodPost, "/create/"+sid, form)
	if err != nil {
		return err
	}
	if !env.Result {
		return fmt.Errorf("restclient: create %q failed", sid)
	}
	return nil
}

// Destroy tears down the store under sid.
func (c *Client) Destroy(ctx context.Context, sid string) error {
	env, err := c.do(ctx, http.MethodDelete, "/destroy/"+sid, nil)
	if err != nil {
		return err
	}
	if !env.Result {
		return fmt.Errorf("restclient: destroy %q failed", sid)
	}
	return nil
}

// Get fetches a single value. found is false if uri was not present
// anywhere in the federation.
func (c *Client) Get(ctx context.Context, sid, uri string) (value string, found bool, err error) {
	env, err := c.do(ctx, http.MethodGet, "/get/"+sid+uri, nil)
	if err != nil {
		return "", false, err
	}
	if !env.Result || len(env.Data) == 0 {
		return "", false, nil
	}
	return env.Data[0].Value, true, nil
}

// GetAll resolves a wildcard pattern (one containing '*') across the
// federation.
func (c *Client) GetAll(ctx context.Context, sid, pattern string) ([]Entry, error) {
	env, err := c.do(ctx, http.MethodGet, "/get/"+sid+pattern, nil)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Put writes value at uri, returning its new version.
func (c *Client) Put(ctx context.Context, sid, uri, value string) (int64, error) {
	form := url.Values{"value": {value}}
	env, err := c.do(ctx, http.MethodPut, "/put/"+sid+uri, form)
	if err != nil {
		return 0, err
	}
	if !env.Result || len(env.Data) == 0 || env.Data[0].Version == nil {
		return 0, fmt.Errorf("restclient: put %q failed", uri)
	}
	return *env.Data[0].Version, nil
}

// DPut delta-merges patch (a JSON object, or an inline "k=v&k2=v2" patch
// string) into the document at uri, returning its new version.
func (c *Client) DPut(ctx context.Context, sid, uri, patch string) (int64, error) {
	form := url.Values{"value": {patch}}
	env, err := c.do(ctx, http.MethodPatch, "/dput/"+sid+uri, form)
	if err != nil {
		return 0, err
	}
	if !env.Result || len(env.Data) == 0 || env.Data[0].Version == nil {
		return 0, fmt.Errorf("restclient: dput %q failed", uri)
	}
	return *env.Data[0].Version, nil
}

// Remove deletes uri, returning whether it had existed.
func (c *Client) Remove(ctx context.Context, sid, uri string) (bool, error) {
	env, err := c.do(ctx, http.MethodDelete, "/remove/"+sid+uri, nil)
	if err != nil {
		return false, err
	}
	return env.Result, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) (*envelope, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("restclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrStoreNotFound
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("restclient: reading response: %w", err)
	}

	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("restclient: decoding response: %w", err)
	}
	return &env, nil
}

// ErrStoreNotFound is returned when the server has no store registered
// under the requested store_id.
var ErrStoreNotFound = fmt.Errorf("restclient: store not found")
