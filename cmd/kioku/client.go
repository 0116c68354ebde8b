package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// defaultHTTPClient is used by commands that talk to a running server. Query calls may wait on
// the model, so the timeout is generous.
var defaultHTTPClient = &http.Client{
	Timeout: 150 * time.Second,
}

// apiClient provides HTTP access to a running kioku server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    defaultHTTPClient,
	}
}

// do sends body as JSON (when non-nil) and decodes a 2xx response into dest (when non-nil).
func (c *apiClient) do(method, path string, body, dest any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return kerr.Wrap(err, kerr.CodeCLIInputInvalid, "encode request")
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, rdr)
	if err != nil {
		return kerr.Wrap(err, kerr.CodeCLIInputInvalid, "build request", kerr.Field("url", c.baseURL+path))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return kerr.Wrap(err, kerr.CodeCLIRequestFailure, "kioku server is not running (connection refused)",
				kerr.Field("url", c.baseURL))
		}
		return kerr.Wrap(err, kerr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return kerr.New(kerr.CodeCLIRequestFailure, "server returned an error",
			kerr.Field("status", resp.StatusCode), kerr.Field("error", msg))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return kerr.Wrap(err, kerr.CodeCLIResponseInvalid, "invalid response")
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
