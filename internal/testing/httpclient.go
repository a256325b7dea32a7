package testing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestClient drives an http.Handler through a real test server
type TestClient struct {
	Server *httptest.Server
	// Headers are sent with every request
	Headers map[string]string
}

// NewTestClient starts a test server for handler; it is closed with the test
func NewTestClient(t *testing.T, handler http.Handler) *TestClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &TestClient{
		Server:  server,
		Headers: map[string]string{},
	}
}

// FromIP returns a copy of the client that presents ip as the caller address
func (tc *TestClient) FromIP(ip string) *TestClient {
	headers := make(map[string]string, len(tc.Headers)+1)
	for k, v := range tc.Headers {
		headers[k] = v
	}
	headers["X-Real-IP"] = ip
	return &TestClient{Server: tc.Server, Headers: headers}
}

// Do performs an HTTP request. A []byte or string body is sent as is,
// anything else is JSON encoded.
func (tc *TestClient) Do(method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reqBody = bytes.NewReader(b)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, tc.Server.URL+path, reqBody)
	if err != nil {
		return nil, err
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range tc.Headers {
		req.Header.Set(k, v)
	}

	return tc.Server.Client().Do(req)
}

// Get performs a GET request
func (tc *TestClient) Get(path string) (*http.Response, error) {
	return tc.Do(http.MethodGet, path, nil)
}

// Post performs a POST request
func (tc *TestClient) Post(path string, body interface{}) (*http.Response, error) {
	return tc.Do(http.MethodPost, path, body)
}

// Options performs an OPTIONS request
func (tc *TestClient) Options(path string) (*http.Response, error) {
	return tc.Do(http.MethodOptions, path, nil)
}

// ParseResponse parses a JSON response body whatever the status
func ParseResponse(t *testing.T, resp *http.Response, v interface{}) error {
	t.Helper()

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode status %d body %q: %w", resp.StatusCode, string(data), err)
	}
	return nil
}

// AssertStatus asserts response status code
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()

	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status %d, got %d. Body: %s", expected, resp.StatusCode, string(body))
	}
}
