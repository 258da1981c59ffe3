package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPResponse is the decoded result of a gateway call. Raw always holds the
// body as received so callers can persist it for audit.
type HTTPResponse struct {
	StatusCode int
	Raw        json.RawMessage
	Body       map[string]interface{}
}

var defaultClient = &http.Client{Timeout: 30 * time.Second}

// PostJSON sends a POST request with a JSON body and the given headers.
// Non-2xx responses are returned without error; the caller classifies them.
func PostJSON(ctx context.Context, client *http.Client, url string, payload interface{}, headers map[string]string) (*HTTPResponse, error) {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("PostJSON: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("PostJSON: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req)
}

// GetJSON sends a GET request with the given headers.
func GetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string) (*HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("GetJSON: build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req)
}

func do(client *http.Client, req *http.Request) (*HTTPResponse, error) {
	if client == nil {
		client = defaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	result := &HTTPResponse{StatusCode: resp.StatusCode}
	if len(body) == 0 {
		result.Raw = json.RawMessage("null")
		return result, nil
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Not JSON; keep the text so it still lands in the audit payload.
		quoted, _ := json.Marshal(string(body))
		result.Raw = quoted
		return result, nil
	}
	result.Raw = json.RawMessage(body)
	result.Body = decoded
	return result, nil
}

// StringAt walks nested JSON objects and returns the string found at path.
// Numbers are formatted without exponent so numeric ids survive.
func StringAt(m map[string]interface{}, path ...string) string {
	var cur interface{} = m
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur = obj[key]
	}
	switch v := cur.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
