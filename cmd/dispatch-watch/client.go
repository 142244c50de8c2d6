// README: Minimal HTTP client for the delivery request endpoints.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"petmarket/internal/modules/dispatch"
	"petmarket/internal/types"
)

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{baseURL: baseURL, token: token, http: &http.Client{Timeout: timeout}}
}

// statusError is a non-2xx answer from the API.
type statusError struct {
	Code    int
	Message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

func (c *apiClient) Pending(ctx context.Context, driverID types.ID) ([]dispatch.DeliveryRequest, error) {
	var out struct {
		Requests []dispatch.DeliveryRequest `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/drivers/"+string(driverID)+"/delivery-requests", nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

func (c *apiClient) Act(ctx context.Context, requestID types.ID, action dispatch.Action) (*dispatch.DeliveryRequest, error) {
	var out dispatch.DeliveryRequest
	body := map[string]string{"action": string(action)}
	if err := c.do(ctx, http.MethodPost, "/api/delivery-requests/"+string(requestID)+"/action", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &statusError{Code: resp.StatusCode, Message: e.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
