package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	webhookapi "github.com/voicetyped/lexintake/pkg/webhook/api"
)

// adminClient calls the intake admin REST API.
type adminClient struct {
	base  string
	token string
	http  *http.Client
}

func newAdminClient(base, token string, timeout time.Duration) *adminClient {
	return &adminClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

func (c *adminClient) listAttempts(ctx context.Context, teamID, status string, limit, offset int) ([]webhookapi.AttemptResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/admin/teams/" + url.PathEscape(teamID) + "/webhook-attempts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []webhookapi.AttemptResponse
	return out, c.do(ctx, http.MethodGet, path, &out)
}

func (c *adminClient) getAttempt(ctx context.Context, id string) (*webhookapi.AttemptResponse, error) {
	var out webhookapi.AttemptResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/webhook-attempts/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) retryAttempt(ctx context.Context, id string) (*webhookapi.AttemptResponse, error) {
	var out webhookapi.AttemptResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/webhook-attempts/"+url.PathEscape(id)+"/retry", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) retryTeam(ctx context.Context, teamID string) (*webhookapi.RetryTeamResponse, error) {
	var out webhookapi.RetryTeamResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/teams/"+url.PathEscape(teamID)+"/webhook-attempts/retry", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr webhookapi.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
