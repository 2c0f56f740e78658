// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ndomog/stocksync/stocksync"
)

// RemoteStore is the authoritative store the queue drains into
type RemoteStore interface {
	// Insert creates a record. Inserting an id that already exists must succeed.
	Insert(ctx context.Context, table string, record any) error
	// UpdateByID applies a partial update to one record
	UpdateByID(ctx context.Context, table, id string, fields any) error
	// SelectNonDeleted returns every record of table that is not soft-deleted
	SelectNonDeleted(ctx context.Context, table string) ([]json.RawMessage, error)
}

// ErrRemoteNotFound is matched by a *RemoteError for a record the remote store does not have
var ErrRemoteNotFound = errors.New("remote record not found")

// RemoteError is a non-2xx answer from the remote store
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Is makes errors.Is(err, ErrRemoteNotFound) hold for missing records
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteNotFound && e.StatusCode == http.StatusNotFound && e.Code == stocksync.CodeNotFound
}

// HTTPRemote is a RemoteStore speaking the stocksync JSON/HTTP API
type HTTPRemote struct {
	BaseURL string
	Token   func(ctx context.Context) (string, error)
	HTTP    *http.Client
}

// NewHTTPRemote returns a client for the server at baseURL
func NewHTTPRemote(baseURL string, token func(ctx context.Context) (string, error), timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRemote) Insert(ctx context.Context, table string, record any) error {
	_, err := r.do(ctx, http.MethodPost, "/v1/"+url.PathEscape(table), record)
	return err
}

func (r *HTTPRemote) UpdateByID(ctx context.Context, table, id string, fields any) error {
	_, err := r.do(ctx, http.MethodPatch, "/v1/"+url.PathEscape(table)+"/"+url.PathEscape(id), fields)
	return err
}

func (r *HTTPRemote) SelectNonDeleted(ctx context.Context, table string) ([]json.RawMessage, error) {
	body, err := r.do(ctx, http.MethodGet, "/v1/"+url.PathEscape(table), nil)
	if err != nil {
		return nil, err
	}
	var list stocksync.ListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode %s list: %w", table, err)
	}
	return list.Records, nil
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if r.Token != nil {
		token, err := r.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get JWT token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteErr := &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var errResp stocksync.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			remoteErr.Code = errResp.Error
			remoteErr.Message = errResp.Message
		}
		return nil, remoteErr
	}
	return respBody, nil
}
