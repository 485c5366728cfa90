package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/license"
	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/model"
	"grading-assistant-core/pkg/errors"

	"github.com/rs/zerolog"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// maxPages bounds FetchAll against a server that never reports the last page.
const maxPages = 10000

// Remote is the remote record store as seen by the engine.
type Remote interface {
	BatchCreate(ctx context.Context, id model.Identity, records []model.RecordInput, idempotencyKey string) (int, error)
	Fetch(ctx context.Context, id model.Identity, query model.RecordQuery) (*model.RecordPage, error)
	FetchAll(ctx context.Context, id model.Identity, filter model.QuestionFilter) ([]model.GradingRecord, error)
	DeleteByFilter(ctx context.Context, id model.Identity, filter model.QuestionFilter) (int, error)
}

// Client talks to the remote record store over HTTP.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RemoteAPI.Timeout,
		},
		log: logger.Component("remote_client"),
	}
}

func (c *Client) endpoint() string {
	return c.cfg.RemoteAPI.BaseURL + c.cfg.RemoteAPI.RecordsEndpoint
}

// BatchCreate uploads records in one call. The server applies a given
// idempotency key at most once.
func (c *Client) BatchCreate(ctx context.Context, id model.Identity, records []model.RecordInput, idempotencyKey string) (int, error) {
	if len(records) == 0 {
		return 0, fmt.Errorf("empty record batch")
	}
	if idempotencyKey == "" {
		return 0, errors.ErrMissingIdempotent
	}

	jsonData, err := json.Marshal(model.BatchCreateRequest{Records: records})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
	license.SetIdentityHeaders(req, id)

	c.log.Debug().
		Int("batch_size", len(records)).
		Str("idempotency_key", idempotencyKey).
		Msg("Sending record batch to remote store")

	var resp model.BatchCreateResponse
	if err := c.do(req, "push", &resp); err != nil {
		return 0, err
	}
	return resp.Created, nil
}

// Fetch reads one page of the identity's records.
func (c *Client) Fetch(ctx context.Context, id model.Identity, query model.RecordQuery) (*model.RecordPage, error) {
	params := url.Values{}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.QuestionNo != "" {
		params.Set("questionNo", query.QuestionNo)
	}
	if query.QuestionKey != "" {
		params.Set("questionKey", query.QuestionKey)
	}

	fullURL := c.endpoint()
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	license.SetIdentityHeaders(req, id)

	var page model.RecordPage
	if err := c.do(req, "pull", &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchAll walks every page of the identity's records.
func (c *Client) FetchAll(ctx context.Context, id model.Identity, filter model.QuestionFilter) ([]model.GradingRecord, error) {
	var all []model.GradingRecord
	limit := c.cfg.RemoteAPI.PageLimit

	for page := 1; page <= maxPages; page++ {
		p, err := c.Fetch(ctx, id, model.RecordQuery{
			Page:        page,
			Limit:       limit,
			QuestionNo:  filter.QuestionNo,
			QuestionKey: filter.QuestionKey,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, p.Records...)

		if len(p.Records) == 0 || page >= p.TotalPages {
			break
		}
	}

	c.log.Debug().Int("count", len(all)).Msg("Received records from remote store")
	return all, nil
}

// DeleteByFilter removes every remote record of one question.
func (c *Client) DeleteByFilter(ctx context.Context, id model.Identity, filter model.QuestionFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, errors.ErrMissingFilter
	}

	params := url.Values{}
	if filter.QuestionKey != "" {
		params.Set("questionKey", filter.QuestionKey)
	}
	if filter.QuestionNo != "" {
		params.Set("questionNo", filter.QuestionNo)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint()+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	license.SetIdentityHeaders(req, id)

	var resp model.DeleteResponse
	if err := c.do(req, "delete", &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewNetworkError(op, 0, true, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.NewNetworkError(op, resp.StatusCode, true, fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		// Timeouts, rate limits and server faults are safe to retry
		return errors.NewNetworkError(op, resp.StatusCode, true, fmt.Errorf("%s", readBody(resp.Body)))
	default:
		return errors.NewNetworkError(op, resp.StatusCode, false, fmt.Errorf("%s", readBody(resp.Body)))
	}
}

func readBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	if len(body) == 0 {
		return "empty response"
	}
	return string(bytes.TrimSpace(body))
}
