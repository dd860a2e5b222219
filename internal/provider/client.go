// internal/provider/client.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/licadmin-backend/internal/config"
)

// RawRecord is the loosely-typed provider payload. It never travels past
// the normalizer; everything downstream works on models.ExternalLicense.
type RawRecord map[string]interface{}

type pageResponse struct {
	Data       []RawRecord `json:"data"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
}

// Client fetches license records from the external provider API.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	maxRetries int
	httpClient *http.Client
}

func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		pageSize:   cfg.PageSize,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// FetchAll walks every page of the provider's license listing. A failure
// that survives the retry budget aborts the whole fetch; the caller retries
// the run as a whole on the next trigger.
func (c *Client) FetchAll(ctx context.Context) ([]RawRecord, error) {
	var records []RawRecord

	page := 1
	for {
		resp, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}

		records = append(records, resp.Data...)

		if resp.TotalPages == 0 || resp.Page >= resp.TotalPages || len(resp.Data) == 0 {
			break
		}
		page++
	}

	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, page int) (*pageResponse, error) {
	operation := func() (*pageResponse, error) {
		resp, err := c.doRequest(ctx, page)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxInterval = 10 * time.Second

	resp, err := backoff.RetryNotifyWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(c.maxRetries)), ctx),
		func(err error, next time.Duration) {
			logrus.WithError(err).WithFields(logrus.Fields{
				"page":    page,
				"retryIn": next.String(),
			}).Warn("Provider fetch failed, retrying")
		},
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, page int) (*pageResponse, error) {
	url := fmt.Sprintf("%s/licenses?page=%s&page_size=%s",
		c.baseURL, strconv.Itoa(page), strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors and timeouts are transient
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		// Client errors will not heal on retry
		return nil, backoff.Permanent(fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body)))
	}

	var pageResp pageResponse
	if err := json.Unmarshal(body, &pageResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode provider response: %w", err))
	}

	return &pageResp, nil
}
