package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hivisloyalty/internal/service"

	"go.uber.org/zap"
)

const maxResponseBytes = 8 << 20

// Fetcher pulls recent purchases from a vending source.
type Fetcher interface {
	FetchTransactions(ctx context.Context, since time.Time) ([]*service.RawTransaction, error)
}

// MomaClient polls the Moma transactions API.
type MomaClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func NewMomaClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *MomaClient {
	return &MomaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *MomaClient) FetchTransactions(ctx context.Context, since time.Time) ([]*service.RawTransaction, error) {
	if c.baseURL == "" {
		return nil, errors.New("moma: base url not configured")
	}
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moma: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("moma: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moma: unexpected status %d", resp.StatusCode)
	}

	txs, rowErrs := ParseMomaPayload(body)
	for _, e := range rowErrs {
		c.log.Warn("moma row skipped", zap.Error(e))
	}
	if len(txs) == 0 && len(rowErrs) > 0 {
		return nil, rowErrs[0]
	}
	return txs, nil
}
