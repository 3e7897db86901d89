package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/value"
	"travel_budget/pkg/errcodes"
	"travel_budget/pkg/httpx"
	"travel_budget/pkg/logx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// Criteria narrows a provider catalog fetch.
type Criteria struct {
	Category    string
	PackageIDs  []string
	MaxResults  int
	Destination string
}

// Client pulls normalized package offers from the aggregation API. All
// requests run through the logging round tripper with client data masked.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

func NewClient(baseURL string, timeout time.Duration, opts ...httpx.Option) *Client {
	opts = append([]httpx.Option{
		httpx.WithSensitiveDataMasker(logx.NewSensitiveDataMasker()),
	}, opts...)

	transport := httpx.NewLoggingRoundTripper(http.DefaultTransport, opts...)

	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		now: time.Now,
	}
}

// packagePayload is the wire shape of one offer.
type packagePayload struct {
	ID           string             `json:"id"`
	ProviderID   string             `json:"providerId"`
	Price        string             `json:"price"`
	Currency     string             `json:"currency"`
	Availability int                `json:"availability"`
	Dates        []dateRangePayload `json:"dates"`
	Details      map[string]string  `json:"details"`
}

type dateRangePayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type catalogResponse struct {
	Packages []packagePayload `json:"packages"`
}

// FetchPackages returns the current provider state for the criteria. A
// deadline hit is reported as a retryable ProviderFetchTimeout.
func (c *Client) FetchPackages(ctx context.Context, criteria Criteria) ([]entity.PackageRecord, error) {
	endpoint, err := c.catalogURL(criteria)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, domain.WrapError(err, errcodes.ProviderFetchTimeout, "provider did not answer in time")
		}

		return nil, domain.WrapError(err, errcodes.InternalServerError, "provider request failed")
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewError(errcodes.InternalServerError,
			fmt.Sprintf("provider answered %d", resp.StatusCode))
	}

	var payload catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to decode provider response")
	}

	records := make([]entity.PackageRecord, 0, len(payload.Packages))
	fetchedAt := c.now()

	for _, p := range payload.Packages {
		record, err := c.toRecord(p, fetchedAt)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

// FetchByCategory lists the live offers of one category; the reconciler uses
// it as the substitution pool.
func (c *Client) FetchByCategory(ctx context.Context, category string) ([]entity.PackageRecord, error) {
	return c.FetchPackages(ctx, Criteria{Category: category})
}

// FetchByIDs is FetchPackages keyed by the exact offer ids a budget holds.
func (c *Client) FetchByIDs(ctx context.Context, ids []string) (map[string]entity.PackageRecord, error) {
	records, err := c.FetchPackages(ctx, Criteria{PackageIDs: ids})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]entity.PackageRecord, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	return byID, nil
}

func (c *Client) catalogURL(criteria Criteria) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("url.Parse: %w", err)
	}

	base = base.JoinPath("v1", "packages")

	q := base.Query()

	if criteria.Category != "" {
		q.Set("category", criteria.Category)
	}

	if criteria.Destination != "" {
		q.Set("destination", criteria.Destination)
	}

	if criteria.MaxResults > 0 {
		q.Set("limit", strconv.Itoa(criteria.MaxResults))
	}

	for _, id := range criteria.PackageIDs {
		q.Add("id", id)
	}

	base.RawQuery = q.Encode()

	return base.String(), nil
}

func (c *Client) toRecord(p packagePayload, fetchedAt time.Time) (entity.PackageRecord, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return entity.PackageRecord{}, domain.WrapError(err, errcodes.InvalidPackageRecord,
			fmt.Sprintf("package %s has a malformed price", p.ID))
	}

	dates := make([]value.DateRange, 0, len(p.Dates))

	for _, d := range p.Dates {
		start, err := time.Parse(time.DateOnly, d.Start)
		if err != nil {
			return entity.PackageRecord{}, domain.WrapError(err, errcodes.InvalidPackageRecord,
				fmt.Sprintf("package %s has a malformed date", p.ID))
		}

		end, err := time.Parse(time.DateOnly, d.End)
		if err != nil {
			return entity.PackageRecord{}, domain.WrapError(err, errcodes.InvalidPackageRecord,
				fmt.Sprintf("package %s has a malformed date", p.ID))
		}

		dates = append(dates, value.NewDateRange(start, end))
	}

	return entity.PackageRecord{
		ID:           p.ID,
		ProviderID:   p.ProviderID,
		Price:        price,
		Currency:     p.Currency,
		Availability: p.Availability,
		Dates:        dates,
		Details:      value.Details(p.Details),
		FetchedAt:    fetchedAt,
	}, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }

	return errors.As(err, &netErr) && netErr.Timeout()
}
