// Package odoo sends single-page web_search_read queries against the CRM
// backend and normalizes the records into the shared row shape.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"customer-export/internal/normalize"

	"github.com/rs/zerolog"
)

const callKWPath = "/web/dataset/call_kw/res.partner/web_search_read"

// RemoteError is an explicit error object returned inside a 2xx JSON-RPC
// response body.
type RemoteError struct {
	Message string
	Body    json.RawMessage
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return "odoo request failed: " + e.Message
	}
	return "odoo request failed"
}

type Config struct {
	BaseURL    string
	Cookie     string
	HTTPClient *http.Client
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

// Scope carries the locale/tenant context Odoo expects on every call.
type Scope struct {
	Lang              string
	TZ                string
	UID               int64
	AllowedCompanyIDs []int64
	CurrentCompanyID  int64
}

// QueryParams describes one web_search_read call. Domain is the caller's
// filter predicate tree; no pagination loop happens here, one page per
// call.
type QueryParams struct {
	RequestID  int
	Limit      int
	Offset     int
	CountLimit int
	Order      string
	Domain     []any
	OnlyActive bool
	Scope      Scope
}

// Customer is the normalized row shape shared with the workbook path.
type Customer struct {
	ID             *int64              `json:"id"`
	DisplayName    *string             `json:"displayName"`
	CustomerCode   *string             `json:"customerCode"`
	CompleteName   *string             `json:"completeName"`
	Phone          *string             `json:"phone"`
	Email          *string             `json:"email"`
	City           *string             `json:"city"`
	TaxCode        *string             `json:"taxCode"`
	AccountManager *normalize.Relation `json:"accountManager"`
	Company        *normalize.Relation `json:"company"`
	IsCompany      bool                `json:"isCompany"`
	Active         bool                `json:"active"`
}

// Metadata describes the page that produced the rows.
type Metadata struct {
	Total   int64  `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	Order   string `json:"order"`
	Domain  []any  `json:"domain"`
	BaseURL string `json:"baseUrl"`
}

type FetchResult struct {
	Rows     []Customer `json:"rows"`
	Metadata Metadata   `json:"metadata"`
}

// BuildDomain parses a raw JSON domain, appending the active-only predicate
// when requested. An unparsable domain degrades to empty rather than
// failing the call.
func BuildDomain(raw string, onlyActive bool, logger zerolog.Logger) []any {
	var domain []any
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &domain); err != nil {
			logger.Warn().Str("domain", raw).Msg("unable to parse domain; using default []")
			domain = nil
		}
	}
	if onlyActive {
		domain = append(domain, []any{"active", "=", true})
	}
	if domain == nil {
		domain = []any{}
	}
	return domain
}

// specification is the fixed field set requested from res.partner,
// including nested display names for the two relation fields.
func specification() map[string]any {
	return map[string]any{
		"display_name":  map[string]any{},
		"customer_code": map[string]any{},
		"complete_name": map[string]any{},
		"phone":         map[string]any{},
		"mobile":        map[string]any{},
		"email":         map[string]any{},
		"user_id":       map[string]any{"fields": map[string]any{"display_name": map[string]any{}}},
		"city":          map[string]any{},
		"vat":           map[string]any{},
		"company_id":    map[string]any{"fields": map[string]any{"display_name": map[string]any{}}},
		"is_company":    map[string]any{},
		"active":        map[string]any{},
	}
}

func buildPayload(params QueryParams) map[string]any {
	context := map[string]any{
		"lang":                params.Scope.Lang,
		"tz":                  params.Scope.TZ,
		"uid":                 params.Scope.UID,
		"allowed_company_ids": params.Scope.AllowedCompanyIDs,
		"bin_size":            true,
		"default_is_company":  true,
		"current_company_id":  params.Scope.CurrentCompanyID,
	}

	return map[string]any{
		"id":      params.RequestID,
		"jsonrpc": "2.0",
		"method":  "call",
		"params": map[string]any{
			"model":  "res.partner",
			"method": "web_search_read",
			"args":   []any{},
			"kwargs": map[string]any{
				"specification": specification(),
				"offset":        params.Offset,
				"order":         params.Order,
				"limit":         params.Limit,
				"context":       context,
				"count_limit":   params.CountLimit,
				"domain":        params.Domain,
			},
		},
	}
}

// Fetch sends one query and returns the normalized page. A 2xx body with an
// error object is a *RemoteError; records default to empty.
func (c *Client) Fetch(ctx context.Context, params QueryParams) (*FetchResult, error) {
	payload, err := json.Marshal(buildPayload(params))
	if err != nil {
		return nil, fmt.Errorf("encode odoo payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+callKWPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", c.cfg.BaseURL+"/web")
	if c.cfg.Cookie != "" {
		req.Header.Set("Cookie", c.cfg.Cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("odoo request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("odoo request: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Result *struct {
			Records []map[string]any `json:"records"`
			Length  *int64           `json:"length"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode odoo response: %w", err)
	}
	if body.Error != nil {
		return nil, &RemoteError{Message: body.Error.Message, Body: raw}
	}

	var records []map[string]any
	if body.Result != nil {
		records = body.Result.Records
	}

	rows := normalizeRecords(records, params.OnlyActive)

	total := int64(len(rows))
	if body.Result != nil && body.Result.Length != nil {
		total = *body.Result.Length
	}

	c.logger.Info().Int("rows", len(rows)).Int64("total", total).Msg("odoo page fetched")

	return &FetchResult{
		Rows: rows,
		Metadata: Metadata{
			Total:   total,
			Limit:   params.Limit,
			Offset:  params.Offset,
			Order:   params.Order,
			Domain:  params.Domain,
			BaseURL: c.cfg.BaseURL,
		},
	}, nil
}

func normalizeRecords(records []map[string]any, onlyActive bool) []Customer {
	rows := make([]Customer, 0, len(records))
	for _, record := range records {
		phone := stringField(record["phone"])
		if phone == nil {
			phone = stringField(record["mobile"])
		}

		row := Customer{
			ID:             intField(record["id"]),
			DisplayName:    stringField(record["display_name"]),
			CustomerCode:   stringField(record["customer_code"]),
			CompleteName:   stringField(record["complete_name"]),
			Phone:          phone,
			Email:          stringField(record["email"]),
			City:           stringField(record["city"]),
			TaxCode:        stringField(record["vat"]),
			AccountManager: normalize.MapRelation(record["user_id"]),
			Company:        normalize.MapRelation(record["company_id"]),
			IsCompany:      boolField(record["is_company"]),
			Active:         boolField(record["active"]),
		}

		if onlyActive && !row.Active {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// stringField tolerates Odoo's habit of returning false for empty values.
func stringField(v any) *string {
	if s, ok := v.(string); ok && s != "" {
		return &s
	}
	return nil
}

func intField(v any) *int64 {
	if n, ok := v.(float64); ok {
		id := int64(n)
		return &id
	}
	return nil
}

func boolField(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
