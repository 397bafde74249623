package odoo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() QueryParams {
	return QueryParams{
		RequestID:  105,
		Limit:      80,
		CountLimit: 10001,
		Domain:     []any{},
		Scope: Scope{
			Lang:              "en_US",
			TZ:                "UTC",
			UID:               2,
			AllowedCompanyIDs: []int64{1},
			CurrentCompanyID:  1,
		},
	}
}

func TestFetchSuccess(t *testing.T) {
	var gotPayload map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_, _ = w.Write([]byte(`{
			"jsonrpc": "2.0",
			"result": {
				"length": 2,
				"records": [
					{
						"id": 7,
						"display_name": "Acme Corp",
						"customer_code": "KH001",
						"phone": false,
						"mobile": "0901234567",
						"email": "acme@example.com",
						"vat": "0312345678",
						"user_id": [3, "Alice"],
						"company_id": {"id": 1, "display_name": "Main Co"},
						"is_company": true,
						"active": true
					},
					{
						"id": 8,
						"display_name": "Inactive Ltd",
						"user_id": false,
						"company_id": false,
						"is_company": false,
						"active": false
					}
				]
			}
		}`))
	}))
	t.Cleanup(ts.Close)

	client := New(Config{BaseURL: ts.URL, Cookie: "session_id=abc"}, zerolog.Nop())
	result, err := client.Fetch(context.Background(), testParams())
	require.NoError(t, err)

	require.Len(t, result.Rows, 2)
	first := result.Rows[0]
	assert.Equal(t, int64(7), *first.ID)
	assert.Equal(t, "Acme Corp", *first.DisplayName)
	assert.Equal(t, "0901234567", *first.Phone, "phone falls back to mobile")
	require.NotNil(t, first.AccountManager)
	assert.Equal(t, int64(3), *first.AccountManager.ID)
	assert.Equal(t, "Alice", *first.AccountManager.Name)
	require.NotNil(t, first.Company)
	assert.Equal(t, "Main Co", *first.Company.Name)
	assert.True(t, first.IsCompany)

	second := result.Rows[1]
	assert.Nil(t, second.AccountManager, "false relation maps to nil")
	assert.False(t, second.Active)

	assert.Equal(t, int64(2), result.Metadata.Total)

	// Envelope shape.
	assert.Equal(t, "2.0", gotPayload["jsonrpc"])
	params := gotPayload["params"].(map[string]any)
	assert.Equal(t, "res.partner", params["model"])
	assert.Equal(t, "web_search_read", params["method"])
	kwargs := params["kwargs"].(map[string]any)
	spec := kwargs["specification"].(map[string]any)
	assert.Contains(t, spec, "display_name")
	assert.Contains(t, spec, "company_id")
}

func TestFetchOnlyActiveFiltersRows(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"records":[
			{"id": 1, "display_name": "Active", "active": true},
			{"id": 2, "display_name": "Gone", "active": false}
		]}}`))
	}))
	t.Cleanup(ts.Close)

	client := New(Config{BaseURL: ts.URL}, zerolog.Nop())
	params := testParams()
	params.OnlyActive = true

	result, err := client.Fetch(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Active", *result.Rows[0].DisplayName)
}

func TestFetchRemoteError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"message":"Odoo Session Expired","code":100}}`))
	}))
	t.Cleanup(ts.Close)

	client := New(Config{BaseURL: ts.URL}, zerolog.Nop())
	_, err := client.Fetch(context.Background(), testParams())

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "Odoo Session Expired", remoteErr.Message)
	assert.Contains(t, string(remoteErr.Body), "Session Expired")
}

func TestFetchEmptyResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	t.Cleanup(ts.Close)

	client := New(Config{BaseURL: ts.URL}, zerolog.Nop())
	result, err := client.Fetch(context.Background(), testParams())
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestFetchTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(ts.Close)

	client := New(Config{BaseURL: ts.URL}, zerolog.Nop())
	_, err := client.Fetch(context.Background(), testParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestBuildDomain(t *testing.T) {
	logger := zerolog.Nop()

	domain := BuildDomain("", false, logger)
	assert.Empty(t, domain)

	domain = BuildDomain(`[["is_company","=",true]]`, false, logger)
	require.Len(t, domain, 1)

	domain = BuildDomain(`[["is_company","=",true]]`, true, logger)
	require.Len(t, domain, 2)
	active := domain[1].([]any)
	assert.Equal(t, "active", active[0])

	domain = BuildDomain(`not json`, true, logger)
	require.Len(t, domain, 1, "unparsable domain degrades to just the active predicate")
}
