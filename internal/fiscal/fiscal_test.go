package fiscal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuspos/internal/domain"
)

func samplePayload() domain.FiscalPayload {
	return domain.FiscalPayload{
		TransactionID: "TXN-42",
		Timestamp:     "2026-03-01T12:00:00Z",
		Items: []domain.FiscalItem{domain.NewFiscalItem(domain.LineItem{
			Product: domain.Product{
				ID:       1,
				SKU:      "BEV-001",
				Name:     "Espresso",
				Price:    decimal.RequireFromString("3.50"),
				Category: domain.CategoryBeverages,
				ImageURL: "https://img.test/espresso.png",
				Stock:    10,
			},
			Quantity: 2,
		})},
		Subtotal:      decimal.RequireFromString("7.00"),
		Tax:           decimal.RequireFromString("0.56"),
		Total:         decimal.RequireFromString("7.56"),
		PaymentMethod: domain.PaymentCash,
	}
}

func TestSyncPostsPayloadWithAPIKey(t *testing.T) {
	var gotKey, gotType string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotKey = r.Header.Get("X-API-Key")
		gotType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"Receipt 0042 printed."}`))
	}))
	defer srv.Close()

	client := NewClient("secret-key", nil)
	result, err := client.Sync(context.Background(), srv.URL, samplePayload())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "Receipt 0042 printed.", result.Message)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "TXN-42", got["transactionId"])
	assert.Equal(t, "cash", got["paymentMethod"])
	assert.Equal(t, "7.56", got["total"])

	items, ok := got["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "Espresso", item["name"])
	assert.Equal(t, "https://img.test/espresso.png", item["imageUrl"])
	assert.Equal(t, float64(2), item["quantity"])
	assert.NotContains(t, item, "product")
	assert.NotContains(t, item, "image_url")
}

func TestSyncDefaultsSuccessMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	result, err := NewClient("", srv.Client()).Sync(context.Background(), srv.URL, samplePayload())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, defaultSuccessMessage, result.Message)
}

func TestSyncReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result, err := NewClient("k", nil).Sync(context.Background(), srv.URL, samplePayload())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Sync failed: fiscal endpoint responded with status 503", result.Message)
}

func TestSyncRejectsInvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "   ", "ftp://printer.local", "printer.local/api", "http://"} {
		_, err := NewClient("k", nil).Sync(context.Background(), endpoint, samplePayload())
		assert.ErrorIs(t, err, ErrInvalidEndpoint, endpoint)
	}
}

func TestSyncHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient("k", nil).Sync(ctx, srv.URL, samplePayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestValidateEndpoint(t *testing.T) {
	assert.NoError(t, ValidateEndpoint("https://fiscal.example.com/v1/sync"))
	assert.NoError(t, ValidateEndpoint("http://127.0.0.1:9000"))
}
