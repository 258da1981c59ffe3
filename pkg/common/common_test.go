package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTrxNo(t *testing.T) {
	trx := GenerateTrxNo()
	if len(trx) != 7 {
		t.Errorf("Expected length 7, got %d", len(trx))
	}

	validChars := "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for _, char := range trx {
		if !strings.ContainsRune(validChars, char) {
			t.Errorf("Invalid character found: %c", char)
		}
	}
}

func TestPropertyReference(t *testing.T) {
	ref := PropertyReference("42")
	assert.True(t, strings.HasPrefix(ref, "PROP-42-"))
	assert.Len(t, ref, len("PROP-42-")+7)
}

func TestPaginateResponse(t *testing.T) {
	total := int64(100)
	data := []string{"item1", "item2"}

	res := PaginateResponse(data, total, 1, 10, "")
	assert.Equal(t, "success", res.Message)
	assert.Equal(t, 1, res.CurrentPage)
	assert.Equal(t, 10, res.LastPage)
	assert.Equal(t, 2, res.NextPage)
	assert.Equal(t, 0, res.PrevPage)
	assert.Equal(t, int64(100), res.Count)

	res = PaginateResponse(data, total, 10, 10, "")
	assert.Equal(t, 0, res.NextPage)

	res = PaginateResponse(data, total, 5, 10, "")
	assert.Equal(t, 4, res.PrevPage)
	assert.Equal(t, 6, res.NextPage)
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		amount string
		code   string
		want   string
	}{
		{"500000", "NGN", "₦500,000"},
		{"1234567.89", "USD", "$1,234,568"},
		{"999.49", "GHS", "GH₵999"},
		{"0", "KES", "KSh0"},
		{"2500", "EUR", "EUR 2,500"},
	}
	for _, tc := range cases {
		got := FormatAmount(decimal.RequireFromString(tc.amount), tc.code)
		assert.Equal(t, tc.want, got, tc.amount)
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50000000), MinorUnits(decimal.RequireFromString("500000")))
	assert.Equal(t, int64(1050), MinorUnits(decimal.RequireFromString("10.50")))
}

func TestPostJSON_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":true,"data":{"id":12345,"reference":"abc"}}`))
	}))
	defer srv.Close()

	resp, err := PostJSON(context.Background(), srv.Client(), srv.URL, map[string]string{"a": "b"}, map[string]string{"Authorization": "Bearer sk"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "abc", StringAt(resp.Body, "data", "reference"))
	assert.Equal(t, "12345", StringAt(resp.Body, "data", "id"))
	assert.Equal(t, "", StringAt(resp.Body, "data", "missing"))
}

func TestGetJSON_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	resp, err := GetJSON(context.Background(), srv.Client(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Nil(t, resp.Body)
	assert.JSONEq(t, `"upstream down"`, string(resp.Raw))
}
