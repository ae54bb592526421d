package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

type lineRequest struct {
	Qty int `json:"qty" validate:"gt=0"`
}

type orderRequest struct {
	BuyerID string        `json:"buyer_id" validate:"required,uuid"`
	Items   []lineRequest `json:"items" validate:"required,min=1,dive"`
}

func postJSON(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var req orderRequest
		err := DecodeJSONBody(postJSON(`{"buyer_id":"7b0c7f39-2a52-4c41-9b8e-4ad1f0a6a001","items":[{"qty":2}]}`), &req)
		require.NoError(t, err)
		assert.Equal(t, 2, req.Items[0].Qty)
	})

	t.Run("nested validation uses json paths", func(t *testing.T) {
		var req orderRequest
		err := DecodeJSONBody(postJSON(`{"buyer_id":"nope","items":[{"qty":0}]}`), &req)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		details, ok := typed.Details().(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "must be a valid uuid", details["buyer_id"])
		assert.Equal(t, "must be greater than 0", details["items[0].qty"])
	})

	t.Run("unknown field", func(t *testing.T) {
		var req orderRequest
		err := DecodeJSONBody(postJSON(`{"buyer_id":"x","items":[],"coupon":"FREE"}`), &req)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	})

	t.Run("trailing document", func(t *testing.T) {
		var req orderRequest
		err := DecodeJSONBody(postJSON(`{"buyer_id":"7b0c7f39-2a52-4c41-9b8e-4ad1f0a6a001","items":[{"qty":1}]} {}`), &req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "single json object")
	})

	t.Run("empty", func(t *testing.T) {
		var req orderRequest
		err := DecodeJSONBody(postJSON(``), &req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("too large", func(t *testing.T) {
		var req orderRequest
		body := `{"buyer_id":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
		err := DecodeJSONBody(postJSON(body), &req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "trims", in: "  wire ref 42 ", limit: 0, want: "wire ref 42"},
		{name: "drops control chars", in: "ref\x00\x07-9", limit: 0, want: "ref-9"},
		{name: "keeps newlines", in: "line one\nline two", limit: 0, want: "line one\nline two"},
		{name: "byte cut", in: "abcdef", limit: 4, want: "abcd"},
		{name: "rune boundary", in: "cafés", limit: 4, want: "caf"},
		{name: "invalid utf8", in: "ok\xffok", limit: 0, want: "okok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeString(tt.in, tt.limit))
		})
	}
}

func TestParseQueryInt(t *testing.T) {
	get := func(q string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?"+q, nil)
	}

	v, err := ParseQueryInt(get(""), "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	v, err = ParseQueryInt(get("limit=40"), "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 40, v)

	_, err = ParseQueryInt(get("limit=abc"), "limit", 25, 1, 100)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = ParseQueryInt(get("limit=101"), "limit", 25, 1, 100)
	assert.Contains(t, err.Error(), "out of range")
}
