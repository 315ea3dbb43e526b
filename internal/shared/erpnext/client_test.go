package erpnext

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token k:s", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/resource/Item/ALOE 200X":
			json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{
				"item_code": "ALOE 200X", "item_name": "Aloe 200X", "stock_uom": "Kg", "valuation_rate": 31.5,
			}})
		case "/api/resource/Item/OLD":
			json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"item_code": "OLD", "disabled": 1}})
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"exc_type":"DoesNotExistError"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "k", "s")
	it, err := c.GetItem(context.Background(), "ALOE 200X")
	require.NoError(t, err)
	assert.Equal(t, "Kg", it.StockUOM)
	assert.Equal(t, 31.5, it.ValuationRate)

	_, err = c.GetItem(context.Background(), "OLD")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetItem(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}
