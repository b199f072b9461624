package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/logging"
)

type stubCatalog struct {
	category string
	useCache bool
}

func (s *stubCatalog) ListProducts(_ context.Context, category string, useCache bool) ([]domain.Product, error) {
	s.category, s.useCache = category, useCache
	return []domain.Product{{ID: "P1", Name: "Lamp", Category: category, Price: decimal.RequireFromString("19.90"), Stock: 3}}, nil
}

func (s *stubCatalog) GetProduct(_ context.Context, id string, useCache bool) (domain.Product, error) {
	s.useCache = useCache
	if id != "P1" {
		return domain.Product{}, apperr.NotFound("product %s", id)
	}
	return domain.Product{ID: "P1", Name: "Lamp"}, nil
}

func get(svc *stubCatalog, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	NewHandler(logging.Discard(), svc).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListProductsPassesFilters(t *testing.T) {
	svc := &stubCatalog{}
	rec := get(svc, "/?category=home")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "home", svc.category)
	assert.True(t, svc.useCache)

	var body struct {
		Data []domain.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.True(t, decimal.RequireFromString("19.90").Equal(body.Data[0].Price))

	get(svc, "/?useCache=false")
	assert.False(t, svc.useCache)
}

func TestGetProduct(t *testing.T) {
	svc := &stubCatalog{}
	assert.Equal(t, http.StatusOK, get(svc, "/P1").Code)
	assert.Equal(t, http.StatusNotFound, get(svc, "/P9").Code)
}
