package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

var assertInsertErr = errors.New("database unavailable")

type mockCouponStore struct {
	insertFn  func(ctx context.Context, c model.Coupon) error
	getByIDFn func(ctx context.Context, couponID string) (*model.Coupon, error)
}

func (m *mockCouponStore) Insert(ctx context.Context, c model.Coupon) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, c)
	}
	return nil
}

func (m *mockCouponStore) GetByID(ctx context.Context, couponID string) (*model.Coupon, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, couponID)
	}
	return nil, repository.ErrCouponNotFound
}

func setupCouponTestApp(store *mockCouponStore) *fiber.App {
	app := fiber.New()
	validate := validator.New()
	h := NewCouponHandler(store, validate)
	app.Post("/api/coupons", h.CreateCoupon)
	app.Get("/api/coupons/:coupon_id", h.GetCoupon)
	return app
}

func validCreateBody() string {
	return `{"coupon_id":"SUMMER10","discount_type":"PERCENTAGE","discount_rate":0.1,"total_qty":100,"valid_from":"2026-01-01T00:00:00Z","valid_until":"2026-12-31T00:00:00Z"}`
}

func TestCreateCoupon_Success(t *testing.T) {
	var captured model.Coupon
	store := &mockCouponStore{
		insertFn: func(ctx context.Context, c model.Coupon) error {
			captured = c
			return nil
		},
	}
	app := setupCouponTestApp(store)

	req := httptest.NewRequest(http.MethodPost, "/api/coupons", bytes.NewBufferString(validCreateBody()))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "SUMMER10", captured.CouponID)
	assert.Equal(t, 100, captured.TotalQty)
	assert.Equal(t, 100, captured.RemainingQty)
	assert.True(t, captured.IsActive)
}

func TestCreateCoupon_MissingCouponID(t *testing.T) {
	app := setupCouponTestApp(&mockCouponStore{})

	body := `{"discount_type":"PERCENTAGE","discount_rate":0.1,"total_qty":100,"valid_from":"2026-01-01T00:00:00Z","valid_until":"2026-12-31T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/coupons", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var result map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "invalid request: coupon_id is required", result["error"])
}

func TestCreateCoupon_InvalidTotalQty(t *testing.T) {
	app := setupCouponTestApp(&mockCouponStore{})

	body := `{"coupon_id":"SUMMER10","discount_type":"PERCENTAGE","discount_rate":0.1,"total_qty":0,"valid_from":"2026-01-01T00:00:00Z","valid_until":"2026-12-31T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/coupons", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var result map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "invalid request: total_qty must be at least 1", result["error"])
}

func TestCreateCoupon_ValidUntilBeforeValidFrom(t *testing.T) {
	app := setupCouponTestApp(&mockCouponStore{})

	body := `{"coupon_id":"SUMMER10","discount_type":"PERCENTAGE","discount_rate":0.1,"total_qty":100,"valid_from":"2026-12-31T00:00:00Z","valid_until":"2026-01-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/coupons", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateCoupon_MalformedJSON(t *testing.T) {
	app := setupCouponTestApp(&mockCouponStore{})

	body := `{not valid json}`
	req := httptest.NewRequest(http.MethodPost, "/api/coupons", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var result map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "invalid request body", result["error"])
}

func TestCreateCoupon_InternalServerError(t *testing.T) {
	store := &mockCouponStore{
		insertFn: func(ctx context.Context, c model.Coupon) error {
			return assertInsertErr
		},
	}
	app := setupCouponTestApp(store)

	req := httptest.NewRequest(http.MethodPost, "/api/coupons", bytes.NewBufferString(validCreateBody()))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestGetCoupon_Success(t *testing.T) {
	store := &mockCouponStore{
		getByIDFn: func(ctx context.Context, couponID string) (*model.Coupon, error) {
			return &model.Coupon{
				CouponID: couponID, DiscountType: model.DiscountPercentage, DiscountRate: 0.1,
				TotalQty: 100, RemainingQty: 95, IsActive: true,
				ValidFrom: time.Now().Add(-time.Hour), ValidUntil: time.Now().Add(time.Hour),
			}, nil
		},
	}
	app := setupCouponTestApp(store)

	req := httptest.NewRequest(http.MethodGet, "/api/coupons/SUMMER10", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result model.CouponView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "SUMMER10", result.CouponID)
	assert.Equal(t, 95, result.RemainingQty)
}

func TestGetCoupon_NotFound(t *testing.T) {
	app := setupCouponTestApp(&mockCouponStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/coupons/NONEXISTENT", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var result map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "coupon not found", result["error"])
}

func TestGetCoupon_EmptyID(t *testing.T) {
	app := fiber.New()
	validate := validator.New()
	h := NewCouponHandler(&mockCouponStore{}, validate)
	app.Get("/api/coupons/:coupon_id?", h.GetCoupon)

	req := httptest.NewRequest(http.MethodGet, "/api/coupons/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
