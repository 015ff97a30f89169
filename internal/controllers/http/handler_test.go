package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"order-placement-service/internal/domain"
	"order-placement-service/internal/mocks"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(svc *mocks.MockOrderService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc, zap.NewNop()).RegisterRoutes(r)
	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandler_PlaceOrder(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(*mocks.MockOrderService)
		expectedStatus int
		check          func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name: "created",
			body: `{"userId":7,"items":[{"productId":1,"quantity":2},{"productId":2,"quantity":1}]}`,
			setupMocks: func(svc *mocks.MockOrderService) {
				items := []domain.LineItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}
				svc.On("PlaceOrder", mock.Anything, uint64(7), items).
					Return(&domain.Placement{OrderID: 42, Total: decimal.RequireFromString("25")}, nil)
			},
			expectedStatus: http.StatusCreated,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp PlaceOrderResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, uint64(42), resp.OrderID)
				assert.Equal(t, "25.00", resp.Total)
			},
		},
		{
			name:           "malformed json",
			body:           `{"userId":`,
			setupMocks:     func(*mocks.MockOrderService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty items",
			body:           `{"userId":7,"items":[]}`,
			setupMocks:     func(*mocks.MockOrderService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "non-positive quantity",
			body:           `{"userId":7,"items":[{"productId":1,"quantity":-1}]}`,
			setupMocks:     func(*mocks.MockOrderService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "invalid request from service",
			body: `{"userId":7,"items":[{"productId":1,"quantity":1}]}`,
			setupMocks: func(svc *mocks.MockOrderService) {
				svc.On("PlaceOrder", mock.Anything, uint64(7), mock.Anything).
					Return(nil, domain.InvalidRequest("quantity too large"))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "product not found",
			body: `{"userId":7,"items":[{"productId":9,"quantity":1}]}`,
			setupMocks: func(svc *mocks.MockOrderService) {
				svc.On("PlaceOrder", mock.Anything, uint64(7), mock.Anything).
					Return(nil, &domain.ProductNotFoundError{ProductID: 9})
			},
			expectedStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				resp := decodeError(t, w)
				require.NotNil(t, resp.ProductID)
				assert.Equal(t, uint64(9), *resp.ProductID)
			},
		},
		{
			name: "insufficient stock",
			body: `{"userId":7,"items":[{"productId":1,"quantity":11}]}`,
			setupMocks: func(svc *mocks.MockOrderService) {
				svc.On("PlaceOrder", mock.Anything, uint64(7), mock.Anything).
					Return(nil, &domain.InsufficientStockError{ProductID: 1, Requested: 11, Available: 10})
			},
			expectedStatus: http.StatusConflict,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				resp := decodeError(t, w)
				require.NotNil(t, resp.Requested)
				require.NotNil(t, resp.Available)
				assert.Equal(t, int64(11), *resp.Requested)
				assert.Equal(t, int64(10), *resp.Available)
			},
		},
		{
			name: "conflict after retries",
			body: `{"userId":7,"items":[{"productId":1,"quantity":1}]}`,
			setupMocks: func(svc *mocks.MockOrderService) {
				svc.On("PlaceOrder", mock.Anything, uint64(7), mock.Anything).
					Return(nil, fmt.Errorf("place order: %w", domain.ErrTransactionConflict))
			},
			expectedStatus: http.StatusServiceUnavailable,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, "1", w.Header().Get("Retry-After"))
			},
		},
		{
			name: "infrastructure failure is opaque",
			body: `{"userId":7,"items":[{"productId":1,"quantity":1}]}`,
			setupMocks: func(svc *mocks.MockOrderService) {
				svc.On("PlaceOrder", mock.Anything, uint64(7), mock.Anything).
					Return(nil, domain.Infrastructure(errors.New("dial tcp 10.0.0.3:3306: connection refused")))
			},
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				resp := decodeError(t, w)
				assert.Equal(t, "internal server error", resp.Error)
				assert.NotContains(t, w.Body.String(), "10.0.0.3")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.MockOrderService)
			tt.setupMocks(svc)

			w := doRequest(newTestRouter(svc), http.MethodPost, "/orders", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.check != nil {
				tt.check(t, w)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_GetOrder(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(mocks.MockOrderService)
		svc.On("GetOrderByID", mock.Anything, uint64(3)).Return(&domain.Order{
			ID:         3,
			UserID:     7,
			TotalPrice: decimal.RequireFromString("10.50"),
			Status:     domain.StatusPending,
			Items:      []domain.CartItem{{ID: 1, OrderID: 3, UserID: 7, ProductID: 1, Quantity: 1}},
		}, nil)

		w := doRequest(newTestRouter(svc), http.MethodGet, "/orders/3", "")

		require.Equal(t, http.StatusOK, w.Code)
		var order domain.Order
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
		assert.Equal(t, uint64(3), order.ID)
		assert.Len(t, order.Items, 1)
		svc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(mocks.MockOrderService)
		svc.On("GetOrderByID", mock.Anything, uint64(3)).Return(nil, domain.ErrOrderNotFound)

		w := doRequest(newTestRouter(svc), http.MethodGet, "/orders/3", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		svc := new(mocks.MockOrderService)

		w := doRequest(newTestRouter(svc), http.MethodGet, "/orders/abc", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "GetOrderByID", mock.Anything, mock.Anything)
	})
}

func TestHandler_GetUserOrders(t *testing.T) {
	svc := new(mocks.MockOrderService)
	svc.On("GetOrdersByUser", mock.Anything, uint64(7)).Return([]domain.Order{}, nil)

	w := doRequest(newTestRouter(svc), http.MethodGet, "/users/7/orders", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestHandler_UpdateOrderStatus(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		svc := new(mocks.MockOrderService)
		svc.On("UpdateOrderStatus", mock.Anything, uint64(3), domain.StatusShipped).
			Return(&domain.Order{ID: 3, Status: domain.StatusShipped}, nil)

		w := doRequest(newTestRouter(svc), http.MethodPut, "/orders/3", `{"status":"shipped"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"shipped"`)
		svc.AssertExpectations(t)
	})

	t.Run("unknown status", func(t *testing.T) {
		svc := new(mocks.MockOrderService)
		svc.On("UpdateOrderStatus", mock.Anything, uint64(3), domain.OrderStatus("lost")).
			Return(nil, domain.InvalidRequest("unknown status %q", "lost"))

		w := doRequest(newTestRouter(svc), http.MethodPut, "/orders/3", `{"status":"lost"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing status", func(t *testing.T) {
		svc := new(mocks.MockOrderService)

		w := doRequest(newTestRouter(svc), http.MethodPut, "/orders/3", `{}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHandler_DeleteOrder(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		svc := new(mocks.MockOrderService)
		svc.On("DeleteOrder", mock.Anything, uint64(3)).Return(nil)

		w := doRequest(newTestRouter(svc), http.MethodDelete, "/orders/3", "")

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(mocks.MockOrderService)
		svc.On("DeleteOrder", mock.Anything, uint64(3)).Return(domain.ErrOrderNotFound)

		w := doRequest(newTestRouter(svc), http.MethodDelete, "/orders/3", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandler_Health(t *testing.T) {
	w := doRequest(newTestRouter(new(mocks.MockOrderService)), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	w := doRequest(r, http.MethodGet, "/ping", "")

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}
