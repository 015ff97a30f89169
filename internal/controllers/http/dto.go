package http

import "order-placement-service/internal/domain"

type LineItemRequest struct {
	ProductID uint64 `json:"productId" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required,gt=0"`
}

type PlaceOrderRequest struct {
	UserID uint64            `json:"userId" binding:"required"`
	Items  []LineItemRequest `json:"items" binding:"required,min=1,dive"`
}

func (r PlaceOrderRequest) LineItems() []domain.LineItem {
	items := make([]domain.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, domain.LineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return items
}

type PlaceOrderResponse struct {
	OrderID uint64 `json:"orderId"`
	Total   string `json:"total"`
}

type UpdateStatusRequest struct {
	Status domain.OrderStatus `json:"status" binding:"required"`
}

type ErrorResponse struct {
	Error     string  `json:"error"`
	ProductID *uint64 `json:"productId,omitempty"`
	Requested *int64  `json:"requested,omitempty"`
	Available *int64  `json:"available,omitempty"`
}
