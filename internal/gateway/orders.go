package gateway

import (
	"context"
	"net/http"

	"github.com/angelmondragon/minierp-console/pkg/enums"
)

// ListOrders returns every order the token may see.
func (c *Client) ListOrders(ctx context.Context, token string) ([]Order, error) {
	var out []Order
	if err := c.doJSON(ctx, request{
		op:     "orders.list",
		method: http.MethodGet,
		path:   "/orders/",
		token:  token,
	}, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Order{}
	}
	return out, nil
}

// GetOrder returns an order with its items.
func (c *Client) GetOrder(ctx context.Context, token string, id int64) (*Order, error) {
	var out Order
	if err := c.doJSON(ctx, request{
		op:     "orders.get",
		method: http.MethodGet,
		path:   "/orders/" + pathID(id),
		token:  token,
	}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder submits a new order.
func (c *Client) CreateOrder(ctx context.Context, token string, items []OrderLine) (*Order, error) {
	if items == nil {
		items = []OrderLine{}
	}
	var out Order
	if err := c.doJSON(ctx, request{
		op:     "orders.create",
		method: http.MethodPost,
		path:   "/orders/",
		token:  token,
	}, createOrderRequest{Items: items}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PayOrder marks an order as paid.
func (c *Client) PayOrder(ctx context.Context, token string, id int64) (*Order, error) {
	var out Order
	if err := c.doJSON(ctx, request{
		op:     "orders.pay",
		method: http.MethodPost,
		path:   "/orders/" + pathID(id) + "/pay",
		token:  token,
	}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOrderStatus sets a new status (admin).
func (c *Client) UpdateOrderStatus(ctx context.Context, token string, id int64, status enums.OrderStatus) (*Order, error) {
	var out Order
	if err := c.doJSON(ctx, request{
		op:     "orders.status",
		method: http.MethodPatch,
		path:   "/orders/" + pathID(id) + "/status",
		token:  token,
	}, statusRequest{NewStatus: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
