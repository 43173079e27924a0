package controllers

import (
	"net/http"

	"github.com/angelmondragon/minierp-console/api/responses"
	"github.com/angelmondragon/minierp-console/api/validators"
	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/internal/orders"
	"github.com/angelmondragon/minierp-console/pkg/enums"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

const orderIDParam = "orderId"

// orderView adds the actions the console offers for an order.
type orderView struct {
	gateway.Order
	AllowedStatuses []enums.OrderStatus `json:"allowed_statuses,omitempty"`
	CanPay          bool                `json:"can_pay"`
}

type statusChangeRequest struct {
	NewStatus     string `json:"new_status" validate:"required"`
	CurrentStatus string `json:"current_status"`
}

func OrdersList(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		list, err := c.Orders.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func OrderGet(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := c.Orders.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		current, err := c.Session.Current(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view := orderView{Order: *order}
		if id, ok := current.Identity(); ok {
			view.CanPay = orders.CanPay(*order, id)
			if id.Role == enums.RoleAdmin {
				view.AllowedStatuses = orders.AllowedTargets(order.Status)
			}
		}
		responses.WriteSuccess(w, view)
	}
}

// OrderPlace submits the profile's cart as a new order.
func OrderPlace(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		placement, err := c.Placer.Place(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, placement)
	}
}

func OrderPay(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := c.Orders.Pay(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminOrderStatus applies a status selection through the transition guard.
// current_status is optional; when absent the order is fetched first.
func AdminOrderStatus(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body statusChangeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		to, err := enums.ParseOrderStatus(body.NewStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown order status").
				WithDetails(map[string]any{"field": "new_status"}))
			return
		}
		change := orders.StatusChange{OrderID: orderID, To: to}
		if body.CurrentStatus != "" {
			from, err := enums.ParseOrderStatus(body.CurrentStatus)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown order status").
					WithDetails(map[string]any{"field": "current_status"}))
				return
			}
			change.From = from
		}

		result, err := c.Orders.ChangeStatus(r.Context(), change)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Dashboard(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		stats, err := c.Dashboard.Load(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
