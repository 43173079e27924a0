package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/angelmondragon/minierp-console/api/responses"
	"github.com/angelmondragon/minierp-console/api/validators"
	"github.com/angelmondragon/minierp-console/internal/cart"
	"github.com/angelmondragon/minierp-console/internal/console"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

const productIDParam = "productId"

type addCartItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity"`
}

// setQuantityRequest keeps the raw value; anything non-numeric becomes 1.
type setQuantityRequest struct {
	Quantity json.RawMessage `json:"quantity"`
}

func (r setQuantityRequest) raw() string {
	var text string
	if err := json.Unmarshal(r.Quantity, &text); err == nil {
		return text
	}
	return strings.TrimSpace(string(r.Quantity))
}

func CartGet(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		snap, err := c.Cart.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// CartAddItem resolves the product against the live catalog before adding it.
func CartAddItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		var body addCartItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := c.Products.AddToCart(r.Context(), body.ProductID, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

func CartSetQuantity(logg *logger.Logger) http.HandlerFunc {
	return lineAction(logg, func(r *http.Request, c *console.Console, productID int64) (cart.Snapshot, error) {
		var body setQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return cart.Snapshot{}, err
		}
		return c.Cart.SetQuantity(r.Context(), productID, body.raw())
	})
}

func CartIncrement(logg *logger.Logger) http.HandlerFunc {
	return lineAction(logg, func(r *http.Request, c *console.Console, productID int64) (cart.Snapshot, error) {
		return c.Cart.Increment(r.Context(), productID)
	})
}

func CartDecrement(logg *logger.Logger) http.HandlerFunc {
	return lineAction(logg, func(r *http.Request, c *console.Console, productID int64) (cart.Snapshot, error) {
		return c.Cart.Decrement(r.Context(), productID)
	})
}

func CartRemoveItem(logg *logger.Logger) http.HandlerFunc {
	return lineAction(logg, func(r *http.Request, c *console.Console, productID int64) (cart.Snapshot, error) {
		return c.Cart.Remove(r.Context(), productID)
	})
}

func CartClear(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		if err := c.Cart.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := c.Cart.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

type lineFunc func(r *http.Request, c *console.Console, productID int64) (cart.Snapshot, error)

func lineAction(logg *logger.Logger, fn lineFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		productID, err := validators.ParseIDParam(r, productIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := fn(r, c, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}
