package products

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/minierp-console/internal/gateway"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/validate"
)

// Form is the admin create/update form. Price and stock accept JSON numbers
// or numeric strings.
type Form struct {
	Name       string      `json:"name" validate:"required,max=200"`
	Slug       string      `json:"slug" validate:"required,max=200"`
	Price      json.Number `json:"price" validate:"required"`
	QtyInStock json.Number `json:"qty_in_stock" validate:"required"`
}

// Input validates the form and converts it to the backend payload.
func (f Form) Input() (gateway.ProductInput, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Slug = strings.TrimSpace(f.Slug)
	f.Price = json.Number(strings.TrimSpace(string(f.Price)))
	f.QtyInStock = json.Number(strings.TrimSpace(string(f.QtyInStock)))
	if err := validate.Struct(f); err != nil {
		return gateway.ProductInput{}, err
	}

	price, err := decimal.NewFromString(string(f.Price))
	if err != nil || price.IsNegative() {
		return gateway.ProductInput{}, invalidField("price", "must be a non-negative number")
	}
	qty, err := decimal.NewFromString(string(f.QtyInStock))
	if err != nil || qty.IsNegative() || !qty.IsInteger() || !qty.LessThanOrEqual(decimal.NewFromInt(1<<31-1)) {
		return gateway.ProductInput{}, invalidField("qty_in_stock", "must be a non-negative whole number")
	}

	return gateway.ProductInput{
		Name:       f.Name,
		Slug:       f.Slug,
		Price:      price,
		QtyInStock: int(qty.IntPart()),
	}, nil
}

func invalidField(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{field: msg})
}
