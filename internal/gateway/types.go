package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/minierp-console/pkg/enums"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry as returned by the backend.
type Product struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Slug       string          `json:"slug"`
	Price      decimal.Decimal `json:"price"`
	QtyInStock int             `json:"qty_in_stock"`
}

// ProductInput is the create/update payload.
type ProductInput struct {
	Name       string
	Slug       string
	Price      decimal.Decimal
	QtyInStock int
}

// MarshalJSON sends price as a JSON number, which is what the backend expects.
func (p ProductInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name       string      `json:"name"`
		Slug       string      `json:"slug"`
		Price      json.Number `json:"price"`
		QtyInStock int         `json:"qty_in_stock"`
	}{
		Name:       p.Name,
		Slug:       p.Slug,
		Price:      json.Number(p.Price.String()),
		QtyInStock: p.QtyInStock,
	})
}

// Order is the read projection of a backend order.
type Order struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	Status      enums.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	CreatedAt   string            `json:"created_at,omitempty"`
	Items       []OrderItem       `json:"items,omitempty"`
}

// OrderItem is a line of an order detail.
type OrderItem struct {
	ID                   int64           `json:"id"`
	ProductID            int64           `json:"product_id"`
	ProductNameSnapshot  string          `json:"product_name_snapshot"`
	ProductPriceSnapshot decimal.Decimal `json:"product_price_snapshot"`
	Quantity             int             `json:"quantity"`
	LineTotal            decimal.Decimal `json:"line_total"`
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CreatedTime parses CreatedAt; zero when absent or unparseable.
func (o Order) CreatedTime() time.Time {
	value := strings.TrimSpace(o.CreatedAt)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// OrderLine is one requested item of a new order.
type OrderLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type createOrderRequest struct {
	Items []OrderLine `json:"items"`
}

type statusRequest struct {
	NewStatus enums.OrderStatus `json:"new_status"`
}

// LoginRequest carries credentials for /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the token grant.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TokenType   string `json:"token_type,omitempty"`
}

// RegisterRequest creates a backend account.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
}

// ImportResult summarizes a bulk spreadsheet import. Row errors are data, not failures.
type ImportResult struct {
	Detail  string        `json:"detail"`
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Skipped int           `json:"skipped"`
	Errors  []ImportIssue `json:"errors"`
}

// ImportIssue is one rejected row. The backend reports either plain strings
// or objects; objects are kept as their compact JSON text.
type ImportIssue string

func (i *ImportIssue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = ImportIssue(s)
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	*i = ImportIssue(compact.String())
	return nil
}

// Export is a downloaded spreadsheet.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}
