package products

import (
	"bytes"
	"context"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"github.com/angelmondragon/minierp-console/internal/cart"
	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/internal/session"
	"github.com/angelmondragon/minierp-console/pkg/enums"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

// MaxImportBytes bounds spreadsheet uploads.
const MaxImportBytes = 10 << 20

// Backend is the product half of the gateway.
type Backend interface {
	ListProducts(ctx context.Context, token string, sort enums.ProductSort) ([]gateway.Product, error)
	CreateProduct(ctx context.Context, token string, input gateway.ProductInput) (*gateway.Product, error)
	UpdateProduct(ctx context.Context, token string, id int64, input gateway.ProductInput) (*gateway.Product, error)
	DeleteProduct(ctx context.Context, token string, id int64) error
	ExportProducts(ctx context.Context, token string) (*gateway.Export, error)
	ImportProducts(ctx context.Context, token, filename string, file io.Reader, upsert bool) (*gateway.ImportResult, error)
}

// SessionSource yields the current session.
type SessionSource interface {
	Current(ctx context.Context) (session.Session, error)
}

// CartAdder receives products picked from the catalog.
type CartAdder interface {
	Add(ctx context.Context, product gateway.Product, qty int) (cart.Snapshot, error)
}

// Service is the catalog as seen by one console profile.
type Service struct {
	sessions SessionSource
	backend  Backend
	cart     CartAdder
	logg     *logger.Logger
}

func NewService(sessions SessionSource, backend Backend, cartAdder CartAdder, logg *logger.Logger) *Service {
	return &Service{sessions: sessions, backend: backend, cart: cartAdder, logg: logg}
}

// List returns the catalog. A blank sort means price ascending.
func (s *Service) List(ctx context.Context, rawSort string) ([]gateway.Product, error) {
	sort, err := enums.ParseProductSort(rawSort)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported sort").
			WithDetails(map[string]any{"sort": rawSort})
	}
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.ListProducts(ctx, id.Token, sort)
}

func (s *Service) Create(ctx context.Context, form Form) (*gateway.Product, error) {
	id, err := s.admin(ctx)
	if err != nil {
		return nil, err
	}
	input, err := form.Input()
	if err != nil {
		return nil, err
	}
	product, err := s.backend.CreateProduct(ctx, id.Token, input)
	if err != nil {
		return nil, err
	}
	s.info(ctx, product.ID, "product created")
	return product, nil
}

func (s *Service) Update(ctx context.Context, productID int64, form Form) (*gateway.Product, error) {
	id, err := s.admin(ctx)
	if err != nil {
		return nil, err
	}
	input, err := form.Input()
	if err != nil {
		return nil, err
	}
	product, err := s.backend.UpdateProduct(ctx, id.Token, productID, input)
	if err != nil {
		return nil, err
	}
	s.info(ctx, productID, "product updated")
	return product, nil
}

func (s *Service) Delete(ctx context.Context, productID int64) error {
	id, err := s.admin(ctx)
	if err != nil {
		return err
	}
	if err := s.backend.DeleteProduct(ctx, id.Token, productID); err != nil {
		return err
	}
	s.info(ctx, productID, "product deleted")
	return nil
}

// Export downloads the catalog spreadsheet.
func (s *Service) Export(ctx context.Context) (*gateway.Export, error) {
	id, err := s.admin(ctx)
	if err != nil {
		return nil, err
	}
	export, err := s.backend.ExportProducts(ctx, id.Token)
	if err != nil {
		return nil, err
	}
	if export.Filename == "" {
		export.Filename = gateway.DefaultExportFilename
	}
	return export, nil
}

// Import forwards an .xlsx upload. Row-level problems come back in the result.
func (s *Service) Import(ctx context.Context, filename string, data []byte, upsert bool) (*gateway.ImportResult, error) {
	id, err := s.admin(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "import file is empty")
	}
	if len(data) > MaxImportBytes {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "import file exceeds %d bytes", MaxImportBytes)
	}
	if detected := mimetype.Detect(data); !detected.Is(gateway.XLSXContentType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "import file must be an .xlsx spreadsheet").
			WithDetails(map[string]any{"detected": detected.String()})
	}

	result, err := s.backend.ImportProducts(ctx, id.Token, filename, bytes.NewReader(data), upsert)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"created": result.Created,
			"updated": result.Updated,
			"skipped": result.Skipped,
			"errors":  len(result.Errors),
		})
		s.logg.Info(ctx, "product import finished")
	}
	return result, nil
}

// AddToCart resolves productID against the live catalog and adds it to the cart.
func (s *Service) AddToCart(ctx context.Context, productID int64, qty int) (cart.Snapshot, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return cart.Snapshot{}, err
	}
	catalog, err := s.backend.ListProducts(ctx, id.Token, enums.DefaultProductSort)
	if err != nil {
		return cart.Snapshot{}, err
	}
	for _, product := range catalog {
		if product.ID == productID {
			return s.cart.Add(ctx, product, qty)
		}
	}
	return cart.Snapshot{}, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %d not found", productID)
}

func (s *Service) identity(ctx context.Context) (session.Identity, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return session.Identity{}, err
	}
	return sess.RequireAuthenticated()
}

func (s *Service) admin(ctx context.Context) (session.Identity, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return session.Identity{}, err
	}
	return sess.RequireRole(enums.RoleAdmin)
}

func (s *Service) info(ctx context.Context, productID int64, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithField(ctx, "product_id", productID), msg)
}
