package products

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/minierp-console/internal/cart"
	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/internal/session"
	"github.com/angelmondragon/minierp-console/pkg/enums"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/storage"
)

type fixedSession struct {
	sess session.Session
}

func (f fixedSession) Current(context.Context) (session.Session, error) {
	return f.sess, nil
}

func asRole(role enums.Role) fixedSession {
	return fixedSession{sess: session.Authenticated(session.Identity{Username: "u", Role: role, Token: "tok"})}
}

type fakeBackend struct {
	catalog   []gateway.Product
	lastSort  enums.ProductSort
	created   []gateway.ProductInput
	updated   map[int64]gateway.ProductInput
	deleted   []int64
	imported  [][]byte
	upserts   []bool
	listCalls int
}

func (f *fakeBackend) ListProducts(_ context.Context, _ string, sort enums.ProductSort) ([]gateway.Product, error) {
	f.listCalls++
	f.lastSort = sort
	return f.catalog, nil
}

func (f *fakeBackend) CreateProduct(_ context.Context, _ string, input gateway.ProductInput) (*gateway.Product, error) {
	f.created = append(f.created, input)
	return &gateway.Product{ID: 1, Name: input.Name, Slug: input.Slug, Price: input.Price, QtyInStock: input.QtyInStock}, nil
}

func (f *fakeBackend) UpdateProduct(_ context.Context, _ string, id int64, input gateway.ProductInput) (*gateway.Product, error) {
	if f.updated == nil {
		f.updated = map[int64]gateway.ProductInput{}
	}
	f.updated[id] = input
	return &gateway.Product{ID: id, Name: input.Name}, nil
}

func (f *fakeBackend) DeleteProduct(_ context.Context, _ string, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) ExportProducts(context.Context, string) (*gateway.Export, error) {
	return &gateway.Export{Data: []byte("PK")}, nil
}

func (f *fakeBackend) ImportProducts(_ context.Context, _, _ string, file io.Reader, upsert bool) (*gateway.ImportResult, error) {
	data, _ := io.ReadAll(file)
	f.imported = append(f.imported, data)
	f.upserts = append(f.upserts, upsert)
	return &gateway.ImportResult{Detail: "ok", Created: 1, Errors: []gateway.ImportIssue{"row 3: bad price"}}, nil
}

func xlsxBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"[Content_Types].xml", "xl/workbook.xml", "xl/worksheets/sheet1.xml"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("<xml/>"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestListValidatesSort(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(asRole(enums.RoleUser), backend, nil, nil)

	_, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, enums.ProductSortPriceAsc, backend.lastSort)

	_, err = svc.List(context.Background(), "NAME_DESC")
	require.NoError(t, err)
	require.Equal(t, enums.ProductSortNameDesc, backend.lastSort)

	_, err = svc.List(context.Background(), "cheapest")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, 2, backend.listCalls)
}

func TestFormValidation(t *testing.T) {
	cases := map[string]Form{
		"blank name":     {Name: "  ", Slug: "pen", Price: "1", QtyInStock: "1"},
		"blank slug":     {Name: "Pen", Slug: " ", Price: "1", QtyInStock: "1"},
		"text price":     {Name: "Pen", Slug: "pen", Price: "cheap", QtyInStock: "1"},
		"negative price": {Name: "Pen", Slug: "pen", Price: "-1", QtyInStock: "1"},
		"fraction stock": {Name: "Pen", Slug: "pen", Price: "1", QtyInStock: "1.5"},
		"missing stock":  {Name: "Pen", Slug: "pen", Price: "1"},
	}
	for name, form := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := form.Input()
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	input, err := Form{Name: " Pen ", Slug: " pen ", Price: "2.50", QtyInStock: "0"}.Input()
	require.NoError(t, err)
	require.Equal(t, "Pen", input.Name)
	require.Equal(t, "pen", input.Slug)
	require.True(t, input.Price.Equal(decimal.RequireFromString("2.5")))
	require.Equal(t, 0, input.QtyInStock)
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(asRole(enums.RoleUser), backend, nil, nil)
	ctx := context.Background()
	form := Form{Name: "Pen", Slug: "pen", Price: "1", QtyInStock: "1"}

	_, err := svc.Create(ctx, form)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = svc.Update(ctx, 1, form)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	require.True(t, pkgerrors.IsCode(svc.Delete(ctx, 1), pkgerrors.CodeForbidden))
	_, err = svc.Export(ctx)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = svc.Import(ctx, "x.xlsx", xlsxBytes(t), true)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.Empty(t, backend.created)
	require.Empty(t, backend.deleted)
}

func TestAdminCrud(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(asRole(enums.RoleAdmin), backend, nil, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, Form{Name: "Pen", Slug: "pen", Price: "1.25", QtyInStock: "3"})
	require.NoError(t, err)
	require.Equal(t, "Pen", product.Name)

	_, err = svc.Update(ctx, 4, Form{Name: "Ink", Slug: "ink", Price: "2", QtyInStock: "9"})
	require.NoError(t, err)
	require.Equal(t, 9, backend.updated[4].QtyInStock)

	require.NoError(t, svc.Delete(ctx, 4))
	require.Equal(t, []int64{4}, backend.deleted)

	export, err := svc.Export(ctx)
	require.NoError(t, err)
	require.Equal(t, "products_export.xlsx", export.Filename)
}

func TestImportSniffsSpreadsheet(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(asRole(enums.RoleAdmin), backend, nil, nil)
	ctx := context.Background()

	_, err := svc.Import(ctx, "notes.xlsx", []byte("name,price\npen,1\n"), true)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.Import(ctx, "empty.xlsx", nil, true)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Empty(t, backend.imported)

	res, err := svc.Import(ctx, "stock.xlsx", xlsxBytes(t), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 1)
	require.Equal(t, []bool{false}, backend.upserts)
}

func TestAddToCartUsesLiveCatalog(t *testing.T) {
	backend := &fakeBackend{catalog: []gateway.Product{
		{ID: 1, Name: "Pen", Price: decimal.NewFromInt(10), QtyInStock: 2},
		{ID: 2, Name: "Ink", Price: decimal.NewFromInt(3), QtyInStock: 0},
	}}
	c := cart.NewStore(storage.NewMemory())
	svc := NewService(asRole(enums.RoleUser), backend, c, nil)
	ctx := context.Background()

	snap, err := svc.AddToCart(ctx, 1, 5)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Lines[0].Quantity)

	_, err = svc.AddToCart(ctx, 2, 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.AddToCart(ctx, 99, 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListRequiresSession(t *testing.T) {
	svc := NewService(fixedSession{sess: session.Anonymous()}, &fakeBackend{}, nil, nil)
	_, err := svc.List(context.Background(), "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}
