package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/angelmondragon/minierp-console/pkg/enums"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
)

const (
	// DefaultExportFilename is used when the backend does not name the download.
	DefaultExportFilename = "products_export.xlsx"
	// XLSXContentType is the spreadsheet media type.
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ListProducts returns the catalog in the requested order.
func (c *Client) ListProducts(ctx context.Context, token string, sort enums.ProductSort) ([]Product, error) {
	query := url.Values{}
	if sort != "" {
		query.Set("sort", string(sort))
	}
	var out []Product
	if err := c.doJSON(ctx, request{
		op:     "products.list",
		method: http.MethodGet,
		path:   "/products/",
		query:  query,
		token:  token,
	}, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Product{}
	}
	return out, nil
}

// CreateProduct adds a catalog entry.
func (c *Client) CreateProduct(ctx context.Context, token string, input ProductInput) (*Product, error) {
	var out Product
	if err := c.doJSON(ctx, request{
		op:     "products.create",
		method: http.MethodPost,
		path:   "/products/",
		token:  token,
	}, input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProduct replaces a catalog entry.
func (c *Client) UpdateProduct(ctx context.Context, token string, id int64, input ProductInput) (*Product, error) {
	var out Product
	if err := c.doJSON(ctx, request{
		op:     "products.update",
		method: http.MethodPut,
		path:   "/products/" + pathID(id),
		token:  token,
	}, input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProduct removes a catalog entry.
func (c *Client) DeleteProduct(ctx context.Context, token string, id int64) error {
	return c.doJSON(ctx, request{
		op:     "products.delete",
		method: http.MethodDelete,
		path:   "/products/" + pathID(id),
		token:  token,
	}, nil, nil)
}

// ExportProducts downloads the catalog spreadsheet.
func (c *Client) ExportProducts(ctx context.Context, token string) (*Export, error) {
	resp, err := c.do(ctx, request{
		op:     "products.export",
		method: http.MethodGet,
		path:   "/products/export",
		token:  token,
	})
	if err != nil {
		return nil, err
	}

	export := &Export{
		Filename:    DefaultExportFilename,
		ContentType: resp.header.Get("Content-Type"),
		Data:        resp.body,
	}
	if _, params, err := mime.ParseMediaType(resp.header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			export.Filename = name
		}
	}
	if export.ContentType == "" {
		export.ContentType = XLSXContentType
	}
	return export, nil
}

// ImportProducts uploads a spreadsheet. With upsert, existing slugs are updated.
func (c *Client) ImportProducts(ctx context.Context, token, filename string, file io.Reader, upsert bool) (*ImportResult, error) {
	if file == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "import file is required")
	}
	if filename == "" {
		filename = "products.xlsx"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", XLSXContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build import form")
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read import file")
	}
	if err := writer.Close(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalize import form")
	}

	var out ImportResult
	if err := c.doJSON(ctx, request{
		op:          "products.import",
		method:      http.MethodPost,
		path:        "/products/import",
		query:       url.Values{"upsert": []string{strconv.FormatBool(upsert)}},
		token:       token,
		body:        &buf,
		contentType: writer.FormDataContentType(),
	}, nil, &out); err != nil {
		return nil, err
	}
	if out.Errors == nil {
		out.Errors = []ImportIssue{}
	}
	return &out, nil
}
