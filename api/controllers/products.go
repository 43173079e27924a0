package controllers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/angelmondragon/minierp-console/api/responses"
	"github.com/angelmondragon/minierp-console/api/validators"
	"github.com/angelmondragon/minierp-console/internal/products"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

const importFormField = "file"

// ProductsList returns the catalog sorted by the sort query parameter.
func ProductsList(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		list, err := c.Products.List(r.Context(), r.URL.Query().Get("sort"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AdminProductCreate(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		var form products.Form
		if err := validators.DecodeJSONBody(r, &form); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := c.Products.Create(r.Context(), form)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func AdminProductUpdate(logg *logger.Logger) http.HandlerFunc {
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
		var form products.Form
		if err := validators.DecodeJSONBody(r, &form); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := c.Products.Update(r.Context(), productID, form)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func AdminProductDelete(logg *logger.Logger) http.HandlerFunc {
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
		if err := c.Products.Delete(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true, "product_id": productID})
	}
}

// AdminProductExport streams the catalog spreadsheet as an attachment.
func AdminProductExport(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		export, err := c.Products.Export(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFile(w, export.Filename, export.ContentType, export.Data)
	}
}

// AdminProductImport accepts a multipart spreadsheet upload under "file".
func AdminProductImport(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		upsert, err := validators.ParseQueryBool(r, "upsert", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Leave room for the multipart envelope around the file.
		r.Body = http.MaxBytesReader(w, r.Body, products.MaxImportBytes+1<<20)
		file, header, err := r.FormFile(importFormField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "import file is too large"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "multipart field \"file\" is required"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, products.MaxImportBytes+1))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read import file"))
			return
		}

		filename := validators.SanitizeString(filepath.Base(header.Filename), 255)
		result, err := c.Products.Import(r.Context(), filename, data, upsert)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
