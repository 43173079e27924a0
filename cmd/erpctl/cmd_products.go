package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/minierp-console/internal/products"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
)

func newProductsCmd(current consoleFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "Browse and manage the catalog",
	}
	cmd.AddCommand(
		newProductsListCmd(current),
		newProductsCreateCmd(current),
		newProductsUpdateCmd(current),
		newProductsDeleteCmd(current),
		newProductsExportCmd(current),
		newProductsImportCmd(current),
	)
	return cmd
}

func newProductsListCmd(current consoleFunc) *cobra.Command {
	var sort string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := current().Products.List(cmd.Context(), sort)
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}
	cmd.Flags().StringVar(&sort, "sort", "", "price_asc, price_desc, name_asc or name_desc")
	return cmd
}

func productFormFlags(cmd *cobra.Command, form *products.Form) {
	cmd.Flags().StringVar(&form.Name, "name", "", "product name")
	cmd.Flags().StringVar(&form.Slug, "slug", "", "unique slug")
	cmd.Flags().Var(numberFlag{&form.Price}, "price", "unit price")
	cmd.Flags().Var(numberFlag{&form.QtyInStock}, "stock", "units in stock")
}

func newProductsCreateCmd(current consoleFunc) *cobra.Command {
	var form products.Form
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a product (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			product, err := current().Products.Create(cmd.Context(), form)
			if err != nil {
				return err
			}
			return printJSON(cmd, product)
		},
	}
	productFormFlags(cmd, &form)
	return cmd
}

func newProductsUpdateCmd(current consoleFunc) *cobra.Command {
	var form products.Form
	cmd := &cobra.Command{
		Use:   "update <product-id>",
		Short: "Replace a product (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "product id")
			if err != nil {
				return err
			}
			product, err := current().Products.Update(cmd.Context(), id, form)
			if err != nil {
				return err
			}
			return printJSON(cmd, product)
		},
	}
	productFormFlags(cmd, &form)
	return cmd
}

func newProductsDeleteCmd(current consoleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <product-id>",
		Short: "Delete a product (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "product id")
			if err != nil {
				return err
			}
			if err := current().Products.Delete(cmd.Context(), id); err != nil {
				return err
			}
			return printDetail(cmd, fmt.Sprintf("product %d deleted", id))
		},
	}
}

func newProductsExportCmd(current consoleFunc) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the catalog spreadsheet (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			export, err := current().Products.Export(cmd.Context())
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				path = filepath.Base(export.Filename)
			}
			if err := os.WriteFile(path, export.Data, 0o644); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			return printJSON(cmd, map[string]any{
				"detail": "export written",
				"path":   path,
				"bytes":  len(export.Data),
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination file (defaults to the server filename)")
	return cmd
}

func newProductsImportCmd(current consoleFunc) *cobra.Command {
	var upsert bool
	cmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Bulk import products from a spreadsheet (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readImportFile(args[0])
			if err != nil {
				return err
			}
			result, err := current().Products.Import(cmd.Context(), filepath.Base(args[0]), data, upsert)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().BoolVar(&upsert, "upsert", false, "update products whose slug already exists")
	return cmd
}

func readImportFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}
	if info.Size() > products.MaxImportBytes {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "import file exceeds %d bytes", products.MaxImportBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}
	return data, nil
}
