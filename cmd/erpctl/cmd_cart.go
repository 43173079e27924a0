package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/minierp-console/internal/cart"
)

func newCartCmd(current consoleFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and edit the cart of this profile",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show cart lines and total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := current().Cart.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}

	var qty int
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product; quantity is clamped to stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "product id")
			if err != nil {
				return err
			}
			snap, err := current().Products.AddToCart(cmd.Context(), id, qty)
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
	add.Flags().IntVarP(&qty, "qty", "q", 1, "quantity to add")

	set := &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Set a line quantity; non-numeric input becomes 1",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "product id")
			if err != nil {
				return err
			}
			snap, err := current().Cart.SetQuantity(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := current()
			if err := c.Cart.Clear(cmd.Context()); err != nil {
				return err
			}
			snap, err := c.Cart.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}

	cmd.AddCommand(
		show,
		add,
		set,
		lineCmd(current, "inc", "Increase a line by one, up to stock", (*cart.Store).Increment),
		lineCmd(current, "dec", "Decrease a line by one, down to 1", (*cart.Store).Decrement),
		lineCmd(current, "rm", "Remove a line", (*cart.Store).Remove),
		clearCmd,
	)
	return cmd
}

func lineCmd(current consoleFunc, use, short string, action func(*cart.Store, context.Context, int64) (cart.Snapshot, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <product-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "product id")
			if err != nil {
				return err
			}
			snap, err := action(current().Cart, cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
}
