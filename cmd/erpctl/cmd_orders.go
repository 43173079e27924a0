package main

import (
	"github.com/spf13/cobra"

	"github.com/angelmondragon/minierp-console/internal/orders"
	"github.com/angelmondragon/minierp-console/pkg/enums"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
)

func newOrdersCmd(current consoleFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order"},
		Short:   "Place, pay and manage orders",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := current().Orders.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}

	show := &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "order id")
			if err != nil {
				return err
			}
			order, err := current().Orders.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, order)
		},
	}

	place := &cobra.Command{
		Use:   "place",
		Short: "Submit the cart as a new order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			placement, err := current().Placer.Place(cmd.Context())
			if err != nil {
				return err
			}
			if !placement.CartCleared {
				cmd.PrintErrln("warning: order placed but the cart still holds its lines; clear it before ordering again")
			}
			return printJSON(cmd, placement)
		},
	}

	pay := &cobra.Command{
		Use:   "pay <order-id>",
		Short: "Pay an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "order id")
			if err != nil {
				return err
			}
			order, err := current().Orders.Pay(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, order)
		},
	}

	var from string
	status := &cobra.Command{
		Use:   "status <order-id> <new-status>",
		Short: "Move an order to another status (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "order id")
			if err != nil {
				return err
			}
			to, err := enums.ParseOrderStatus(args[1])
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown order status")
			}
			change := orders.StatusChange{OrderID: id, To: to}
			if from != "" {
				if change.From, err = enums.ParseOrderStatus(from); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown current status")
				}
			}
			result, err := current().Orders.ChangeStatus(cmd.Context(), change)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	status.Flags().StringVar(&from, "from", "", "status the order is believed to be in; fetched when omitted")

	cmd.AddCommand(list, show, place, pay, status)
	return cmd
}

func newDashboardCmd(current consoleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show catalog and order statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := current().Dashboard.Load(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}
