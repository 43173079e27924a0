package main

import (
	"github.com/spf13/cobra"

	"github.com/angelmondragon/minierp-console/internal/session"
)

func newLoginCmd(current consoleFunc) *cobra.Command {
	var creds session.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session for this profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Password == "" {
				pw, err := readSecret(cmd, cmd.InOrStdin(), "password: ")
				if err != nil {
					return err
				}
				creds.Password = pw
			}
			s, err := current().Session.Login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			return printJSON(cmd, s.View())
		},
	}
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "account password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCmd(current consoleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session of this profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current().Session.Logout(cmd.Context()); err != nil {
				return err
			}
			return printDetail(cmd, "signed out")
		},
	}
}

func newWhoamiCmd(current consoleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := current().Session.Current(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, s.View())
		},
	}
}

func newRegisterCmd(current consoleFunc) *cobra.Command {
	var in session.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a backend account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				pw, err := readSecret(cmd, cmd.InOrStdin(), "password: ")
				if err != nil {
					return err
				}
				in.Password = pw
			}
			if err := current().Session.Register(cmd.Context(), in); err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"detail":   "account created",
				"username": in.Username,
			})
		},
	}
	cmd.Flags().StringVarP(&in.Username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&in.Password, "password", "p", "", "account password (read from stdin when omitted)")
	cmd.Flags().StringVar(&in.Role, "role", "user", "account role: user or admin")
	cmd.Flags().StringVar(&in.Email, "email", "", "contact email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
