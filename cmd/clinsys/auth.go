package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinsys/clinsys/internal/platform/form"
	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/internal/platform/session"
	"github.com/clinsys/clinsys/internal/platform/ui"
)

var errNotLoggedIn = errors.New("not logged in, run `clinsys login` first")

func loginCmd() *cobra.Command {
	var creds session.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the backend and keep the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				creds.Password = strings.TrimRight(line, "\r\n")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.sessions.Login(ctx, a.api, creds); err != nil {
					return errors.New(ui.ErrorMessage(err, "Could not reach the server. Try again."))
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Welcome back.")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&creds.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "account password (prompted when omitted)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.sessions.Logout(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "You have been logged out.")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				claims, err := requireSession(a)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, kv := range [][2]string{
					{"Name", claims.Name},
					{"Email", claims.Email},
					{"Subject", claims.Subject},
				} {
					if kv[1] != "" {
						fmt.Fprintf(out, "%-8s %s\n", kv[0]+":", kv[1])
					}
				}
				if claims.ExpiresAt != nil {
					exp := claims.ExpiresAt.Local().Format(time.RFC1123)
					if claims.Expired(time.Now()) {
						exp += " (past)"
					}
					fmt.Fprintf(out, "%-8s %s\n", "Expires:", exp)
				}
				fmt.Fprintf(out, "%-8s %s\n", "Backend:", a.api.BaseURL())
				return nil
			})
		},
	}
}

// requireSession is the command-line counterpart of the web session guard.
// Claims are for display; the backend decides whether the token is valid.
func requireSession(a *app) (*session.Claims, error) {
	if !a.sessions.IsAuthenticated() {
		return nil, errNotLoggedIn
	}
	claims, err := a.sessions.Claims()
	if err != nil {
		a.logger.Debug().Err(err).Msg("token claims unreadable")
		return &session.Claims{}, nil
	}
	return claims, nil
}

// userError turns a backend failure into the message a person should see.
func userError(err error, fallback string) error {
	switch {
	case form.IsValidation(err):
		return errors.New(form.Message(err))
	case gateway.IsAuth(err):
		return errors.New(ui.SessionExpired)
	}
	return fmt.Errorf("%s: %w", ui.ErrorMessage(err, fallback), err)
}
