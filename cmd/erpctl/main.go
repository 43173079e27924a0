package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/angelmondragon/minierp-console/internal/console"
	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/internal/state"
	"github.com/angelmondragon/minierp-console/pkg/config"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
	"github.com/angelmondragon/minierp-console/pkg/security"
)

const defaultProfile = "default"

// workspace is what one invocation works against: the console of the selected
// profile plus whatever has to be released afterwards.
type workspace struct {
	console *console.Console
	close   func() error
}

// opener builds the workspace for a profile.
type opener func(ctx context.Context, profile string) (*workspace, error)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, release := newRootCmd(openFromEnv, os.Stdout)
	err := root.ExecuteContext(ctx)
	err = multierr.Append(err, release())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		stop()
		os.Exit(exitCode(err))
	}
}

// newRootCmd wires the command tree. The returned func releases the workspace
// opened by whichever command ran and must be called once execution returns.
func newRootCmd(open opener, out io.Writer) (*cobra.Command, func() error) {
	var (
		profile string
		ws      *workspace
	)

	root := &cobra.Command{
		Use:           "erpctl",
		Short:         "Mini ERP console from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			ws, err = open(cmd.Context(), profile)
			return err
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&profile, "profile", defaultProfile, "console profile; each profile keeps its own session and cart")

	current := func() *console.Console {
		return ws.console
	}

	root.AddCommand(
		newLoginCmd(current),
		newLogoutCmd(current),
		newWhoamiCmd(current),
		newRegisterCmd(current),
		newProductsCmd(current),
		newCartCmd(current),
		newOrdersCmd(current),
		newDashboardCmd(current),
	)

	release := func() error {
		if ws == nil || ws.close == nil {
			return nil
		}
		err := ws.close()
		ws = nil
		return err
	}
	return root, release
}

func openFromEnv(ctx context.Context, profile string) (*workspace, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}

	logg := logger.New(logger.Options{
		ServiceName: "erpctl",
		Level:       logger.ParseLevel(cfg.Log.Level),
		WarnStack:   cfg.Log.WarnStack,
		Output:      os.Stderr,
	})

	// The command line keeps its state locally; redis is a server concern.
	backend, err := state.Open(ctx, cfg.State, cfg.DB, config.RedisConfig{}, logg)
	if err != nil {
		return nil, err
	}

	var sealer *security.Sealer
	if cfg.State.SealKey != "" {
		if sealer, err = security.NewSealer(cfg.State.SealKey); err != nil {
			return nil, multierr.Append(err, backend.Close())
		}
	}

	erp, err := gateway.NewClient(
		gateway.WithBaseURL(cfg.Backend.BaseURL),
		gateway.WithTimeout(cfg.Backend.Timeout),
		gateway.WithLogger(logg),
	)
	if err != nil {
		return nil, multierr.Append(err, backend.Close())
	}

	registry, err := console.NewRegistry(console.Deps{
		State:        backend.KV,
		Backend:      erp,
		Sealer:       sealer,
		OrderMetrics: metrics.NewOrderMetrics(prometheus.NewRegistry()),
		Logger:       logg,
	})
	if err != nil {
		return nil, multierr.Append(err, backend.Close())
	}

	c, err := registry.Get(ctx, profile)
	if err != nil {
		return nil, multierr.Append(err, backend.Close())
	}

	return &workspace{
		console: c,
		close: func() error {
			registry.Forget(profile)
			return backend.Close()
		},
	}, nil
}

// describe prefers the user facing message of typed errors and appends their
// details when the code allows them.
func describe(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Message() == "" {
		return err.Error()
	}
	msg := typed.Message()
	if typed.Details() != nil && pkgerrors.MetadataFor(typed.Code()).DetailsAllowed {
		if raw, mErr := json.Marshal(typed.Details()); mErr == nil {
			msg += " " + string(raw)
		}
	}
	return msg
}

func exitCode(err error) int {
	if pkgerrors.As(err) == nil {
		return 1
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation:
		return 2
	case pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden:
		return 3
	case pkgerrors.CodeNotFound:
		return 4
	case pkgerrors.CodeConflict, pkgerrors.CodeStateConflict:
		return 5
	case pkgerrors.CodeDependency:
		return 6
	default:
		return 1
	}
}
