package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keymesh/socialproof/db/migrations"
	"github.com/keymesh/socialproof/db/migrator"
	httpapi "github.com/keymesh/socialproof/internal/adapters/inbound/http"
	"github.com/keymesh/socialproof/internal/adapters/outbound/ethereum"
	"github.com/keymesh/socialproof/internal/adapters/outbound/postgres"
	"github.com/keymesh/socialproof/internal/adapters/outbound/telemetry"
	"github.com/keymesh/socialproof/internal/config"
	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/services/proving"
)

// rootState is shared by subcommands through closures.
type rootState struct {
	network string
	cfg     *config.Config
	logger  *slog.Logger

	// loadConfig and appOpts are replaced in tests.
	loadConfig func() (*config.Config, error)
	appOpts    appOptions
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(&rootState{loadConfig: config.Load})
}

func newRootCommandWith(state *rootState) *cobra.Command {
	root := &cobra.Command{
		Use:           "socialproof",
		Short:         "Bind social accounts to blockchain identities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := state.loadConfig()
			if err != nil {
				return err
			}
			if state.network != "" {
				if _, err := entity.ParseNetworkID(state.network); err != nil {
					return err
				}
				cfg.Network = state.network
			}
			state.cfg = cfg
			state.logger = cfg.NewLogger(cmd.ErrOrStderr())
			slog.SetDefault(state.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&state.network, "network", "n", "", "network name or id (default $NETWORK)")

	root.AddCommand(
		newServeCommand(state),
		newIdentityCommand(state),
		newAvatarCommand(state),
		newLookupCommand(state),
		newProfileCommand(state),
		newSearchCommand(state),
		newValidateReceiverCommand(state),
		newUnbindCommand(state),
		newProveCommand(state),
		newMigrateCommand(state),
	)
	return root
}

// withApp wires the application for one command invocation.
func withApp(cmd *cobra.Command, state *rootState, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, state.cfg, state.logger, state.appOpts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := state.cfg
			if cfg.Telemetry.Traces || cfg.Telemetry.OTLPEndpoint != "" {
				shutdownTracer, err := telemetry.InitTracer(cmd.Context(), telemetry.TracerConfig{
					ServiceName:  cfg.Telemetry.ServiceName,
					Environment:  cfg.Telemetry.Environment,
					OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
					SampleRate:   cfg.Telemetry.SampleRate,
				})
				if err != nil {
					return err
				}
				defer shutdownTracer(context.Background())
			}
			shutdownMetrics, err := telemetry.InitMetrics(cmd.Context(), telemetry.MetricConfig{
				ServiceName:  cfg.Telemetry.ServiceName,
				Environment:  cfg.Telemetry.Environment,
				OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			})
			if err != nil {
				return err
			}
			defer shutdownMetrics(context.Background())

			return withApp(cmd, state, func(ctx context.Context, a *app) error {
				handler := httpapi.NewHandler(a.registry, a.directory, a.rechecker, a.health, a.logger)
				server := httpapi.NewServer(httpapi.ServerConfig{
					Addr:         cfg.HTTP.Addr,
					Logger:       a.logger,
					ReadTimeout:  cfg.HTTP.ReadTimeout,
					WriteTimeout: cfg.HTTP.WriteTimeout,
				}, handler)

				errCh := make(chan error, 1)
				go func() { errCh <- server.ListenAndServe() }()

				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
					a.logger.Info("shutting down")
					return server.Shutdown(10 * time.Second)
				}
			})
		},
	}
}

func newIdentityCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "identity <address>",
		Short: "Print the chain identity of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, state, func(ctx context.Context, a *app) error {
				id, err := a.registry.GetIdentity(ctx, state.cfg.DefaultNetwork(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), id)
			})
		},
	}
}

func newAvatarCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "avatar <address>",
		Short: "Print the avatar hash of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, state, func(ctx context.Context, a *app) error {
				hash, err := a.registry.GetAvatarHash(ctx, state.cfg.DefaultNetwork(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
				return err
			})
		},
	}
}

func newLookupCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <address|username>",
		Short: "Print the aggregated directory profiles for an address or username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, state, func(ctx context.Context, a *app) error {
				profiles, err := a.directory.Lookup(ctx, state.cfg.DefaultNetwork(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), profiles)
			})
		},
	}
}

func newProfileCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <address>",
		Short: "Print the aggregated directory profile of one address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, state, func(ctx context.Context, a *app) error {
				if a.userinfo == nil {
					return errNoDirectory
				}
				profile, err := a.userinfo.LookupByAddress(ctx, state.cfg.DefaultNetwork(), args[0])
				if err != nil {
					return err
				}
				if profile == nil {
					return fmt.Errorf("profile of %s: %w", args[0], entity.ErrNotFound)
				}
				return printJSON(cmd.OutOrStdout(), profile)
			})
		},
	}
}

func newValidateReceiverCommand(state *rootState) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "validate-receiver <address>",
		Short: "Check that an address can receive messages from --from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, state, func(ctx context.Context, a *app) error {
				cache, err := a.registry.Select(state.cfg.DefaultNetwork())
				if err != nil {
					return err
				}
				if err := cache.ValidateReceiver(ctx, args[0], from); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s can receive messages\n", entity.NormalizeAddress(args[0]))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sender address")
	return cmd
}

func newUnbindCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "unbind <address> [platform...]",
		Short: "Remove bindings of an address; with no platform the whole record is removed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !entity.IsAddress(args[0]) {
				return fmt.Errorf("%w: invalid ethereum address %q", entity.ErrInvalidInput, args[0])
			}
			key := entity.NewRecordKey(state.cfg.DefaultNetwork(), args[0])
			platforms := make([]entity.Platform, 0, len(args)-1)
			for _, name := range args[1:] {
				p, err := entity.ParsePlatform(name)
				if err != nil {
					return err
				}
				platforms = append(platforms, p)
			}

			return withApp(cmd, state, func(ctx context.Context, a *app) error {
				if len(platforms) == 0 {
					return a.verification.Remove(ctx, key)
				}
				for _, p := range platforms {
					if _, err := a.verification.Unbind(ctx, key, p); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newSearchCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "search <prefix>",
		Short: "Search the directory by username prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, state, func(ctx context.Context, a *app) error {
				profiles, err := a.directory.Search(ctx, state.cfg.DefaultNetwork(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), profiles)
			})
		},
	}
}

func newProveCommand(state *rootState) *cobra.Command {
	var (
		userID      string
		accessToken string
		interval    time.Duration
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "prove <twitter|facebook> <handle>",
		Short: "Print the claim to publish, then poll until it is found",
		Long: "prove signs a claim with SIGNER_KEY and prints the text to publish.\n" +
			"It then checks the platform every --interval until the claim is found or --timeout passes.\n" +
			"Facebook additionally needs --user-id and --access-token.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := entity.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			if state.cfg.SignerKey == "" {
				return errors.New("SIGNER_KEY is not set")
			}
			signer, err := ethereum.NewKeySigner(state.cfg.SignerKey)
			if err != nil {
				return err
			}

			return withApp(cmd, state, func(ctx context.Context, a *app) error {
				m, err := proving.NewMachine(proving.Config{
					NetworkID: state.cfg.DefaultNetwork(),
					Logger:    a.logger,
					Metrics:   a.metrics,
					Events:    a.events,
				}, a.adapters[platform], signer, ethereum.Verifier{}, a.verification)
				if err != nil {
					return err
				}
				defer m.Close()

				identity := entity.PlatformIdentity{Username: args[1], UserID: userID, AccessToken: accessToken}
				if err := m.Authorize(identity); err != nil {
					return err
				}
				if err := m.SetClaim(ctx, args[1], signer.Address(), signer.PublicKey()); err != nil {
					return err
				}
				snap := m.Snapshot()
				key := entity.NewRecordKey(state.cfg.DefaultNetwork(), signer.Address())
				if _, err := a.verification.StartBinding(ctx, key, entity.BoundSocial{
					Platform:    platform,
					SignedClaim: *snap.Claim,
					Username:    snap.Username,
				}); err != nil {
					return err
				}
				text, err := m.ClaimText()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Publish the following on %s:\n\n%s\n\n", platform, text)
				m.Continue()

				return pollProof(ctx, m, out, interval, timeout)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "facebook user id")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "facebook user access token")
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "time between checks")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up after this long")
	return cmd
}

// pollProof checks until the machine reaches PhaseDone.
func pollProof(ctx context.Context, m *proving.Machine, out io.Writer, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := m.CheckProof(ctx)
		switch {
		case errors.Is(err, entity.ErrTransientIO):
			fmt.Fprintf(out, "%s: check failed (%v), retrying in %s\n", time.Now().Format(time.TimeOnly), err, interval)
		case err != nil:
			return err
		case result == entity.VerifyValid:
			snap := m.Snapshot()
			if snap.BoundSocial != nil {
				fmt.Fprintf(out, "bound: %s\n", snap.BoundSocial.ProofURL)
			}
			return nil
		default:
			fmt.Fprintf(out, "%s: %s, retrying in %s\n", time.Now().Format(time.TimeOnly), result, interval)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("claim not found before timeout: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func newMigrateCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if state.cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			pool, err := postgres.OpenPool(cmd.Context(), postgres.DefaultDBConfig(state.cfg.Database.URL))
			if err != nil {
				return err
			}
			defer pool.Close()

			m := migrator.New(pool, migrations.FS, state.logger)
			if err := m.ApplyAll(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			applied, err := m.ListApplied(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations up to date: %s\n", strings.Join(applied, ", "))
			return nil
		},
	}
}
