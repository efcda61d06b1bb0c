package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kwstune/internal/config"
	"github.com/MrWong99/kwstune/internal/health"
	"github.com/MrWong99/kwstune/internal/history"
	"github.com/MrWong99/kwstune/internal/observe"
	"github.com/MrWong99/kwstune/internal/server"
	"github.com/MrWong99/kwstune/internal/tuning"
)

const shutdownTimeout = 15 * time.Second

// withRuntime builds the backends, runs fn and releases them.
func (c *cli) withRuntime(ctx context.Context, m *observe.Metrics, fn func(*runtime) error) error {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	rt, err := buildRuntime(ctx, c.cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Warn("release backends", "err", err)
		}
	}()
	return fn(rt)
}

func (c *cli) stepCmd() *cobra.Command {
	var token, description string
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Run one search step",
		Long: `Run one search step and print the token that resumes the search.

Without --token a fresh search starts and the ledger is cleared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd.Context(), nil, func(rt *runtime) error {
				res := rt.handler.Handle(cmd.Context(), token, description)
				fmt.Fprint(c.out, renderStep(newStyles(), res))
				return res.Err
			})
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "token printed by the previous step")
	cmd.Flags().StringVarP(&description, "description", "d", "", "free text recorded with the finished run")
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	var token, description string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Step until the search finishes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withRuntime(ctx, nil, func(rt *runtime) error {
				st := newStyles()
				for {
					res := rt.handler.Handle(ctx, token, description)
					fmt.Fprint(c.out, renderStep(st, res))
					if res.Err != nil {
						return res.Err
					}
					if res.NextToken == "" {
						return nil
					}
					token = res.NextToken
					if err := ctx.Err(); err != nil {
						fmt.Fprintf(c.out, "interrupted; resume with: kwstune run --token %s\n", token)
						return err
					}
				}
			})
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "resume from this token instead of starting fresh")
	cmd.Flags().StringVarP(&description, "description", "d", "", "free text recorded with the finished run")
	return cmd
}

func (c *cli) ledgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Print the trials of the current refinement round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd.Context(), nil, func(rt *runtime) error {
				rows, err := rt.ledger.Trials(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprint(c.out, renderTrials(newStyles(), rows))
				return nil
			})
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print finished runs",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if c.cfg.History.Path == "" {
				return errors.New("history.path is not configured")
			}
			records, err := history.NewFileStore(c.cfg.History.Path).List()
			if err != nil {
				return err
			}
			fmt.Fprint(c.out, renderHistory(newStyles(), records))
			return nil
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the step surface over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			shutdownTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
				ServiceName: "kwstune",
				Decoder:     c.cfg.Decoder.Name,
				Keywords:    c.cfg.Keywords,
			})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := shutdownTel(sctx); err != nil {
					slog.Warn("telemetry shutdown", "err", err)
				}
			}()

			return c.withRuntime(ctx, observe.DefaultMetrics(), func(rt *runtime) error {
				if watch {
					w, err := config.NewWatcher(c.configPath, c.onConfigChange(rt.handler))
					if err != nil {
						return err
					}
					defer w.Stop()
				}
				return c.serve(ctx, rt)
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload log level and search defaults when the config file changes")
	return cmd
}

func (c *cli) serve(ctx context.Context, rt *runtime) error {
	srv := server.New(rt.handler, rt.ledger,
		server.WithHealth(health.New(rt.checkers...)),
		server.WithMetrics(observe.DefaultMetrics()),
	)
	httpSrv := &http.Server{
		Addr:              c.cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("kwstune listening", "addr", httpSrv.Addr, "keywords", rt.ctrl.Keywords())
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}

// onConfigChange applies the parts of a reloaded config that take effect
// without a restart.
func (c *cli) onConfigChange(h *tuning.Handler) func(old, new *config.Config, diff config.ConfigDiff) {
	return func(_, new *config.Config, diff config.ConfigDiff) {
		if diff.LogLevelChanged && c.logLevel == "" {
			c.level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.SearchChanged {
			s := new.Search
			w := tuning.SearchWindow{Start: s.Start, End: s.End, StepSize: s.StepSize, Samples: s.Samples}
			if err := h.Reconfigure(w, s.MaxSamples, s.StepTimeout); err != nil {
				slog.Warn("ignoring search config change", "err", err)
			} else {
				slog.Info("search defaults changed; they apply to the next fresh search")
			}
		}
		if diff.RestartRequired {
			slog.Warn("config change requires a restart to take effect", "path", c.configPath)
		}
	}
}
