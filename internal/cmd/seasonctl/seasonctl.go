// Package seasonctl implements the operator and auditor CLI for the season
// control plane.
package seasonctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/outlast/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/outlast/internal/platform/grpc"
	"github.com/louisbranch/outlast/internal/platform/logging"
	"github.com/louisbranch/outlast/internal/platform/timeouts"
	"github.com/louisbranch/outlast/internal/services/season/api/gmauth"
	"github.com/louisbranch/outlast/internal/services/season/api/grpc/control"
	"github.com/louisbranch/outlast/internal/services/season/domain/vote"
	"github.com/louisbranch/outlast/internal/services/season/service"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Config holds the CLI defaults read from the environment.
type Config struct {
	Addr        string        `env:"SEASONCTL_ADDR" envDefault:"localhost:8090"`
	Token       string        `env:"SEASONCTL_TOKEN"`
	TokenSecret string        `env:"SEASON_GM_TOKEN_SECRET"`
	Timeout     time.Duration `env:"SEASONCTL_TIMEOUT"`
}

type options struct {
	cfg    Config
	out    io.Writer
	logger zerolog.Logger
}

// NewRootCommand builds the seasonctl command tree writing results to out.
func NewRootCommand(out io.Writer) (*cobra.Command, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.GRPCRequest
	}
	opts := &options{cfg: cfg, out: out, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           entrypoint.ServiceSeasonCtl,
		Short:         "Operate and audit season orchestrator deployments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfg.Addr, "addr", cfg.Addr, "season gRPC control plane address")
	flags.StringVar(&opts.cfg.Token, "token", cfg.Token, "game master bearer token")
	flags.DurationVar(&opts.cfg.Timeout, "timeout", cfg.Timeout, "per-request timeout")
	verbose := flags.Bool("verbose", false, "log dial progress to stderr")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if *verbose {
			logger, err := logging.New(cmd.ErrOrStderr(), logging.Config{Level: "debug", Format: logging.FormatConsole})
			if err != nil {
				return err
			}
			opts.logger = logger
		}
		return nil
	}

	root.AddCommand(
		healthCommand(opts),
		seasonCommand(opts),
		verifyCommand(opts),
		tallyCommand(opts),
		controlCommand(opts),
		tokenCommand(opts),
	)
	return root, nil
}

// Execute runs the CLI with args inside the telemetry wrapper.
func Execute(ctx context.Context, out io.Writer, args []string) error {
	root, err := NewRootCommand(out)
	if err != nil {
		return err
	}
	root.SetArgs(args)
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeasonCtl, root.ExecuteContext)
}

func (o *options) client(ctx context.Context) (*control.Client, func(), error) {
	conn, err := platformgrpc.Dial(ctx, platformgrpc.Target{
		Addr:    o.cfg.Addr,
		Service: control.ServiceName,
		Timeout: timeouts.GRPCDial,
		Logf:    logging.Printf(o.logger),
	}, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return nil, nil, err
	}
	return control.NewClient(conn, o.cfg.Token), func() { _ = conn.Close() }, nil
}

func (o *options) call(cmd *cobra.Command, fn func(context.Context, *control.Client) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.cfg.Timeout+timeouts.GRPCDial)
	defer cancel()
	client, closeConn, err := o.client(ctx)
	if err != nil {
		return err
	}
	defer closeConn()
	result, err := fn(ctx, client)
	if err != nil {
		return err
	}
	return o.print(result)
}

func (o *options) print(v any) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func healthCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Wait until the control plane reports SERVING",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.cfg.Timeout)
			defer cancel()
			_, closeConn, err := opts.client(ctx)
			if err != nil {
				return err
			}
			closeConn()
			_, err = fmt.Fprintln(opts.out, "SERVING")
			return err
		},
	}
}

func seasonCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "season <season-id>",
		Short: "Show a season's phase cursor and run state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, func(ctx context.Context, c *control.Client) (any, error) {
				return c.GetSeason(ctx, args[0])
			})
		},
	}
}

func verifyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <season-id>",
		Short: "Recompute a season's event hash chain and signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var valid bool
			err := opts.call(cmd, func(ctx context.Context, c *control.Client) (any, error) {
				report, err := c.VerifyChain(ctx, args[0])
				valid = report.Valid
				return report, err
			})
			if err != nil {
				return err
			}
			if !valid {
				return fmt.Errorf("event chain for season %s failed verification", args[0])
			}
			return nil
		},
	}
}

func tallyCommand(opts *options) *cobra.Command {
	var (
		day   int
		round string
	)
	cmd := &cobra.Command{
		Use:   "tally <season-id>",
		Short: "Show a vote round's tally and revealed ballots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if day < 1 {
				return fmt.Errorf("--day must be at least 1")
			}
			return opts.call(cmd, func(ctx context.Context, c *control.Client) (any, error) {
				return c.VoteRound(ctx, args[0], day, vote.Round(round))
			})
		},
	}
	cmd.Flags().IntVar(&day, "day", 0, "season day of the round")
	cmd.Flags().StringVar(&round, "round", string(vote.RoundMain), "vote round")
	return cmd
}

func controlCommand(opts *options) *cobra.Command {
	var req control.ControlRequest
	cmd := &cobra.Command{
		Use:       "control <season-id> <signal>",
		Short:     "Send an operator signal to a season",
		Long:      "Signals: " + strings.Join(signalNames(), ", "),
		Args:      cobra.ExactArgs(2),
		ValidArgs: signalNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := service.ParseSignal(args[1])
			if err != nil {
				return err
			}
			req.SeasonID = args[0]
			req.Signal = sig
			return opts.call(cmd, func(ctx context.Context, c *control.Client) (any, error) {
				return c.Control(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.Duration, "duration", "", "extension length for extend (for example 2h)")
	cmd.Flags().StringVar(&req.Name, "name", "", "side event name")
	cmd.Flags().StringVar(&req.Note, "note", "", "operator note recorded with the signal")
	return cmd
}

func tokenCommand(opts *options) *cobra.Command {
	var (
		role     string
		seasonID string
		ttl      time.Duration
		secret   string
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token signed with the GM token secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			r := gmauth.Role(strings.TrimSpace(role))
			if r != gmauth.RoleGM && r != gmauth.RolePlayer {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := gmauth.Issue(gmauth.Config{Secret: []byte(secret), TTL: ttl}, args[0], r, seasonID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(opts.out, token)
			return err
		},
	}
	cmd.Flags().StringVar(&role, "role", string(gmauth.RoleGM), "token role (gm or player)")
	cmd.Flags().StringVar(&seasonID, "season", "", "season the player token is scoped to")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default 12h)")
	cmd.Flags().StringVar(&secret, "secret", opts.cfg.TokenSecret, "GM token secret")
	return cmd
}

func signalNames() []string {
	signals := service.Signals()
	names := make([]string, len(signals))
	for i, s := range signals {
		names[i] = string(s)
	}
	return names
}
