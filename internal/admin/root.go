// Package admin implements the operator command line.
package admin

import (
	"chatroulette/backend/internal/config"
	"chatroulette/backend/internal/models"
	"chatroulette/backend/internal/premium"
	"chatroulette/backend/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// Accounts is the durable account store the CLI needs.
type Accounts interface {
	premium.Ledger
	AddStars(ctx context.Context, userID int64, amount int, reason string) error
	ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error)
}

// Options holds global flags and lazily opened backends. Tests set Config,
// Store and Accounts directly.
type Options struct {
	ConfigPath string
	Format     string // "text" | "json"

	Config   *config.Config
	Store    storage.Storage
	Accounts Accounts
	Now      func() time.Time

	closers []func() error
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the admin root command.
func NewRootCommand(opts *Options) *cobra.Command {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "ChatRoulette operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			if opts.Config != nil {
				return nil
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.Config = cfg
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.Close()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newQueueCommand(opts))
	cmd.AddCommand(newEvictCommand(opts))
	cmd.AddCommand(newGrantVIPCommand(opts))
	cmd.AddCommand(newAddStarsCommand(opts))
	cmd.AddCommand(newTransactionsCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}

// store opens the Redis participant store on first use.
func (o *Options) store(ctx context.Context) (storage.Storage, error) {
	if o.Store != nil {
		return o.Store, nil
	}
	rdb, err := storage.OpenRedis(ctx, o.Config.Redis)
	if err != nil {
		return nil, err
	}
	o.closers = append(o.closers, rdb.Close)
	o.Store = storage.NewRedisStore(rdb, o.Config.Redis.Prefix)
	return o.Store, nil
}

// accounts opens the Postgres repository on first use.
func (o *Options) accounts() (Accounts, error) {
	if o.Accounts != nil {
		return o.Accounts, nil
	}
	if o.Config.Database.DSN == "" {
		return nil, errors.New("database.dsn is not configured")
	}
	repo, err := storage.OpenPostgres(o.Config.Database.DSN)
	if err != nil {
		return nil, err
	}
	o.closers = append(o.closers, repo.Close)
	o.Accounts = repo
	return repo, nil
}

// Close releases every backend opened by a command.
func (o *Options) Close() error {
	var errs []error
	for _, c := range o.closers {
		errs = append(errs, c())
	}
	o.closers = nil
	return errors.Join(errs...)
}

// print writes v as indented JSON, or calls text for the text format.
func (o *Options) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
