package admin

import (
	"chatroulette/backend/internal/api/handler"
	"chatroulette/backend/internal/matchmaking"
	"chatroulette/backend/internal/premium"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func newQueueCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List the waiting pool in service order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := opts.store(ctx)
			if err != nil {
				return err
			}
			entries, err := st.QueueEntries(ctx)
			if err != nil {
				return err
			}
			now := opts.Now()
			return opts.print(cmd.OutOrStdout(), entries, func(w io.Writer) {
				fmt.Fprintf(w, "%d waiting\n", len(entries))
				for i, e := range entries {
					fmt.Fprintf(w, "%3d. user=%d priority=%d waiting=%s\n",
						i+1, e.UserID, e.Priority, now.Sub(e.EnqueuedAt).Truncate(time.Second))
				}
			})
		},
	}
}

func newEvictCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "evict <user_id>",
		Short: "Remove a user from the waiting pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			st, err := opts.store(cmd.Context())
			if err != nil {
				return err
			}
			if err := matchmaking.NewService(st, nil, nil).Evict(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d evicted.\n", id)
			return nil
		},
	}
}

func newGrantVIPCommand(opts *Options) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "grant-vip <user_id>",
		Short: "Grant VIP for a number of days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			if days <= 0 {
				return errors.New("--days must be positive")
			}
			acc, err := opts.accounts()
			if err != nil {
				return err
			}
			svc := premium.NewService(acc, nil)
			svc.Now = opts.Now
			until := opts.Now().Add(time.Duration(days) * 24 * time.Hour)
			if err := svc.Grant(cmd.Context(), id, until, fmt.Sprintf("vip_granted_%d_days", days)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d is VIP until %s.\n", id, until.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "VIP duration in days")
	return cmd
}

func newAddStarsCommand(opts *Options) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "add-stars <user_id> <amount>",
		Short: "Credit stars to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.Atoi(args[1])
			if err != nil || amount <= 0 {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			acc, err := opts.accounts()
			if err != nil {
				return err
			}
			if err := acc.AddStars(cmd.Context(), id, amount, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d stars to user %d.\n", amount, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "stars_added", "ledger entry label")
	return cmd
}

func newTransactionsCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "transactions <user_id>",
		Short: "Show a user's star ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			acc, err := opts.accounts()
			if err != nil {
				return err
			}
			txs, err := acc.ListTransactions(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), txs, func(w io.Writer) {
				for _, tx := range txs {
					fmt.Fprintf(w, "%s %+d %s\n", tx.CreatedAt.Format(time.RFC3339), tx.Amount, tx.Feature)
				}
			})
		},
	}
}

func newTokenCommand(opts *Options) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl == 0 {
				ttl = opts.Config.Admin.TokenTTL
			}
			token, err := handler.GenerateToken([]byte(opts.Config.Admin.JWTSecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject (operator name)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to admin.token_ttl)")
	return cmd
}
