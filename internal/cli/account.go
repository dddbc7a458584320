package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"resume-tailor/internal/auth"
	"resume-tailor/internal/client"
	"resume-tailor/internal/subscription"
	"resume-tailor/internal/usage"
)

func newUsageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show how many analyses are left",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFromContext(cmd.Context())
			_, tracker := e.session(cmd.Context())
			check, err := tracker.CheckCanAnalyze(cmd.Context())
			if err != nil {
				return err
			}
			return e.print(check, func(w io.Writer) {
				fmt.Fprintf(w, "Tier: %s\nUsed: %d of %d\nRemaining: %d\n", check.Tier, check.Used, check.Limit, check.Remaining)
				if !check.Allowed {
					fmt.Fprintf(w, "Blocked: %s\n", check.Reason.ErrorCode())
				}
			})
		},
	}
}

func newSubscriptionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "subscription",
		Short: "Show the current plan and its features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFromContext(cmd.Context())
			mgr, _ := e.session(cmd.Context())
			st := mgr.State()
			return e.print(st, func(w io.Writer) {
				fmt.Fprintf(w, "Tier: %s\n", st.Tier)
				fmt.Fprintf(w, "Analyses: %d of %d\n", st.Usage.AnalysesUsed, st.Usage.AnalysesLimit)
				if st.Usage.PeriodEnd != nil {
					fmt.Fprintf(w, "Period ends: %s\n", st.Usage.PeriodEnd.Format("2006-01-02"))
				}
				if st.Subscription != nil {
					fmt.Fprintf(w, "Status: %s\n", st.Subscription.Status)
					if st.Subscription.CancelAtPeriodEnd {
						fmt.Fprintln(w, "Cancels at period end")
					}
				}
				fmt.Fprintf(w, "Features: %s\n", strings.Join(subscription.Features(st.Tier), ", "))
			})
		},
	}
}

func newFeaturesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List every feature and whether the current plan has it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFromContext(cmd.Context())
			mgr, _ := e.session(cmd.Context())
			names := subscription.FeatureNames()
			access := make(map[string]bool, len(names))
			for _, name := range names {
				access[name] = mgr.HasFeature(name)
			}
			return e.print(access, func(w io.Writer) {
				for _, name := range names {
					mark := " "
					if access[name] {
						mark = "x"
					}
					fmt.Fprintf(w, "[%s] %s\n", mark, name)
				}
			})
		},
	}
}

func newLoginCommand() *cobra.Command {
	var email, password, sessionID string
	var signUp bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and move guest usage onto the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e := envFromContext(ctx)

			guestID, err := e.guestID(ctx)
			if err != nil {
				return err
			}
			api := client.New(e.v.GetString(keyAPIURL), client.WithGuestID(guestID))
			var sess auth.Session
			if signUp {
				sess, err = api.SignUp(ctx, email, password, "")
			} else {
				sess, err = api.SignIn(ctx, email, password)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", client.MessageKey(err), err)
			}

			// The local counter is drained before the claim; the server only
			// credits it once per account anyway.
			used, err := usage.NewTracker(e.state, nil).TransferGuestUsage(ctx)
			if err != nil {
				return err
			}
			res, err := api.Claim(ctx, sessionID, used)
			if err != nil {
				return fmt.Errorf("%s: %w", client.MessageKey(err), err)
			}
			if err := e.state.Set(ctx, stateToken, sess.Token, 0); err != nil {
				return err
			}
			return e.print(res, func(w io.Writer) {
				fmt.Fprintf(w, "Signed in as %s (%s)\n", email, res.Subscription.Tier)
				if res.CreditedUsage > 0 || res.MigratedAnalyses > 0 {
					fmt.Fprintf(w, "Moved %d analyses and %d used credits from this device\n", res.MigratedAnalyses, res.CreditedUsage)
				}
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (or TAILOR_PASSWORD)")
	cmd.Flags().StringVar(&sessionID, "checkout-session", "", "completed checkout session to attach")
	cmd.Flags().BoolVar(&signUp, "signup", false, "create the account first")
	_ = cmd.MarkFlagRequired("email")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if password == "" {
			password = envFromContext(cmd.Context()).v.GetString("password")
		}
		if password == "" {
			return fmt.Errorf("password is required")
		}
		return nil
	}
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e := envFromContext(ctx)
			if e.signedIn(ctx) {
				if err := e.api.SignOut(ctx); err != nil {
					return fmt.Errorf("%s: %w", client.MessageKey(err), err)
				}
			}
			if err := e.state.Clear(ctx, stateToken); err != nil {
				return err
			}
			return e.print(map[string]bool{"signedOut": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Signed out")
			})
		},
	}
}
