// Package cli implements tailorctl, a command-line client for the resume
// tailor API.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"resume-tailor/internal/client"
	"resume-tailor/internal/shared/storage/kv"
	"resume-tailor/internal/shared/telemetry"
)

const (
	keyAPIURL    = "api_url"
	keyToken     = "token"
	keyStateFile = "state_file"
	keyOutput    = "output"

	stateToken   = "auth_token"
	stateGuestID = "guest_id"
)

type envKeyType struct{}

var envKey = envKeyType{}

// env is the per-invocation wiring shared by every subcommand.
type env struct {
	v     *viper.Viper
	state kv.Store
	api   *client.Client
	out   io.Writer
}

func envFromContext(ctx context.Context) *env {
	if e, ok := ctx.Value(envKey).(*env); ok {
		return e
	}
	panic("cli env not found in context")
}

// NewRootCommand builds the command tree. Settings come from flags, then
// TAILOR_* environment variables, then an optional config.yaml in the state
// directory.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TAILOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(keyAPIURL, "http://localhost:8080")
	v.SetDefault(keyStateFile, defaultStateFile())
	v.SetDefault(keyOutput, "text")

	root := &cobra.Command{
		Use:           "tailorctl",
		Short:         "Score resumes against job descriptions from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd, v)
		},
	}

	flags := root.PersistentFlags()
	flags.String("api-url", "", "API base URL")
	flags.String("token", "", "bearer token (overrides the stored sign-in)")
	flags.String("state-file", "", "path of the local state file")
	flags.StringP("output", "o", "", "output format: text or json")
	_ = v.BindPFlag(keyAPIURL, flags.Lookup("api-url"))
	_ = v.BindPFlag(keyToken, flags.Lookup("token"))
	_ = v.BindPFlag(keyStateFile, flags.Lookup("state-file"))
	_ = v.BindPFlag(keyOutput, flags.Lookup("output"))

	root.AddCommand(
		newAnalyzeCommand(),
		newNormalizeCommand(),
		newValidateCommand(),
		newUsageCommand(),
		newSubscriptionCommand(),
		newFeaturesCommand(),
		newLoginCommand(),
		newLogoutCommand(),
	)
	return root
}

// Execute runs tailorctl with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, v *viper.Viper) error {
	statePath := v.GetString(keyStateFile)
	v.SetConfigFile(filepath.Join(filepath.Dir(statePath), "config.yaml"))
	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
		return fmt.Errorf("read config: %w", err)
	}

	switch v.GetString(keyOutput) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported output format %q", v.GetString(keyOutput))
	}

	state := kv.NewFile(statePath)
	e := &env{v: v, state: state, out: cmd.OutOrStdout()}
	api, err := e.newClient(cmd.Context())
	if err != nil {
		return err
	}
	e.api = api

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, envKey, e))
	telemetry.Logger().Debug().Str("api_url", v.GetString(keyAPIURL)).Str("state", statePath).Msg("tailorctl.setup")
	return nil
}

func (e *env) newClient(ctx context.Context) (*client.Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	token, err := e.token(ctx)
	if err != nil {
		return nil, err
	}
	opts := []client.Option{client.WithToken(token)}
	if token == "" {
		guestID, err := e.guestID(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithGuestID(guestID))
	}
	return client.New(e.v.GetString(keyAPIURL), opts...), nil
}

// token prefers an explicit flag or env value over the stored sign-in.
func (e *env) token(ctx context.Context) (string, error) {
	if t := strings.TrimSpace(e.v.GetString(keyToken)); t != "" {
		return t, nil
	}
	t, _, err := e.state.Get(ctx, stateToken)
	return t, err
}

func (e *env) signedIn(ctx context.Context) bool {
	t, err := e.token(ctx)
	return err == nil && t != ""
}

func (e *env) print(v any, text func(w io.Writer)) error {
	if e.v.GetString(keyOutput) == "json" {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(e.out)
	return nil
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tailorctl/state.json"
	}
	return filepath.Join(home, ".tailorctl", "state.json")
}
