package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziminpro/bird/internal/cli/commands"
	"github.com/ziminpro/bird/internal/config"
	"github.com/ziminpro/bird/internal/logger"
	"github.com/ziminpro/bird/internal/session"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the command tree around env
func NewRootCmd(env *commands.Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bird",
		Short: "Bird - follow producers and read their messages",
		Long: `Bird CLI - the terminal front-end of Bird.

Sign in once with 'bird login'; the session is kept in the OS keychain
(or, with --remember=false, until you log out of this machine).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(env.Out)

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(env.Out, "bird version %s\n", version)
		},
	})

	// Add all subcommands
	rootCmd.AddCommand(commands.NewLoginCmd(env))
	rootCmd.AddCommand(commands.NewLogoutCmd(env))
	rootCmd.AddCommand(commands.NewWhoamiCmd(env))
	rootCmd.AddCommand(commands.NewFeedCmd(env))
	rootCmd.AddCommand(commands.NewPostCmd(env))
	rootCmd.AddCommand(commands.NewSubscriptionsCmd(env))
	rootCmd.AddCommand(commands.NewSubscribersCmd(env))
	rootCmd.AddCommand(commands.NewUsersCmd(env))

	return rootCmd
}

// DefaultEnv wires the commands to the environment configuration, the OS
// keychain and the runtime directory
func DefaultEnv(out io.Writer) (*commands.Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Diagnostics stay quiet unless LOG_LEVEL asks for them
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "error"
	}
	logger.Init(level, "console")
	log := logger.Component("cli")

	return &commands.Env{
		Config:     cfg,
		Logger:     log,
		Visit:      session.NewFileStorage(session.RuntimeDir(), log),
		Durable:    session.NewKeyringStorage(session.KeyringService, log),
		HTTPClient: &http.Client{Timeout: cfg.Services.HTTPTimeout},
		Prompter:   commands.TerminalPrompter{},
		Out:        out,
	}, nil
}

// Execute runs the root command
func Execute() error {
	env, err := DefaultEnv(os.Stdout)
	if err == nil {
		err = NewRootCmd(env).Execute()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
