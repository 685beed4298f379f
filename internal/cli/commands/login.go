package commands

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziminpro/bird/internal/auth"
	"github.com/ziminpro/bird/internal/session"
)

// NewLoginCmd creates the login command
func NewLoginCmd(env *Env) *cobra.Command {
	var (
		email, password string
		remember        bool
		redirectURL     string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to Bird",
		Long: `Sign in with email and password. With --remember (the default) the session
is kept in the OS keychain; otherwise it lasts until you log out of this machine.

Signed in with GitHub in the browser? Pass the address you were sent back to
with --redirect-url to reuse that session here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if redirectURL != "" {
				return runRedirectLogin(env, redirectURL)
			}
			return runLogin(cmd, env, email, password, remember)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set BIRD_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set BIRD_PASSWORD, will prompt if not provided)")
	cmd.Flags().BoolVar(&remember, "remember", true, "Keep the session after you log out of this machine")
	cmd.Flags().StringVar(&redirectURL, "redirect-url", "", "OAuth return address carrying the session")

	return cmd
}

func runLogin(cmd *cobra.Command, env *Env, email, password string, remember bool) error {
	// Environment variables are useful for CI
	if email == "" {
		email = os.Getenv("BIRD_EMAIL")
	}
	if password == "" {
		password = os.Getenv("BIRD_PASSWORD")
	}

	loginURL := env.Config.AuthURL(auth.LoginPath)
	if loginURL == "" {
		return errors.New(auth.NotConfiguredMessage)
	}

	var err error
	if email == "" {
		if email, err = env.Prompter.Email(); err != nil {
			return promptError("email", "use --email flag or BIRD_EMAIL env var", err)
		}
	}
	if password == "" {
		if password, err = env.Prompter.Password(); err != nil {
			return promptError("password", "use --password flag or BIRD_PASSWORD env var", err)
		}
	}

	cs := env.session("login")
	env.printf("Signing in to %s...\n", env.Config.Services.AuthBaseURL)

	sess, err := cs.ctx.Login(cmd.Context(), loginURL, auth.Credentials{
		Email:      strings.TrimSpace(email),
		Password:   password,
		RememberMe: remember,
	})
	if err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			return errors.New(auth.NotConfiguredMessage)
		}
		return err
	}

	printSignedIn(env, sess, remember)
	return nil
}

func runRedirectLogin(env *Env, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}

	cs := env.session("login")
	if _, present := auth.ApplyRedirectSession(cs.ctx, u); !present {
		return fmt.Errorf("the URL has no %q parameter", auth.RedirectParam)
	}

	sess, ok := cs.ctx.Session()
	if !ok {
		return errors.New("the URL does not carry a valid session. Sign in again in the browser")
	}
	printSignedIn(env, sess, true)
	return nil
}

func printSignedIn(env *Env, sess session.Session, remember bool) {
	env.println("✓ Signed in")
	env.printf("  User: %s (%s)\n", sess.User.Name, sess.User.Email)
	env.printf("  Roles: %s\n", formatRoles(sess.User.Roles))
	if remember {
		env.printf("  Session kept until %s\n", time.Unix(sess.ExpiresAt, 0).Format(time.RFC1123))
	}
}

func promptError(what, hint string, err error) error {
	if errors.Is(err, ErrNotInteractive) {
		return fmt.Errorf("%s is required in non-interactive mode (%s)", what, hint)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}

func formatRoles(roles []session.Role) string {
	if len(roles) == 0 {
		return "none"
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
