package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env.session("logout").ctx.Logout()
			env.println("Signed out.")
			return nil
		},
	}
}

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(env *Env) *cobra.Command {
	var showClaims bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := env.session("whoami").ctx.Snapshot()
			if !snap.IsAuthenticated() {
				env.println("Not signed in.")
				return nil
			}

			u := snap.Session.User
			env.printf("%s <%s>\n", u.Name, u.Email)
			env.printf("  ID:      %s\n", u.ID)
			env.printf("  Roles:   %s\n", formatRoles(snap.Roles()))
			env.printf("  Expires: %s\n", time.Unix(snap.Session.ExpiresAt, 0).Format(time.RFC1123))

			if !showClaims {
				return nil
			}
			claims, err := snap.Session.TokenClaims()
			if err != nil {
				return fmt.Errorf("failed to read token claims: %w", err)
			}
			keys := make([]string, 0, len(claims))
			for k := range claims {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			env.println("  Claims:")
			for _, k := range keys {
				env.printf("    %s: %v\n", k, claims[k])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showClaims, "claims", false, "Also print the token's claims")
	return cmd
}
