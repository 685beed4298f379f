package commands

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ziminpro/bird/internal/auth"
	"github.com/ziminpro/bird/internal/client"
	"github.com/ziminpro/bird/internal/session"
)

// NewUsersCmd creates the users command (administrators only)
func NewUsersCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users (administrators)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, _, err := env.authorize("users", auth.RequireAdmin)
			if err != nil {
				return err
			}

			users, err := cs.api.ListUsers(cmd.Context())
			if err != nil {
				return env.finish(cs, err)
			}
			if len(users) == 0 {
				env.println("No users found.")
				return nil
			}

			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLES")
			fmt.Fprintln(w, "──\t────\t─────\t─────")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, formatRoles(u.Roles.Names()))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(
		newUserRolesCmd(env),
		newUserDeleteCmd(env),
		newUserRotateSecretCmd(env),
	)
	return cmd
}

func newUserRolesCmd(env *Env) *cobra.Command {
	var roles []string

	cmd := &cobra.Command{
		Use:   "roles <user-id>",
		Short: "Replace the roles of a user",
		Long: `Replace the roles of a user. Without --role an interactive picker starts
from the user's current roles.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, _, err := env.authorize("users roles", auth.RequireAdmin)
			if err != nil {
				return err
			}
			id := args[0]

			var next []session.Role
			if cmd.Flags().Changed("role") {
				for _, r := range roles {
					role := session.Role(strings.ToUpper(strings.TrimSpace(r)))
					if role == "" {
						continue
					}
					if !slices.Contains(session.AllRoles, role) {
						return fmt.Errorf("unknown role %q (known: %s)", r, formatRoles(session.AllRoles))
					}
					if !slices.Contains(next, role) {
						next = append(next, role)
					}
				}
			} else {
				user, err := findUser(cmd, env, cs, id)
				if err != nil {
					return err
				}
				next, err = env.Prompter.Roles(user.DisplayName(), user.Roles.Names())
				if err != nil {
					return promptError("role selection", "use --role", err)
				}
			}

			if err := cs.api.UpdateUserRoles(cmd.Context(), id, next); err != nil {
				return env.finish(cs, err)
			}
			env.printf("✓ Roles of %s set to %s\n", id, formatRoles(next))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to grant (repeatable); pass --role= to remove all")
	return cmd
}

func newUserDeleteCmd(env *Env) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, _, err := env.authorize("users delete", auth.RequireAdmin)
			if err != nil {
				return err
			}
			id := args[0]

			if !yes {
				ok, err := env.Prompter.Confirm(fmt.Sprintf("Delete user %s", id))
				if err != nil {
					return promptError("confirmation", "use --yes", err)
				}
				if !ok {
					env.println("Aborted.")
					return nil
				}
			}

			if err := cs.api.DeleteUser(cmd.Context(), id); err != nil {
				return env.finish(cs, err)
			}
			env.printf("✓ Deleted %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newUserRotateSecretCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-secret <user-id>",
		Short: "Revoke every token issued to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, _, err := env.authorize("users rotate-secret", auth.RequireAdmin)
			if err != nil {
				return err
			}
			if err := cs.api.RotateSecret(cmd.Context(), args[0]); err != nil {
				return env.finish(cs, err)
			}
			env.printf("✓ Secret of %s rotated\n", args[0])
			return nil
		},
	}
}

func findUser(cmd *cobra.Command, env *Env, cs *cliSession, id string) (client.DirectoryUser, error) {
	users, err := cs.api.ListUsers(cmd.Context())
	if err != nil {
		return client.DirectoryUser{}, env.finish(cs, err)
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return client.DirectoryUser{}, fmt.Errorf("user %s not found", id)
}
