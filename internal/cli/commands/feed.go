package commands

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ziminpro/bird/internal/client"
	"github.com/ziminpro/bird/internal/session"
)

// NewFeedCmd creates the feed command
func NewFeedCmd(env *Env) *cobra.Command {
	var mine bool

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show messages from the producers you follow",
		RunE: func(cmd *cobra.Command, args []string) error {
			role := session.RoleSubscriber
			if mine {
				role = session.RoleProducer
			}
			cs, snap, err := env.requireRole("feed", role)
			if err != nil {
				return err
			}
			userID := snap.Session.User.ID

			var (
				messages []client.Message
				names    map[string]string
			)
			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() (err error) {
				if mine {
					messages, err = cs.api.ProducerMessages(gctx, userID)
				} else {
					messages, err = cs.api.SubscriberFeed(gctx, userID)
				}
				return err
			})
			g.Go(func() error {
				names = directoryNames(gctx, cs.api)
				return nil
			})
			if err := g.Wait(); err != nil {
				return env.finish(cs, err)
			}

			if len(messages) == 0 {
				if mine {
					env.println("You have not posted anything yet.")
				} else {
					env.println("No messages from the people you follow yet.")
					env.println("\nFollow a producer with: bird subscriptions add <user-id>")
				}
				return nil
			}

			w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AUTHOR\tPOSTED\tMESSAGE")
			fmt.Fprintln(w, "──────\t──────\t───────")
			for _, m := range messages {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					nameOr(names, m.Author),
					m.Time().UTC().Format(time.DateTime),
					strings.ReplaceAll(m.Content, "\n", " "),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&mine, "mine", false, "Show your own posts instead (producers)")
	return cmd
}

// NewPostCmd creates the post command
func NewPostCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "post <message>",
		Short: "Publish a message to your subscribers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.TrimSpace(strings.Join(args, " "))
			if content == "" {
				return fmt.Errorf("message is empty")
			}

			cs, snap, err := env.requireRole("post", session.RoleProducer)
			if err != nil {
				return err
			}
			if err := cs.api.PostMessage(cmd.Context(), snap.Session.User.ID, content); err != nil {
				return env.finish(cs, err)
			}
			env.println("✓ Posted")
			return nil
		},
	}
}

// NewSubscriptionsCmd creates the subscriptions command and its add/remove subcommands
func NewSubscriptionsCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "List the producers you follow",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, snap, err := env.requireRole("subscriptions", session.RoleSubscriber)
			if err != nil {
				return err
			}

			var (
				following []string
				names     map[string]string
			)
			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() (err error) {
				following, err = cs.api.Subscriptions(gctx, snap.Session.User.ID)
				return err
			})
			g.Go(func() error {
				names = directoryNames(gctx, cs.api)
				return nil
			})
			if err := g.Wait(); err != nil {
				return env.finish(cs, err)
			}

			if len(following) == 0 {
				env.println("You are not following anyone yet.")
				return nil
			}
			printPeople(env, following, names)
			return nil
		},
	}

	cmd.AddCommand(
		newSubscriptionsChangeCmd(env, "add", "Follow producers", func(current, ids []string) []string {
			return append(slices.Clone(current), ids...)
		}),
		newSubscriptionsChangeCmd(env, "remove", "Unfollow producers", func(current, ids []string) []string {
			return slices.DeleteFunc(slices.Clone(current), func(id string) bool {
				return slices.Contains(ids, id)
			})
		}),
	)
	return cmd
}

func newSubscriptionsChangeCmd(env *Env, use, short string, apply func(current, ids []string) []string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "subscriptions " + use
			cs, snap, err := env.requireRole(command, session.RoleSubscriber)
			if err != nil {
				return err
			}
			userID := snap.Session.User.ID

			current, err := cs.api.Subscriptions(cmd.Context(), userID)
			if err != nil {
				return env.finish(cs, err)
			}
			saved, err := cs.api.SetSubscriptions(cmd.Context(), userID, apply(current, client.Dedupe(args)))
			if err != nil {
				return env.finish(cs, err)
			}

			env.printf("✓ Following %d producer(s)\n", len(saved))
			return nil
		},
	}
}

// NewSubscribersCmd creates the subscribers command
func NewSubscribersCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribers",
		Short: "List the users who follow you",
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, snap, err := env.requireRole("subscribers", session.RoleProducer)
			if err != nil {
				return err
			}

			subscribers, err := cs.api.Subscribers(cmd.Context(), snap.Session.User.ID)
			if err != nil {
				return env.finish(cs, err)
			}
			if len(subscribers) == 0 {
				env.println("Nobody follows you yet.")
				return nil
			}
			printPeople(env, subscribers, directoryNames(cmd.Context(), cs.api))
			return nil
		},
	}
}

func printPeople(env *Env, ids []string, names map[string]string) {
	w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	fmt.Fprintln(w, "──\t────")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\n", id, nameOr(names, id))
	}
	w.Flush()
}
