package main

import (
	"fmt"
	"time"

	"fictures-server/internal/auth"
	"fictures-server/internal/database"
	"fictures-server/internal/models"

	"github.com/spf13/cobra"
)

type apiKeyFlags struct {
	email  string
	name   string
	role   string
	scopes []string
	ttl    time.Duration
}

func newCreateAPIKeyCmd() *cobra.Command {
	var flags apiKeyFlags

	cmd := &cobra.Command{
		Use:   "create-api-key <user-id>",
		Short: "Issue an API key for a user (the user is created if missing)",
		Long:  "The raw key is printed once. Only its bcrypt hash is stored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(e *env) error {
				repo := database.NewPgAPIKeyRepository(e.pool, e.log)
				user := models.User{ID: args[0], Email: flags.email, Name: flags.name, Role: flags.role}
				issued, err := auth.IssueKey(cmd.Context(), repo, user, flags.scopes, flags.ttl)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "key id:  %s\n", issued.Key.ID)
				fmt.Fprintf(out, "user:    %s\n", issued.Key.UserID)
				fmt.Fprintf(out, "scopes:  %v\n", issued.Key.Scopes)
				if issued.Key.ExpiresAt != nil {
					fmt.Fprintf(out, "expires: %s\n", issued.Key.ExpiresAt.Format(time.RFC3339))
				}
				fmt.Fprintf(out, "api key: %s\n", issued.Raw)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.email, "email", "", "User email")
	cmd.Flags().StringVar(&flags.name, "name", "", "User display name")
	cmd.Flags().StringVar(&flags.role, "role", "writer", "User role")
	cmd.Flags().StringSliceVar(&flags.scopes, "scopes", []string{models.ScopeStoriesRead, models.ScopeStoriesWrite}, "Key scopes")
	cmd.Flags().DurationVar(&flags.ttl, "ttl", 0, "Key lifetime, 0 = no expiry")
	return cmd
}
