package main

import (
	"fmt"
	"strings"

	"fictures-server/internal/app"
	"fictures-server/internal/models"
	"fictures-server/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func storyArg(args []string) (uuid.UUID, error) {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid story id %q: %w", args[0], err)
	}
	return id, nil
}

// storyCmd - команда над одной историей от имени системного оператора.
func storyCmd(use, short string, fn func(cmd *cobra.Command, c *app.Components, id uuid.UUID) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <story-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := storyArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(_ *env, c *app.Components) error {
				return fn(cmd, c, id)
			})
		},
	}
}

func newPublishCmd() *cobra.Command {
	return storyCmd("publish", "Mark a story as published", func(cmd *cobra.Command, c *app.Components, id uuid.UUID) error {
		story, err := c.Publish.Publish(cmd.Context(), service.SystemActor(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "story %s: %s\n", story.ID, story.Status)
		return nil
	})
}

func newUnpublishCmd() *cobra.Command {
	return storyCmd("unpublish", "Return a published story to writing", func(cmd *cobra.Command, c *app.Components, id uuid.UUID) error {
		story, err := c.Publish.Unpublish(cmd.Context(), service.SystemActor(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "story %s: %s\n", story.ID, story.Status)
		return nil
	})
}

func newPublishComicsCmd() *cobra.Command {
	return storyCmd("publish-comics", "Publish draft comics of every scene in a story", func(cmd *cobra.Command, c *app.Components, id uuid.UUID) error {
		n, err := c.Publish.PublishComics(cmd.Context(), service.SystemActor(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "story %s: %d scene comics published\n", id, n)
		return nil
	})
}

func newStatusCmd() *cobra.Command {
	return storyCmd("status", "Compare stored entities with the counts the story expects", func(cmd *cobra.Command, c *app.Components, id uuid.UUID) error {
		report, err := c.Status.StoryStatus(cmd.Context(), service.SystemActor(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	})
}

type regenerateFlags struct {
	kinds  []string
	dryRun bool
	force  bool
}

func newRegenerateImagesCmd() *cobra.Command {
	var flags regenerateFlags

	cmd := storyCmd("regenerate-images", "Generate missing (or all, with --force) images of a story", func(cmd *cobra.Command, c *app.Components, id uuid.UUID) error {
		opts := service.RegenerateOptions{DryRun: flags.dryRun, Force: flags.force}
		for _, raw := range flags.kinds {
			kind, err := models.ParseImageKind(strings.TrimSpace(raw))
			if err != nil {
				return err
			}
			opts.Kinds = append(opts.Kinds, kind)
		}
		result, err := c.Regen.RegenerateImages(cmd.Context(), service.SystemActor(), id, opts)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	})

	kindNames := make([]string, 0, len(models.AllImageKinds))
	for _, k := range models.AllImageKinds {
		kindNames = append(kindNames, string(k))
	}
	cmd.Flags().StringSliceVar(&flags.kinds, "kinds", nil, "Image kinds to process: "+strings.Join(kindNames, ", "))
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Only list the images that would be generated")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Regenerate images that already exist")
	return cmd
}

func newDeleteStoryCmd() *cobra.Command {
	var confirm bool
	return withConfirmFlag(storyCmd("delete-story", "Delete a story with all its entities and stored images", func(cmd *cobra.Command, c *app.Components, id uuid.UUID) error {
		report, err := c.Admin.DeleteStory(cmd.Context(), id, confirm)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	}), &confirm)
}

func newDeleteUserStoriesCmd() *cobra.Command {
	var confirm bool
	return withConfirmFlag(&cobra.Command{
		Use:   "delete-user-stories <user-id>",
		Short: "Delete every story owned by a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(_ *env, c *app.Components) error {
				report, err := c.Admin.DeleteUserStories(cmd.Context(), args[0], confirm)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}, &confirm)
}

func withConfirmFlag(cmd *cobra.Command, confirm *bool) *cobra.Command {
	cmd.Flags().BoolVar(confirm, "confirm", false, "Required: confirm the irreversible deletion")
	return cmd
}
