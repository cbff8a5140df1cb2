package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fictures-server/internal/app"
	"fictures-server/internal/models"
	"fictures-server/internal/pipeline"
	"fictures-server/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type generateFlags struct {
	userID     string
	genre      string
	tone       string
	language   string
	characters int
	settings   int
	parts      int
	chapters   int
	scenes     int
	noComics   bool
}

func newGenerateCmd() *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Run one generation and print the progress stream to stdout",
		Long: "Runs the full pipeline for the given prompt on behalf of --user.\n" +
			"Progress is printed as text/event-stream frames. Ctrl+C requests cancellation:\n" +
			"in-flight calls finish and the partial story stays in the database.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, strings.Join(args, " "), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.userID, "user", "u", "", "Owner of the generated story (required)")
	cmd.Flags().StringVar(&flags.genre, "genre", "", "Preferred genre")
	cmd.Flags().StringVar(&flags.tone, "tone", "", "Preferred tone (hopeful, dark, bittersweet, satirical)")
	cmd.Flags().StringVar(&flags.language, "language", "", "Story language")
	cmd.Flags().IntVar(&flags.characters, "characters", 0, "Number of characters")
	cmd.Flags().IntVar(&flags.settings, "settings", 0, "Number of settings")
	cmd.Flags().IntVar(&flags.parts, "parts", 0, "Number of parts")
	cmd.Flags().IntVar(&flags.chapters, "chapters", 0, "Chapters per part")
	cmd.Flags().IntVar(&flags.scenes, "scenes", 0, "Scenes per chapter")
	cmd.Flags().BoolVar(&flags.noComics, "no-comics", false, "Skip the comics phase")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func (f generateFlags) input(cmd *cobra.Command, prompt string) models.GenerationRequestInput {
	in := models.GenerationRequestInput{
		UserPrompt:     prompt,
		PreferredGenre: f.genre,
		PreferredTone:  f.tone,
		Language:       f.language,
	}
	// незаданный флаг означает значение по умолчанию, а не ноль
	intFlag := func(name string, v int) *int {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		return &v
	}
	in.CharacterCount = intFlag("characters", f.characters)
	in.SettingCount = intFlag("settings", f.settings)
	in.PartsCount = intFlag("parts", f.parts)
	in.ChaptersPerPart = intFlag("chapters", f.chapters)
	in.ScenesPerChapter = intFlag("scenes", f.scenes)
	if f.noComics {
		comics := false
		in.GenerateComics = &comics
	}
	return in
}

func runGenerate(cmd *cobra.Command, prompt string, flags generateFlags) error {
	ctx := cmd.Context()
	return withApp(ctx, func(e *env, c *app.Components) error {
		actor := service.Actor{UserID: flags.userID}
		sink := pipeline.NewWriterSink("stdout", cmd.OutOrStdout(), nil)

		runID, err := c.Runs.Start(ctx, actor, flags.input(cmd, prompt), sink)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "run %s started\n", runID)

		result, err := c.Runs.Wait(ctx, runID)
		if errors.Is(err, context.Canceled) {
			// сигнал пришёл раньше конца запуска: просим остановиться и ждём, пока дозапишется уже сгенерированное
			if cancelErr := c.Runs.Cancel(context.Background(), actor, runID); cancelErr != nil {
				e.log.Warn("Failed to cancel run", zap.String("run_id", runID.String()), zap.Error(cancelErr))
			}
			waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			result, err = c.Runs.Wait(waitCtx, runID)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_ = c.Manager.Shutdown(shutdownCtx)

		if err != nil {
			return err
		}
		if result != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "run %s finished, story %s\n", runID, result.StoryID)
		}
		return nil
	})
}
