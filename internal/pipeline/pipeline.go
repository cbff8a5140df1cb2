package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fictures-server/internal/clients"
	"fictures-server/internal/interfaces"
	"fictures-server/internal/metrics"
	"fictures-server/internal/models"
	"fictures-server/internal/prompts"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultPanelsPerScene = 3

// Config - настройки последовательности фаз.
type Config struct {
	SceneContentConcurrency int
	TextMaxTokens           int
	SceneMaxTokens          int
	Temperature             float32
	PanelsPerScene          int
}

// Pipeline проводит один запрос через все фазы: текст, запись графа, картинки, комиксы.
type Pipeline struct {
	text    clients.TextGenerator
	prompts *prompts.Library
	writer  *Writer
	fanout  *ImageFanout
	targets *Targets
	cfg     Config
	logger  *zap.Logger
}

func New(text clients.TextGenerator, lib *prompts.Library, repo interfaces.StoryGraphWriter, fanout *ImageFanout, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.SceneContentConcurrency <= 0 {
		cfg.SceneContentConcurrency = 1
	}
	if cfg.PanelsPerScene <= 0 {
		cfg.PanelsPerScene = defaultPanelsPerScene
	}
	if cfg.SceneMaxTokens <= 0 {
		cfg.SceneMaxTokens = cfg.TextMaxTokens
	}
	return &Pipeline{
		text:    text,
		prompts: lib,
		writer:  NewWriter(repo, logger),
		fanout:  fanout,
		targets: NewTargets(lib, logger),
		cfg:     cfg,
		logger:  logger.Named("Pipeline"),
	}
}

// Fanout и Targets нужны регенерации картинок.
func (p *Pipeline) Fanout() *ImageFanout { return p.fanout }
func (p *Pipeline) Targets() *Targets    { return p.targets }

// run - состояние одного запуска.
type run struct {
	id     uuid.UUID
	req    models.GenerationRequest
	em     *Emitter
	stop   <-chan struct{}
	graph  Graph
	remap  *Remapper
	logger *zap.Logger
}

// Run выполняет запуск целиком. Любая ошибка до записи графа означает, что в базе ничего нет.
// После записи ошибки картинок и комиксов не фатальны.
// При отмене возвращается models.ErrRunCancelled; если граф уже записан, поток закрывается complete с cancelled=true.
func (p *Pipeline) Run(ctx context.Context, stop <-chan struct{}, runID uuid.UUID, req models.GenerationRequest, em *Emitter) (*models.RunResult, error) {
	r := &run{
		id:     runID,
		req:    req,
		em:     em,
		stop:   stop,
		remap:  NewRemapper(p.logger),
		logger: p.logger.With(zap.String("run_id", runID.String())),
	}
	r.logger.Info("Pipeline run started",
		zap.String("user_id", req.UserID),
		zap.Int("characters", req.CharacterCount),
		zap.Int("settings", req.SettingCount),
		zap.Int("parts", req.PartsCount),
		zap.Int("chapters_per_part", req.ChaptersPerPart),
		zap.Int("scenes_per_chapter", req.ScenesPerChapter),
	)

	textPhases := []struct {
		phase models.Phase
		fn    func(context.Context, *run) error
	}{
		{models.PhaseStory, p.generateStory},
		{models.PhaseCharacters, p.generateCharacters},
		{models.PhaseSettings, p.generateSettings},
		{models.PhaseParts, p.generateParts},
		{models.PhaseChapters, p.generateChapters},
		{models.PhaseSceneSummaries, p.generateSceneSummaries},
		{models.PhaseSceneContent, p.generateSceneContent},
	}
	for _, step := range textPhases {
		if err := p.phase(ctx, r, step.phase, step.fn); err != nil {
			return nil, p.abort(r, err)
		}
	}

	if cancelled(ctx, stop) {
		return nil, p.abort(r, models.ErrRunCancelled)
	}

	result := &models.RunResult{RunID: runID}
	started := time.Now()
	em.Start(models.PhaseSaving, "Saving story", 6)
	saved := 0
	counts, err := p.writer.Persist(ctx, &r.graph, r.remap, func(kind models.EntityKind, rows int) {
		if kind == models.KindStory {
			em.SetStoryID(r.graph.Story.ID.String())
		}
		saved++
		em.Progress(models.PhaseSaving, fmt.Sprintf("Saved %s", kind), saved, 6, map[string]any{"kind": kind, "rows": rows})
	})
	metrics.PhaseDuration.WithLabelValues(string(models.PhaseSaving)).Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, p.abort(r, err)
	}
	result.StoryID = r.graph.Story.ID
	result.Counts = counts
	em.Complete(models.PhaseSaving, "Story saved", counts)

	if err := p.runImages(ctx, r, result); err != nil {
		if errors.Is(err, models.ErrRunCancelled) {
			return p.finishCancelled(r, result)
		}
		return nil, p.abort(r, err)
	}

	if req.GenerateComics {
		if err := p.runComics(ctx, r, result); err != nil {
			if errors.Is(err, models.ErrRunCancelled) {
				return p.finishCancelled(r, result)
			}
			return nil, p.abort(r, err)
		}
	}

	result.MappingDrops = len(r.remap.Drops())
	metrics.PipelineRunsTotal.WithLabelValues(string(models.RunStatusCompleted)).Inc()
	r.logger.Info("Pipeline run completed",
		zap.String("story_id", result.StoryID.String()),
		zap.Int("scenes", result.Counts.Scenes),
		zap.Int("mapping_drops", result.MappingDrops),
	)
	em.Done("Story generation complete", result)
	return result, nil
}

// phase оборачивает текстовую фазу: события start/complete, метрика длительности,
// ошибка превращается в PhaseGenerationError.
func (p *Pipeline) phase(ctx context.Context, r *run, phase models.Phase, fn func(context.Context, *run) error) error {
	if cancelled(ctx, r.stop) {
		return models.ErrRunCancelled
	}
	started := time.Now()
	r.em.Start(phase, fmt.Sprintf("Generating %s", strings.ReplaceAll(string(phase), "_", " ")), 0)
	err := fn(ctx, r)
	metrics.PhaseDuration.WithLabelValues(string(phase)).Observe(time.Since(started).Seconds())
	if err != nil {
		if isCancellation(ctx, r.stop, err) {
			return models.ErrRunCancelled
		}
		var pErr *models.PhaseGenerationError
		if errors.As(err, &pErr) {
			return err
		}
		return &models.PhaseGenerationError{Phase: phase, Err: err}
	}
	return nil
}

// abort закрывает поток событием error.
func (p *Pipeline) abort(r *run, err error) error {
	status := models.RunStatusFailed
	message := "Story generation failed"
	if errors.Is(err, models.ErrRunCancelled) {
		status = models.RunStatusCancelled
		message = "Story generation cancelled"
		r.logger.Info("Pipeline run cancelled")
	} else {
		r.logger.Error("Pipeline run failed", zap.Error(err))
	}
	metrics.PipelineRunsTotal.WithLabelValues(string(status)).Inc()
	r.em.Fail(message, err)
	return err
}

// finishCancelled: граф уже в базе, поэтому клиент получает complete с частичным результатом.
func (p *Pipeline) finishCancelled(r *run, result *models.RunResult) (*models.RunResult, error) {
	result.Cancelled = true
	result.MappingDrops = len(r.remap.Drops())
	metrics.PipelineRunsTotal.WithLabelValues(string(models.RunStatusCancelled)).Inc()
	r.logger.Info("Pipeline run cancelled after save", zap.String("story_id", result.StoryID.String()))
	r.em.Done("Story generation cancelled, saved content kept", result)
	return result, models.ErrRunCancelled
}

func (p *Pipeline) generate(ctx context.Context, phase models.Phase, data any, maxTokens int, out any) error {
	rendered, err := p.prompts.Phase(phase, data)
	if err != nil {
		return err
	}
	res, err := p.text.GenerateJSON(ctx, clients.TextRequest{
		System:      rendered.System,
		Prompt:      rendered.User,
		Schema:      rendered.Schema,
		MaxTokens:   maxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return err
	}
	return clients.DecodeJSON(res, out)
}

func (p *Pipeline) generateStory(ctx context.Context, r *run) error {
	var draft storyDraft
	if err := p.generate(ctx, models.PhaseStory, map[string]any{"Request": r.req}, p.cfg.TextMaxTokens, &draft); err != nil {
		return err
	}
	story, err := draft.toModel(r.req)
	if err != nil {
		return err
	}
	r.graph.Story = story
	r.em.Complete(models.PhaseStory, "Story foundation ready", map[string]any{
		"title": story.Title,
		"genre": story.Genre,
		"tone":  story.Tone,
	})
	return nil
}

func (p *Pipeline) generateCharacters(ctx context.Context, r *run) error {
	var resp charactersResponse
	data := map[string]any{"Request": r.req, "Story": r.graph.Story}
	if err := p.generate(ctx, models.PhaseCharacters, data, p.cfg.TextMaxTokens, &resp); err != nil {
		return err
	}
	drafts, err := takeExactly(resp.Characters, r.req.CharacterCount, "characters")
	if err != nil {
		return err
	}
	ids := newTempIDs()
	total := len(drafts)
	for i, d := range drafts {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("character %d has no name", i+1)
		}
		c := d.toModel(ids.claim(d.ID, "char", i+1))
		r.graph.Characters = append(r.graph.Characters, c)
		r.em.Progress(models.PhaseCharacters, c.Name, i+1, total, map[string]any{"name": c.Name, "isMain": c.IsMain})
	}
	r.em.Complete(models.PhaseCharacters, fmt.Sprintf("%d characters created", total), map[string]any{"count": total})
	return nil
}

func (p *Pipeline) generateSettings(ctx context.Context, r *run) error {
	var resp settingsResponse
	data := map[string]any{"Request": r.req, "Story": r.graph.Story, "Characters": r.graph.Characters}
	if err := p.generate(ctx, models.PhaseSettings, data, p.cfg.TextMaxTokens, &resp); err != nil {
		return err
	}
	drafts, err := takeExactly(resp.Settings, r.req.SettingCount, "settings")
	if err != nil {
		return err
	}
	ids := newTempIDs()
	total := len(drafts)
	for i, d := range drafts {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("setting %d has no name", i+1)
		}
		s := d.toModel(ids.claim(d.ID, "setting", i+1))
		r.graph.Settings = append(r.graph.Settings, s)
		r.em.Progress(models.PhaseSettings, s.Name, i+1, total, map[string]any{"name": s.Name})
	}
	r.em.Complete(models.PhaseSettings, fmt.Sprintf("%d settings created", total), map[string]any{"count": total})
	return nil
}

func (p *Pipeline) generateParts(ctx context.Context, r *run) error {
	var resp partsResponse
	data := map[string]any{"Request": r.req, "Story": r.graph.Story, "Characters": r.graph.Characters}
	if err := p.generate(ctx, models.PhaseParts, data, p.cfg.TextMaxTokens, &resp); err != nil {
		return err
	}
	drafts, err := takeExactly(resp.Parts, r.req.PartsCount, "parts")
	if err != nil {
		return err
	}
	ids := newTempIDs()
	total := len(drafts)
	for i, d := range drafts {
		part := d.toModel(ids.claim(d.ID, "part", i+1), i)
		r.graph.Parts = append(r.graph.Parts, part)
		r.em.Progress(models.PhaseParts, part.Title, i+1, total, map[string]any{"title": part.Title})
	}
	r.em.Complete(models.PhaseParts, fmt.Sprintf("%d parts created", total), map[string]any{"count": total})
	return nil
}

// generateChapters - один вызов на часть. Порядок глав сквозной по всей истории.
func (p *Pipeline) generateChapters(ctx context.Context, r *run) error {
	ids := newTempIDs()
	total := len(r.graph.Parts) * r.req.ChaptersPerPart
	for pi, part := range r.graph.Parts {
		if cancelled(ctx, r.stop) {
			return models.ErrRunCancelled
		}
		var resp chaptersResponse
		data := map[string]any{
			"Request":          r.req,
			"Story":            r.graph.Story,
			"Characters":       r.graph.Characters,
			"Settings":         r.graph.Settings,
			"Part":             part,
			"PreviousChapters": r.graph.Chapters,
		}
		if err := p.generate(ctx, models.PhaseChapters, data, p.cfg.TextMaxTokens, &resp); err != nil {
			return fmt.Errorf("part %d: %w", pi+1, err)
		}
		drafts, err := takeExactly(resp.Chapters, r.req.ChaptersPerPart, "chapters")
		if err != nil {
			return fmt.Errorf("part %d: %w", pi+1, err)
		}
		for _, d := range drafts {
			order := len(r.graph.Chapters)
			ch := d.toModel(ids.claim(d.ID, "ch", order+1), part.TempID, order)
			r.graph.Chapters = append(r.graph.Chapters, ch)
			r.em.Progress(models.PhaseChapters, ch.Title, order+1, total, map[string]any{"title": ch.Title, "part": pi + 1})
		}
	}
	r.em.Complete(models.PhaseChapters, fmt.Sprintf("%d chapters created", len(r.graph.Chapters)), map[string]any{"count": len(r.graph.Chapters)})
	return nil
}

// generateSceneSummaries - один вызов на главу. Порядок сцен считается внутри главы.
func (p *Pipeline) generateSceneSummaries(ctx context.Context, r *run) error {
	ids := newTempIDs()
	total := len(r.graph.Chapters) * r.req.ScenesPerChapter
	for ci, ch := range r.graph.Chapters {
		if cancelled(ctx, r.stop) {
			return models.ErrRunCancelled
		}
		var resp scenesResponse
		data := map[string]any{
			"Request":    r.req,
			"Story":      r.graph.Story,
			"Characters": r.graph.Characters,
			"Settings":   r.graph.Settings,
			"Chapter":    ch,
		}
		if err := p.generate(ctx, models.PhaseSceneSummaries, data, p.cfg.TextMaxTokens, &resp); err != nil {
			return fmt.Errorf("chapter %d: %w", ci+1, err)
		}
		drafts, err := takeExactly(resp.Scenes, r.req.ScenesPerChapter, "scenes")
		if err != nil {
			return fmt.Errorf("chapter %d: %w", ci+1, err)
		}
		for i, d := range drafts {
			sc := d.toModel(ids.claim(d.ID, "sc", len(r.graph.Scenes)+1), ch.TempID, i)
			r.graph.Scenes = append(r.graph.Scenes, sc)
			r.em.Progress(models.PhaseSceneSummaries, sc.Title, len(r.graph.Scenes), total, map[string]any{"title": sc.Title, "chapter": ci + 1})
		}
	}
	r.em.Complete(models.PhaseSceneSummaries, fmt.Sprintf("%d scenes planned", len(r.graph.Scenes)), map[string]any{"count": len(r.graph.Scenes)})
	return nil
}

// generateSceneContent пишет прозу сцен параллельно. Прогресс идёт в порядке завершения,
// порядок сцен в графе от этого не зависит.
func (p *Pipeline) generateSceneContent(ctx context.Context, r *run) error {
	chapters := make(map[string]*models.Chapter, len(r.graph.Chapters))
	perChapter := make(map[string]int, len(r.graph.Chapters))
	for _, ch := range r.graph.Chapters {
		chapters[ch.TempID] = ch
	}
	for _, sc := range r.graph.Scenes {
		perChapter[sc.ChapterTempID]++
	}
	characters := make(map[string]*models.Character, len(r.graph.Characters))
	for _, c := range r.graph.Characters {
		characters[c.TempID] = c
	}
	settings := make(map[string]*models.Setting, len(r.graph.Settings))
	for _, s := range r.graph.Settings {
		settings[s.TempID] = s
	}

	var (
		mu   sync.Mutex
		done int
	)
	total := len(r.graph.Scenes)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.SceneContentConcurrency)
	for _, sc := range r.graph.Scenes {
		if cancelled(gctx, r.stop) {
			break
		}
		g.Go(func() error {
			if isStopped(r.stop) {
				return models.ErrRunCancelled
			}
			var focus []*models.Character
			for _, id := range sc.CharacterFocusTemp {
				if c, ok := characters[id]; ok {
					focus = append(focus, c)
				}
			}
			data := map[string]any{
				"Request":         r.req,
				"Story":           r.graph.Story,
				"Chapter":         chapters[sc.ChapterTempID],
				"Scene":           sc,
				"SceneNumber":     sc.OrderIndex + 1,
				"SceneTotal":      perChapter[sc.ChapterTempID],
				"Setting":         settings[sc.SettingTempID],
				"FocusCharacters": focus,
			}
			var draft sceneContentDraft
			if err := p.generate(gctx, models.PhaseSceneContent, data, p.cfg.SceneMaxTokens, &draft); err != nil {
				return fmt.Errorf("scene %q: %w", sc.Title, err)
			}
			content := strings.TrimSpace(draft.Content)
			if content == "" {
				return fmt.Errorf("scene %q: empty content", sc.Title)
			}
			sc.Content = content

			mu.Lock()
			done++
			current := done
			mu.Unlock()
			r.em.Progress(models.PhaseSceneContent, sc.Title, current, total, map[string]any{
				"title": sc.Title,
				"words": len(strings.Fields(content)),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if cancelled(ctx, r.stop) {
		return models.ErrRunCancelled
	}
	r.em.Complete(models.PhaseSceneContent, fmt.Sprintf("%d scenes written", total), map[string]any{"count": total})
	return nil
}

func (p *Pipeline) runImages(ctx context.Context, r *run, result *models.RunResult) error {
	if cancelled(ctx, r.stop) {
		return models.ErrRunCancelled
	}
	g := &r.graph
	targets := []ImageTarget{p.targets.Story(g.Story)}
	targets = append(targets, p.targets.Characters(g.Story, g.Characters)...)
	targets = append(targets, p.targets.Settings(g.Story, g.Settings)...)
	targets = append(targets, p.targets.Scenes(g.Story, g.Scenes, g.Characters, g.Settings)...)

	started := time.Now()
	r.em.Start(models.PhaseImages, "Generating images", len(targets))
	report := p.fanout.Run(ctx, r.stop, targets, func(done, total int, out ItemOutcome) {
		msg := fmt.Sprintf("%s image ready", out.Kind)
		if out.Error != "" {
			msg = fmt.Sprintf("%s image failed", out.Kind)
		}
		r.em.Progress(models.PhaseImages, msg, done, total, out)
	})
	metrics.PhaseDuration.WithLabelValues(string(models.PhaseImages)).Observe(time.Since(started).Seconds())
	result.Images = report

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &models.PhaseGenerationError{Phase: models.PhaseImages, Err: ctx.Err()}
	}
	if cancelled(ctx, r.stop) {
		return models.ErrRunCancelled
	}
	r.em.Complete(models.PhaseImages, fmt.Sprintf("%d of %d images generated", report.Succeeded, report.Total), report)
	return nil
}

// runComics: панели по сцене, затем картинки всех панелей одним фан-аутом.
// Сбой одной сцены не прерывает остальные.
func (p *Pipeline) runComics(ctx context.Context, r *run, result *models.RunResult) error {
	if cancelled(ctx, r.stop) {
		return models.ErrRunCancelled
	}
	g := &r.graph
	started := time.Now()
	report := &models.ComicReport{}
	result.Comics = report
	total := len(g.Scenes)
	r.em.Start(models.PhaseComics, "Generating comic panels", total)

	var targets []ImageTarget
	for i, sc := range g.Scenes {
		if cancelled(ctx, r.stop) {
			break
		}
		panels, err := p.scenePanels(ctx, r, sc)
		if err == nil {
			err = p.writer.PersistPanels(ctx, g.Story.ID, sc.ID, panels)
		}
		if err != nil {
			report.ScenesFailed++
			r.logger.Warn("Comic generation failed for scene", zap.String("scene_id", sc.ID.String()), zap.Error(err))
			r.em.Progress(models.PhaseComics, fmt.Sprintf("Comic failed for %q", sc.Title), i+1, total, map[string]any{
				"sceneId": sc.ID,
				"error":   err.Error(),
			})
			continue
		}
		report.Scenes++
		report.Panels += len(panels)
		targets = append(targets, p.targets.Panels(g.Story, sc, panels, g.Settings)...)
		r.em.Progress(models.PhaseComics, fmt.Sprintf("Comic ready for %q", sc.Title), i+1, total, map[string]any{
			"sceneId": sc.ID,
			"panels":  len(panels),
		})
	}
	result.Counts.ComicPanels = report.Panels

	if len(targets) > 0 && !cancelled(ctx, r.stop) {
		report.Images = p.fanout.Run(ctx, r.stop, targets, func(done, total int, out ItemOutcome) {
			r.em.Progress(models.PhaseComics, fmt.Sprintf("Panel image %d of %d", done, total), done, total, out)
		})
	}
	metrics.PhaseDuration.WithLabelValues(string(models.PhaseComics)).Observe(time.Since(started).Seconds())

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &models.PhaseGenerationError{Phase: models.PhaseComics, Err: ctx.Err()}
	}
	if cancelled(ctx, r.stop) {
		return models.ErrRunCancelled
	}
	r.em.Complete(models.PhaseComics, fmt.Sprintf("Comics generated for %d of %d scenes", report.Scenes, total), report)
	return nil
}

func (p *Pipeline) scenePanels(ctx context.Context, r *run, sc *models.Scene) ([]*models.ComicPanel, error) {
	var resp panelsResponse
	data := map[string]any{"Story": r.graph.Story, "Scene": sc, "PanelCount": p.cfg.PanelsPerScene}
	if err := p.generate(ctx, models.PhaseComics, data, p.cfg.TextMaxTokens, &resp); err != nil {
		return nil, err
	}
	if len(resp.Panels) == 0 {
		return nil, fmt.Errorf("no panels returned")
	}
	drafts := resp.Panels
	if len(drafts) > p.cfg.PanelsPerScene {
		drafts = drafts[:p.cfg.PanelsPerScene]
	}
	panels := make([]*models.ComicPanel, 0, len(drafts))
	for i, d := range drafts {
		panels = append(panels, d.toModel(i+1))
	}
	return panels, nil
}

// cancelled - мягкая отмена через stop или отмена контекста (не таймаут).
func cancelled(ctx context.Context, stop <-chan struct{}) bool {
	if isStopped(stop) {
		return true
	}
	return errors.Is(ctx.Err(), context.Canceled)
}

func isCancellation(ctx context.Context, stop <-chan struct{}, err error) bool {
	if errors.Is(err, models.ErrRunCancelled) {
		return true
	}
	return cancelled(ctx, stop)
}
