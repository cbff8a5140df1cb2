package pipeline

import (
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"fictures-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_HappyPath(t *testing.T) {
	req := smallRequest()
	h := newHarness(t, req)

	res, err := h.run(t, nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	exp := req.Expected()
	assert.Equal(t, req.CharacterCount, res.Counts.Characters)
	assert.Equal(t, req.SettingCount, res.Counts.Settings)
	assert.Equal(t, exp.Parts, res.Counts.Parts)
	assert.Equal(t, exp.Chapters, res.Counts.Chapters)
	assert.Equal(t, exp.Scenes, res.Counts.Scenes)
	assert.Equal(t, exp.Scenes*defaultPanelsPerScene, res.Counts.ComicPanels)
	assert.Zero(t, res.MappingDrops)
	assert.False(t, res.Cancelled)

	wantImages := 1 + req.CharacterCount + req.SettingCount + exp.Scenes
	require.NotNil(t, res.Images)
	assert.Equal(t, wantImages, res.Images.Total)
	assert.Equal(t, wantImages, res.Images.Succeeded)
	assert.Equal(t, wantImages, res.Images.Validated)
	require.NotNil(t, res.Comics)
	assert.Equal(t, exp.Scenes, res.Comics.Scenes)
	assert.Equal(t, exp.Scenes*defaultPanelsPerScene, res.Comics.Images.Succeeded)

	story := h.repo.stories[res.StoryID]
	require.NotNil(t, story)
	assert.Equal(t, "The Keeper of Lost Voices", story.Title)
	// "dark, hopeful" -> первый сегмент
	assert.Equal(t, models.ToneDark, story.Tone)
	assert.Equal(t, exp, story.Expected)
	assert.True(t, h.repo.images[res.StoryID].Present())

	for _, sc := range h.repo.scenes {
		assert.Equal(t, models.ComicStatusDraft, sc.ComicStatus)
		assert.NotEmpty(t, sc.Content)
	}

	last := h.sink.last()
	assert.Equal(t, models.EventComplete, last.Phase)
	assert.Equal(t, res.StoryID.String(), last.Data.StoryID)
}

func TestRun_DependencyOrder(t *testing.T) {
	h := newHarness(t, smallRequest())
	_, err := h.run(t, nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(h.repo.order), 6)
	assert.Equal(t, []models.EntityKind{
		models.KindStory, models.KindCharacter, models.KindSetting,
		models.KindPart, models.KindChapter, models.KindScene,
	}, h.repo.order[:6])
	for _, kind := range h.repo.order[6:] {
		assert.Equal(t, models.KindComicPanel, kind)
	}
}

func TestRun_ReferencesResolvedToPersistedRows(t *testing.T) {
	h := newHarness(t, smallRequest())
	_, err := h.run(t, nil)
	require.NoError(t, err)

	for _, ch := range h.repo.chapters {
		require.NotNil(t, ch.PartID)
		assert.Contains(t, h.repo.parts, *ch.PartID)
		require.NotNil(t, ch.CharacterID)
		assert.Contains(t, h.repo.characters, *ch.CharacterID)
	}
	for _, sc := range h.repo.scenes {
		assert.Contains(t, h.repo.chapters, sc.ChapterID)
		require.NotNil(t, sc.SettingID)
		assert.Contains(t, h.repo.settings, *sc.SettingID)
		// char_1 по ID и "Character 2" по имени
		assert.Len(t, sc.CharacterFocus, 2)
	}
	for _, p := range h.repo.parts {
		require.Len(t, p.CharacterArcs, 1)
		require.NotNil(t, p.CharacterArcs[0].CharacterID)
	}
}

func TestRun_DanglingReferencesAreDropped(t *testing.T) {
	req := smallRequest()
	h := newHarness(t, req)
	h.text.dangling = true

	res, err := h.run(t, nil)
	require.NoError(t, err)

	exp := req.Expected()
	// на главу: characterId и один из focusCharacters; на сцену: settingId
	assert.Equal(t, exp.Chapters*2+exp.Scenes, res.MappingDrops)
	for _, ch := range h.repo.chapters {
		assert.Nil(t, ch.CharacterID)
		assert.Len(t, ch.FocusCharacters, 1)
	}
	for _, sc := range h.repo.scenes {
		assert.Nil(t, sc.SettingID)
	}
	assert.Equal(t, exp.Scenes, res.Counts.Scenes)
}

func TestRun_OrderingStableUnderConcurrency(t *testing.T) {
	req := smallRequest()
	req.ScenesPerChapter = 4
	h := newHarness(t, req)
	rnd := rand.New(rand.NewSource(42))
	var mu sync.Mutex
	h.text.sceneDelay = func(int) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return time.Duration(rnd.Intn(5)) * time.Millisecond
	}
	h.build(Config{SceneContentConcurrency: 4}, FanoutConfig{Concurrency: 4})

	_, err := h.run(t, nil)
	require.NoError(t, err)

	var chapterOrders []int
	for _, ch := range h.repo.chapters {
		chapterOrders = append(chapterOrders, ch.OrderIndex)
	}
	sort.Ints(chapterOrders)
	for i, o := range chapterOrders {
		assert.Equal(t, i, o)
	}

	perChapter := make(map[uuid.UUID][]int)
	for _, sc := range h.repo.scenes {
		perChapter[sc.ChapterID] = append(perChapter[sc.ChapterID], sc.OrderIndex)
	}
	assert.Len(t, perChapter, req.PartsCount*req.ChaptersPerPart)
	for _, orders := range perChapter {
		sort.Ints(orders)
		assert.Equal(t, []int{0, 1, 2, 3}, orders)
	}

	for _, p := range h.repo.panels {
		assert.True(t, p.PanelNumber >= 1 && p.PanelNumber <= defaultPanelsPerScene)
	}
}

func TestRun_EventOrder(t *testing.T) {
	h := newHarness(t, smallRequest())
	_, err := h.run(t, nil)
	require.NoError(t, err)

	phases := h.sink.phases()
	require.NotEmpty(t, phases)
	assert.Equal(t, models.PhaseStory.Start(), phases[0])
	assert.Equal(t, models.EventComplete, phases[len(phases)-1])

	// start каждой фазы идёт после complete предыдущей
	lastIndex := -1
	for _, phase := range models.PhaseOrder {
		start := indexOf(phases, phase.Start())
		complete := indexOf(phases, phase.Complete())
		require.NotEqual(t, -1, start, "missing %s", phase.Start())
		require.NotEqual(t, -1, complete, "missing %s", phase.Complete())
		assert.Greater(t, start, lastIndex, "phase %s started out of order", phase)
		assert.Greater(t, complete, start)
		lastIndex = complete
	}
	for _, p := range phases {
		assert.NotEqual(t, models.EventError, p)
	}
}

func TestRun_PhaseFailureStopsBeforePersistence(t *testing.T) {
	h := newHarness(t, smallRequest())
	h.text.failOn["chapters"] = errors.New("backend down")

	res, err := h.run(t, nil)
	require.Error(t, err)
	assert.Nil(t, res)

	var pErr *models.PhaseGenerationError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, models.PhaseChapters, pErr.Phase)
	assert.ErrorIs(t, err, models.ErrPhaseGeneration)

	assert.Zero(t, h.repo.total())
	assert.Zero(t, h.images.calls.Load())

	phases := h.sink.phases()
	assert.Equal(t, models.EventError, phases[len(phases)-1])
	assert.Equal(t, -1, indexOf(phases, models.PhaseSceneSummaries.Start()))
	assert.Contains(t, h.sink.last().Error, "backend down")
}

func TestRun_ShortfallIsPhaseError(t *testing.T) {
	h := newHarness(t, smallRequest())
	h.text.shortOn["characters"] = 1

	_, err := h.run(t, nil)
	var pErr *models.PhaseGenerationError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, models.PhaseCharacters, pErr.Phase)
	assert.Zero(t, h.repo.total())
}

func TestRun_ExtraItemsTruncated(t *testing.T) {
	req := smallRequest()
	h := newHarness(t, req)
	h.text.shortOn["settings"] = 5

	res, err := h.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, req.SettingCount, res.Counts.Settings)
}

func TestRun_ImageFailuresAreTolerated(t *testing.T) {
	req := smallRequest()
	h := newHarness(t, req)
	h.images.fail = func(prompt string) bool {
		return strings.Contains(prompt, "Character portrait")
	}

	res, err := h.run(t, nil)
	require.NoError(t, err)

	total := 1 + req.CharacterCount + req.SettingCount + req.Expected().Scenes
	assert.Equal(t, total, res.Images.Total)
	assert.Equal(t, req.CharacterCount, res.Images.Failed)
	assert.Equal(t, total-req.CharacterCount, res.Images.Succeeded)
	require.Len(t, res.Images.Failures, req.CharacterCount)
	for _, f := range res.Images.Failures {
		assert.Equal(t, models.ImageKindCharacter, f.Kind)
		assert.Equal(t, stageGenerate, f.Stage)
	}
	assert.Equal(t, models.EventComplete, h.sink.last().Phase)
}

func TestRun_ComicFailureIsNotFatal(t *testing.T) {
	req := smallRequest()
	h := newHarness(t, req)
	h.text.failOn["panels"] = errors.New("adapter refused")

	res, err := h.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, req.Expected().Scenes, res.Comics.ScenesFailed)
	assert.Zero(t, res.Comics.Panels)
	assert.Nil(t, res.Comics.Images)
	for _, sc := range h.repo.scenes {
		assert.Equal(t, models.ComicStatusNone, sc.ComicStatus)
	}
}

func TestRun_ComicsDisabled(t *testing.T) {
	req := smallRequest()
	req.GenerateComics = false
	h := newHarness(t, req)

	res, err := h.run(t, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Comics)
	assert.Zero(t, h.text.count("panels"))
	assert.Equal(t, -1, indexOf(h.sink.phases(), models.PhaseComics.Start()))
}

func TestRun_PersistenceFailureKeepsCommittedBatches(t *testing.T) {
	h := newHarness(t, smallRequest())
	h.repo.failOn[models.KindScene] = errors.New("disk full")

	_, err := h.run(t, nil)
	var perr *models.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.KindScene, perr.Kind)

	assert.Len(t, h.repo.stories, 1)
	assert.NotEmpty(t, h.repo.chapters)
	assert.Empty(t, h.repo.scenes)
	assert.Equal(t, models.EventError, h.sink.last().Phase)
}

func TestRun_CancelBeforeSave(t *testing.T) {
	h := newHarness(t, smallRequest())
	stop := make(chan struct{})
	var once sync.Once
	h.text.onCall = func(key string) {
		if key == "settings" {
			once.Do(func() { close(stop) })
		}
	}

	res, err := h.run(t, stop)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, models.ErrRunCancelled)
	assert.Zero(t, h.repo.total())
	assert.Equal(t, models.EventError, h.sink.last().Phase)
}

func TestRun_CancelDuringImagesKeepsSavedGraph(t *testing.T) {
	req := smallRequest()
	h := newHarness(t, req)
	stop := make(chan struct{})
	var once sync.Once
	h.images.onCall = func(n int) {
		if n == 2 {
			once.Do(func() { close(stop) })
		}
	}
	h.build(Config{SceneContentConcurrency: 2}, FanoutConfig{Concurrency: 1})

	res, err := h.run(t, stop)
	assert.ErrorIs(t, err, models.ErrRunCancelled)
	require.NotNil(t, res)
	assert.True(t, res.Cancelled)
	assert.Equal(t, req.Expected().Scenes, res.Counts.Scenes)
	require.NotNil(t, res.Images)
	assert.Equal(t, 2, res.Images.Processed)
	assert.Equal(t, res.Images.Total-2, res.Images.Skipped)
	assert.Nil(t, res.Comics)

	last := h.sink.last()
	assert.Equal(t, models.EventComplete, last.Phase)
	assert.NotEmpty(t, h.repo.scenes)
}

func TestRun_EventsCarryRunID(t *testing.T) {
	h := newHarness(t, smallRequest())
	_, err := h.run(t, nil)
	require.NoError(t, err)
	for _, ev := range h.sink.events {
		require.NotNil(t, ev.Data)
		assert.Equal(t, "run-1", ev.Data.RunID)
	}
}

func indexOf(items []string, want string) int {
	for i, s := range items {
		if s == want {
			return i
		}
	}
	return -1
}
