package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fictures-server/internal/clients"
	"fictures-server/internal/imaging"
	"fictures-server/internal/models"
	"fictures-server/internal/prompts"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ---------- text ----------

// scriptedText отвечает по ключу схемы ответа (первое required-поле).
type scriptedText struct {
	req models.GenerationRequest

	mu       sync.Mutex
	calls    map[string]int
	chapters int
	scenes   int

	failOn     map[string]error
	shortOn    map[string]int
	dangling   bool
	sceneDelay func(n int) time.Duration
	onCall     func(key string)
}

func newScriptedText(req models.GenerationRequest) *scriptedText {
	return &scriptedText{
		req:     req,
		calls:   make(map[string]int),
		failOn:  make(map[string]error),
		shortOn: make(map[string]int),
	}
}

func schemaKey(schema map[string]any) string {
	required, _ := schema["required"].([]any)
	if len(required) == 0 {
		return ""
	}
	s, _ := required[0].(string)
	return s
}

func (s *scriptedText) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *scriptedText) GenerateJSON(ctx context.Context, req clients.TextRequest) (clients.TextResult, error) {
	key := schemaKey(req.Schema)
	s.mu.Lock()
	s.calls[key]++
	n := s.calls[key]
	err := s.failOn[key]
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall(key)
	}
	if err != nil {
		return clients.TextResult{}, err
	}
	if key == "content" && s.sceneDelay != nil {
		select {
		case <-time.After(s.sceneDelay(n)):
		case <-ctx.Done():
			return clients.TextResult{}, ctx.Err()
		}
	}

	var body any
	switch key {
	case "title":
		body = map[string]any{
			"title": "The Keeper of Lost Voices", "summary": "A keeper learns to let go.",
			"genre": "fantasy", "tone": "dark, hopeful", "moralFramework": "Compassion over control",
		}
	case "characters":
		var out []map[string]any
		for i := 1; i <= s.items(key, s.req.CharacterCount); i++ {
			out = append(out, map[string]any{
				"id": fmt.Sprintf("char_%d", i), "name": fmt.Sprintf("Character %d", i), "isMain": i == 1,
				"coreTrait": "stubborn", "internalFlaw": "fear", "externalGoal": "escape",
				"physicalDescription": "tall, grey coat",
			})
		}
		body = map[string]any{"characters": out}
	case "settings":
		var out []map[string]any
		for i := 1; i <= s.items(key, s.req.SettingCount); i++ {
			out = append(out, map[string]any{
				"id": fmt.Sprintf("setting_%d", i), "name": fmt.Sprintf("Place %d", i),
				"description": "windy cliffs", "mood": "lonely", "colorPalette": []string{"slate", "amber"},
			})
		}
		body = map[string]any{"settings": out}
	case "parts":
		var out []map[string]any
		for i := 1; i <= s.items(key, s.req.PartsCount); i++ {
			out = append(out, map[string]any{
				"id": fmt.Sprintf("part_%d", i), "title": fmt.Sprintf("Act %d", i), "summary": "things happen",
				"characterArcs": []map[string]any{{"characterId": "char_1", "arc": "learns"}},
			})
		}
		body = map[string]any{"parts": out}
	case "chapters":
		var out []map[string]any
		for i := 0; i < s.items(key, s.req.ChaptersPerPart); i++ {
			s.mu.Lock()
			s.chapters++
			c := s.chapters
			s.mu.Unlock()
			focus := []string{"char_1"}
			character := "char_1"
			if s.dangling {
				focus = append(focus, "char_99")
				character = "nobody"
			}
			out = append(out, map[string]any{
				"id": fmt.Sprintf("ch_%d", c), "title": fmt.Sprintf("Chapter %d", c), "summary": "a turn",
				"characterId": character, "focusCharacters": focus, "arcPosition": "middle",
			})
		}
		body = map[string]any{"chapters": out}
	case "scenes":
		var out []map[string]any
		for i := 0; i < s.items(key, s.req.ScenesPerChapter); i++ {
			s.mu.Lock()
			s.scenes++
			c := s.scenes
			s.mu.Unlock()
			setting := "setting_1"
			if s.dangling {
				setting = "setting_404"
			}
			out = append(out, map[string]any{
				"id": fmt.Sprintf("sc_%d", c), "title": fmt.Sprintf("Scene %d", c), "summary": "tension",
				"cyclePhase": "setup", "emotionalBeat": "dread",
				"characterFocus": []string{"char_1", "Character 2"}, "settingId": setting,
			})
		}
		body = map[string]any{"scenes": out}
	case "content":
		body = map[string]any{"content": "The wind spoke first. " + strings.Repeat("words ", 20)}
	case "panels":
		body = map[string]any{"panels": []map[string]any{
			{"shotType": "establishing", "description": "cliff at dusk"},
			{"shotType": "close_up", "description": "keeper's eyes", "dialogue": []map[string]string{{"speaker": "Keeper", "text": "Listen."}}},
			{"shotType": "wide", "description": "lighthouse beam"},
			{"shotType": "medium", "description": "extra panel"},
		}}
	default:
		return clients.TextResult{}, fmt.Errorf("unexpected schema key %q", key)
	}
	raw, _ := json.Marshal(body)
	return clients.TextResult{Text: "```json\n" + string(raw) + "\n```", Model: "fake"}, nil
}

func (s *scriptedText) items(key string, want int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.shortOn[key]; ok {
		return n
	}
	return want
}

// ---------- images ----------

// fakeImages рисует PNG в 16 раз меньше запрошенного, соотношение сторон сохраняется.
type fakeImages struct {
	calls  atomic.Int32
	fail   func(prompt string) bool
	dims   func(w, h int) (int, int)
	onCall func(n int)
}

func (f *fakeImages) GenerateImage(ctx context.Context, req clients.ImageRequest) (clients.ImageResult, error) {
	n := int(f.calls.Add(1))
	if f.onCall != nil {
		f.onCall(n)
	}
	if f.fail != nil && f.fail(req.Prompt) {
		return clients.ImageResult{}, fmt.Errorf("%w: backend refused", clients.ErrGenerationFailed)
	}
	w, h := req.Width/16, req.Height/16
	if f.dims != nil {
		w, h = f.dims(req.Width, req.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return clients.ImageResult{}, err
	}
	return clients.ImageResult{Data: buf.Bytes(), Model: "fake", Width: w, Height: h}, nil
}

// ---------- blob store ----------

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return m.PublicURL(key), nil
}

func (m *memStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) PublicURL(key string) string { return "mem://" + key }

// ---------- repository ----------

// memRepo проверяет ссылки как внешние ключи в базе.
type memRepo struct {
	mu         sync.Mutex
	order      []models.EntityKind
	stories    map[uuid.UUID]*models.Story
	characters map[uuid.UUID]*models.Character
	settings   map[uuid.UUID]*models.Setting
	parts      map[uuid.UUID]*models.Part
	chapters   map[uuid.UUID]*models.Chapter
	scenes     map[uuid.UUID]*models.Scene
	panels     map[uuid.UUID]*models.ComicPanel
	images     map[uuid.UUID]models.ImageRef
	failOn     map[models.EntityKind]error
}

func newMemRepo() *memRepo {
	return &memRepo{
		stories:    make(map[uuid.UUID]*models.Story),
		characters: make(map[uuid.UUID]*models.Character),
		settings:   make(map[uuid.UUID]*models.Setting),
		parts:      make(map[uuid.UUID]*models.Part),
		chapters:   make(map[uuid.UUID]*models.Chapter),
		scenes:     make(map[uuid.UUID]*models.Scene),
		panels:     make(map[uuid.UUID]*models.ComicPanel),
		images:     make(map[uuid.UUID]models.ImageRef),
		failOn:     make(map[models.EntityKind]error),
	}
}

var errForeignKey = errors.New("foreign key violation")

func (r *memRepo) begin(kind models.EntityKind) error {
	if err := r.failOn[kind]; err != nil {
		return err
	}
	r.order = append(r.order, kind)
	return nil
}

func (r *memRepo) storyExists(id uuid.UUID) error {
	if _, ok := r.stories[id]; !ok {
		return fmt.Errorf("%w: story %s", errForeignKey, id)
	}
	return nil
}

func (r *memRepo) InsertStory(ctx context.Context, story *models.Story) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(models.KindStory); err != nil {
		return err
	}
	story.ID = uuid.New()
	r.stories[story.ID] = story
	return nil
}

func (r *memRepo) InsertCharacters(ctx context.Context, storyID uuid.UUID, cs []*models.Character) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(models.KindCharacter); err != nil {
		return err
	}
	if err := r.storyExists(storyID); err != nil {
		return err
	}
	for _, c := range cs {
		c.ID, c.StoryID = uuid.New(), storyID
		r.characters[c.ID] = c
	}
	return nil
}

func (r *memRepo) InsertSettings(ctx context.Context, storyID uuid.UUID, ss []*models.Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(models.KindSetting); err != nil {
		return err
	}
	if err := r.storyExists(storyID); err != nil {
		return err
	}
	for _, s := range ss {
		s.ID, s.StoryID = uuid.New(), storyID
		r.settings[s.ID] = s
	}
	return nil
}

func (r *memRepo) InsertParts(ctx context.Context, storyID uuid.UUID, ps []*models.Part) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(models.KindPart); err != nil {
		return err
	}
	if err := r.storyExists(storyID); err != nil {
		return err
	}
	for _, p := range ps {
		for _, arc := range p.CharacterArcs {
			if arc.CharacterID != nil {
				if _, ok := r.characters[*arc.CharacterID]; !ok {
					return fmt.Errorf("%w: arc character", errForeignKey)
				}
			}
		}
		p.ID, p.StoryID = uuid.New(), storyID
		r.parts[p.ID] = p
	}
	return nil
}

func (r *memRepo) InsertChapters(ctx context.Context, storyID uuid.UUID, cs []*models.Chapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(models.KindChapter); err != nil {
		return err
	}
	if err := r.storyExists(storyID); err != nil {
		return err
	}
	for _, c := range cs {
		if c.PartID != nil {
			if _, ok := r.parts[*c.PartID]; !ok {
				return fmt.Errorf("%w: chapter part", errForeignKey)
			}
		}
		if c.CharacterID != nil {
			if _, ok := r.characters[*c.CharacterID]; !ok {
				return fmt.Errorf("%w: chapter character", errForeignKey)
			}
		}
		for _, id := range c.FocusCharacters {
			if _, ok := r.characters[id]; !ok {
				return fmt.Errorf("%w: chapter focus", errForeignKey)
			}
		}
		c.ID, c.StoryID = uuid.New(), storyID
		r.chapters[c.ID] = c
	}
	return nil
}

func (r *memRepo) InsertScenes(ctx context.Context, storyID uuid.UUID, ss []*models.Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(models.KindScene); err != nil {
		return err
	}
	if err := r.storyExists(storyID); err != nil {
		return err
	}
	for _, s := range ss {
		if _, ok := r.chapters[s.ChapterID]; !ok {
			return fmt.Errorf("%w: scene chapter", errForeignKey)
		}
		if s.SettingID != nil {
			if _, ok := r.settings[*s.SettingID]; !ok {
				return fmt.Errorf("%w: scene setting", errForeignKey)
			}
		}
		for _, id := range s.CharacterFocus {
			if _, ok := r.characters[id]; !ok {
				return fmt.Errorf("%w: scene focus", errForeignKey)
			}
		}
		s.ID, s.StoryID = uuid.New(), storyID
		r.scenes[s.ID] = s
	}
	return nil
}

func (r *memRepo) InsertComicPanels(ctx context.Context, storyID, sceneID uuid.UUID, ps []*models.ComicPanel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(models.KindComicPanel); err != nil {
		return err
	}
	if _, ok := r.scenes[sceneID]; !ok {
		return fmt.Errorf("%w: panel scene", errForeignKey)
	}
	for _, p := range ps {
		p.ID, p.SceneID = uuid.New(), sceneID
		r.panels[p.ID] = p
	}
	return nil
}

func (r *memRepo) AttachImage(ctx context.Context, kind models.ImageKind, entityID uuid.UUID, ref models.ImageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[entityID] = ref
	return nil
}

func (r *memRepo) UpdateSceneComicStatus(ctx context.Context, sceneID uuid.UUID, status models.ComicStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.scenes[sceneID]
	if !ok {
		return models.ErrNotFound
	}
	sc.ComicStatus = status
	return nil
}

func (r *memRepo) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stories) + len(r.characters) + len(r.settings) + len(r.parts) + len(r.chapters) + len(r.scenes) + len(r.panels)
}

// ---------- harness ----------

type recordingSink struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (s *recordingSink) Name() string { return "recorder" }

func (s *recordingSink) Send(ev models.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) phases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Phase)
	}
	return out
}

func (s *recordingSink) last() models.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

type harness struct {
	text     *scriptedText
	images   *fakeImages
	store    *memStore
	repo     *memRepo
	sink     *recordingSink
	pipeline *Pipeline
	req      models.GenerationRequest
}

func smallRequest() models.GenerationRequest {
	return models.GenerationRequest{
		UserID:           "user-1",
		UserPrompt:       "A lighthouse keeper who collects lost voices",
		Tone:             models.DefaultTone,
		CharacterCount:   2,
		SettingCount:     2,
		PartsCount:       2,
		ChaptersPerPart:  2,
		ScenesPerChapter: 3,
		Language:         "en",
		GenerateComics:   true,
	}
}

func newHarness(t *testing.T, req models.GenerationRequest) *harness {
	t.Helper()
	h := &harness{
		text:   newScriptedText(req),
		images: &fakeImages{},
		store:  newMemStore(),
		repo:   newMemRepo(),
		sink:   &recordingSink{},
		req:    req,
	}
	return h
}

func (h *harness) build(cfg Config, fan FanoutConfig) {
	logger := zap.NewNop()
	lib := prompts.MustLoad()
	fanout := NewImageFanout(h.images, h.store, h.repo, imaging.NewValidator(nil), lib.Negative(), fan, logger)
	h.pipeline = New(h.text, lib, h.repo, fanout, cfg, logger)
}

func (h *harness) run(t *testing.T, stop <-chan struct{}) (*models.RunResult, error) {
	t.Helper()
	if h.pipeline == nil {
		h.build(Config{SceneContentConcurrency: 3, TextMaxTokens: 1024}, FanoutConfig{Concurrency: 3})
	}
	em := NewEmitter("run-1", zap.NewNop(), h.sink)
	return h.pipeline.Run(context.Background(), stop, uuid.New(), h.req, em)
}
