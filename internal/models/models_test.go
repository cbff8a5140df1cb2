package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeTone(t *testing.T) {
	cases := map[string]Tone{
		"dark":                ToneDark,
		"  Bittersweet ":      ToneBittersweet,
		"satirical, hopeful":  ToneSatirical,
		"Dark,bittersweet":    ToneDark,
		"whimsical":           DefaultTone,
		"":                    DefaultTone,
		"hopeful and uplift":  DefaultTone,
		"melancholic, dark":   DefaultTone,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeTone(in), "input %q", in)
	}
}

func TestAuthResult_HasScope(t *testing.T) {
	writer := &AuthResult{Scopes: []string{ScopeStoriesWrite}}
	assert.True(t, writer.HasScope(ScopeStoriesWrite))
	assert.True(t, writer.HasScope(ScopeStoriesRead))
	assert.False(t, writer.HasScope(ScopeAdminAll))

	reader := &AuthResult{Scopes: []string{ScopeStoriesRead}}
	assert.False(t, reader.HasScope(ScopeStoriesWrite))

	admin := &AuthResult{Scopes: []string{ScopeAdminAll}}
	assert.True(t, admin.HasScope(ScopeStoriesWrite))
	assert.True(t, admin.HasScope("anything:else"))

	none := &AuthResult{}
	assert.False(t, none.HasScope(ScopeStoriesRead))
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("upstream 500")

	phaseErr := fmt.Errorf("run: %w", &PhaseGenerationError{Phase: PhaseChapters, Err: cause})
	assert.ErrorIs(t, phaseErr, ErrPhaseGeneration)
	assert.ErrorIs(t, phaseErr, cause)
	assert.NotErrorIs(t, phaseErr, ErrPersistence)

	var pge *PhaseGenerationError
	assert.True(t, errors.As(phaseErr, &pge))
	assert.Equal(t, PhaseChapters, pge.Phase)

	assert.ErrorIs(t, &ValidationError{Field: "userPrompt", Message: "empty"}, ErrValidation)
	assert.ErrorIs(t, &ValidationError{Message: "x"}, ErrInvalidInput)
	assert.ErrorIs(t, &MappingError{Kind: KindCharacter, TempID: "c9"}, ErrMapping)
	assert.ErrorIs(t, &ImageGenerationError{Kind: ImageKindScene, EntityID: uuid.New(), Stage: "upload", Err: cause}, ErrImageGeneration)
	assert.ErrorIs(t, &PersistenceError{Kind: KindScene, Err: cause}, ErrPersistence)

	assert.Contains(t, (&ValidationError{Field: "partsCount", Message: "must be > 0"}).Error(), "partsCount")
	assert.Contains(t, (&MappingError{Kind: KindChapter, TempID: "ch_7"}).Error(), "ch_7")
}

func TestParseImageKind(t *testing.T) {
	k, err := ParseImageKind("comic_panel")
	assert.NoError(t, err)
	assert.Equal(t, ImageKindComicPanel, k)

	k, err = ParseImageKind("cover")
	assert.NoError(t, err)
	assert.Equal(t, ImageKindStory, k)

	_, err = ParseImageKind("poster")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGenerationRequest_Expected(t *testing.T) {
	req := GenerationRequest{PartsCount: 2, ChaptersPerPart: 3, ScenesPerChapter: 4}
	assert.Equal(t, ExpectedCount{Parts: 2, Chapters: 6, Scenes: 24}, req.Expected())
}

func TestImageVariantSet_ScanValue(t *testing.T) {
	set := ImageVariantSet{{Name: "original", URL: "https://cdn/x.png", Width: 10, Height: 20, Format: "png"}}
	v, err := set.Value()
	assert.NoError(t, err)

	var back ImageVariantSet
	assert.NoError(t, back.Scan(v))
	assert.Equal(t, set, back)

	assert.NoError(t, back.Scan(nil))
	assert.Nil(t, back)
	assert.Error(t, back.Scan(42))
}
