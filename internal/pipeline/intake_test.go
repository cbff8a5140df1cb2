package pipeline

import (
	"strings"
	"testing"

	"fictures-server/internal/config"
	"fictures-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestIntake_Defaults(t *testing.T) {
	in := NewIntake(config.DefaultIntakeLimits())
	req, err := in.Normalize("user-1", models.GenerationRequestInput{UserPrompt: "  a city of bells  "})
	require.NoError(t, err)

	assert.Equal(t, "a city of bells", req.UserPrompt)
	assert.Equal(t, 3, req.CharacterCount)
	assert.Equal(t, 3, req.SettingCount)
	assert.Equal(t, 1, req.PartsCount)
	assert.Equal(t, 2, req.ChaptersPerPart)
	assert.Equal(t, 3, req.ScenesPerChapter)
	assert.Equal(t, "en", req.Language)
	assert.Equal(t, models.DefaultTone, req.Tone)
	assert.False(t, req.ToneRequested)
	assert.True(t, req.GenerateComics)
	assert.Equal(t, "user-1", req.UserID)
}

func TestIntake_ExplicitValues(t *testing.T) {
	in := NewIntake(config.DefaultIntakeLimits())
	off := false
	req, err := in.Normalize("u", models.GenerationRequestInput{
		UserPrompt:     "x",
		PreferredTone:  "Satirical",
		CharacterCount: intPtr(5),
		Language:       "ko",
		GenerateComics: &off,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ToneSatirical, req.Tone)
	assert.True(t, req.ToneRequested)
	assert.Equal(t, 5, req.CharacterCount)
	assert.Equal(t, "ko", req.Language)
	assert.False(t, req.GenerateComics)
}

func TestIntake_UnknownToneFallsBackToDefault(t *testing.T) {
	in := NewIntake(config.DefaultIntakeLimits())
	req, err := in.Normalize("u", models.GenerationRequestInput{UserPrompt: "x", PreferredTone: "whimsical"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTone, req.Tone)
}

func TestIntake_Rejects(t *testing.T) {
	limits := config.DefaultIntakeLimits()
	tests := []struct {
		name  string
		input models.GenerationRequestInput
		field string
	}{
		{"empty prompt", models.GenerationRequestInput{UserPrompt: "   "}, "userPrompt"},
		{"prompt too long", models.GenerationRequestInput{UserPrompt: strings.Repeat("я", limits.PromptMaxLength+1)}, "userPrompt"},
		{"zero characters", models.GenerationRequestInput{UserPrompt: "x", CharacterCount: intPtr(0)}, "characterCount"},
		{"negative settings", models.GenerationRequestInput{UserPrompt: "x", SettingCount: intPtr(-1)}, "settingCount"},
		{"too many parts", models.GenerationRequestInput{UserPrompt: "x", PartsCount: intPtr(limits.MaxParts + 1)}, "partsCount"},
		{"too many chapters", models.GenerationRequestInput{UserPrompt: "x", ChaptersPerPart: intPtr(limits.MaxChaptersPerPart + 1)}, "chaptersPerPart"},
		{"zero scenes", models.GenerationRequestInput{UserPrompt: "x", ScenesPerChapter: intPtr(0)}, "scenesPerChapter"},
		{"bad language", models.GenerationRequestInput{UserPrompt: "x", Language: "definitely-not-a-language-tag"}, "language"},
	}
	in := NewIntake(limits)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := in.Normalize("u", tt.input)
			var vErr *models.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestTempIDs_Claim(t *testing.T) {
	ids := newTempIDs()
	assert.Equal(t, "char_1", ids.claim("char_1", "char", 1))
	assert.Equal(t, "char_2", ids.claim("char_1", "char", 2))
	assert.Equal(t, "char_3", ids.claim("", "char", 2))
	assert.Equal(t, "hero", ids.claim(" hero ", "char", 4))
}

func TestTakeExactly(t *testing.T) {
	got, err := takeExactly([]int{1, 2, 3}, 2, "items")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	_, err = takeExactly([]int{1}, 2, "items")
	assert.Error(t, err)
}
