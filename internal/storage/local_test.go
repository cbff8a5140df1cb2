package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fictures-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLocal(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir(), "http://cdn.local/images/", zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestImageKey(t *testing.T) {
	storyID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	entityID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	key := ImageKey(storyID, models.ImageKindCharacter, entityID, "original", "png")
	assert.Equal(t, "stories/11111111-1111-1111-1111-111111111111/character/22222222-2222-2222-2222-222222222222/original.png", key)
	assert.Equal(t, "stories/11111111-1111-1111-1111-111111111111/scene/", KindPrefix(storyID, models.ImageKindScene))
}

func TestLocalStore_PutListDelete(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	storyID := uuid.New()
	other := uuid.New()

	url, err := s.Put(ctx, ImageKey(storyID, models.ImageKindStory, storyID, "original", "png"), []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.local/images/stories/"+storyID.String()+"/story/"+storyID.String()+"/original.png", url)

	charID := uuid.New()
	_, err = s.Put(ctx, ImageKey(storyID, models.ImageKindCharacter, charID, "original", "png"), []byte("a"), "")
	require.NoError(t, err)
	_, err = s.Put(ctx, ImageKey(storyID, models.ImageKindCharacter, charID, "w640", "jpg"), []byte("b"), "")
	require.NoError(t, err)
	_, err = s.Put(ctx, ImageKey(other, models.ImageKindCharacter, uuid.New(), "original", "png"), []byte("c"), "")
	require.NoError(t, err)

	keys, err := s.ListPrefix(ctx, KindPrefix(storyID, models.ImageKindCharacter))
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keys, err = s.ListPrefix(ctx, StoryPrefix(storyID))
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	n, err := s.DeletePrefix(ctx, KindPrefix(storyID, models.ImageKindCharacter))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeletePrefix(ctx, StoryPrefix(storyID))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, statErr := os.Stat(filepath.Join(s.Root(), "stories", storyID.String()))
	assert.True(t, os.IsNotExist(statErr), "empty story directory should be removed")

	keys, err = s.ListPrefix(ctx, StoryPrefix(other))
	require.NoError(t, err)
	assert.Len(t, keys, 1, "other story untouched")
}

func TestLocalStore_ListMissingPrefix(t *testing.T) {
	s := newLocal(t)
	keys, err := s.ListPrefix(context.Background(), "stories/nope/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	n, err := s.DeletePrefix(context.Background(), "stories/nope/")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	s := newLocal(t)
	_, err := s.Put(context.Background(), "../../etc/passwd", []byte("x"), "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = s.Put(context.Background(), "  ", []byte("x"), "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestContentTypeForKey(t *testing.T) {
	assert.Equal(t, "image/png", ContentTypeForKey("a/b.PNG"))
	assert.Equal(t, "image/jpeg", ContentTypeForKey("a/b.jpg"))
	assert.Equal(t, "image/webp", ContentTypeForKey("a/b.webp"))
	assert.Equal(t, "application/octet-stream", ContentTypeForKey("a/b"))
}
