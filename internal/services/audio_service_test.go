package services

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/audiostack/backend/internal/models"
	"github.com/audiostack/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAudioRepo is an in-memory repositories.AudioRepository.
type fakeAudioRepo struct {
	files map[uuid.UUID]*models.AudioFile
}

func newFakeAudioRepo() *fakeAudioRepo {
	return &fakeAudioRepo{files: make(map[uuid.UUID]*models.AudioFile)}
}

func (r *fakeAudioRepo) Create(_ context.Context, file *models.AudioFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	copied := *file
	r.files[file.ID] = &copied
	return nil
}

func (r *fakeAudioRepo) FindForUser(_ context.Context, id, userID uuid.UUID) (*models.AudioFile, error) {
	f, ok := r.files[id]
	if !ok || f.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (r *fakeAudioRepo) Save(_ context.Context, file *models.AudioFile) error {
	copied := *file
	r.files[file.ID] = &copied
	return nil
}

func (r *fakeAudioRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.files, id)
	return nil
}

func (r *fakeAudioRepo) ListForUser(_ context.Context, userID uuid.UUID, filter repositories.AudioFilter) ([]models.AudioFile, int64, error) {
	var matched []models.AudioFile
	for _, f := range r.files {
		if f.UserID != userID {
			continue
		}
		if filter.Category != "" && f.Category != filter.Category {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(f.OriginalName), needle) &&
				!strings.Contains(strings.ToLower(f.Description), needle) {
				continue
			}
		}
		matched = append(matched, *f)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.Limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *fakeAudioRepo) CountForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for _, f := range r.files {
		if f.UserID == userID {
			n++
		}
	}
	return n, nil
}

func seedAudio(t *testing.T, repo *fakeAudioRepo, userID uuid.UUID, name, category string) *models.AudioFile {
	t.Helper()
	file := &models.AudioFile{
		UserID:       userID,
		Filename:     name,
		OriginalName: name,
		Category:     category,
		MimeType:     "audio/mpeg",
	}
	require.NoError(t, repo.Create(context.Background(), file))
	return file
}

func TestAudioCreateRejectsInvalidCategory(t *testing.T) {
	svc := NewAudioService(newFakeAudioRepo())

	err := svc.Create(context.Background(), &models.AudioFile{
		UserID:   uuid.New(),
		Category: "Polka",
	})
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestAudioGetScopedToOwner(t *testing.T) {
	repo := newFakeAudioRepo()
	svc := NewAudioService(repo)
	ctx := context.Background()
	owner := uuid.New()

	file := seedAudio(t, repo, owner, "song.mp3", "Music")

	got, err := svc.Get(ctx, file.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, "song.mp3", got.OriginalName)

	// Another user cannot see it, even with the right id.
	_, err = svc.Get(ctx, file.ID, uuid.New())
	assert.ErrorIs(t, err, ErrAudioNotFound)
}

func TestAudioListClampsPagination(t *testing.T) {
	repo := newFakeAudioRepo()
	svc := NewAudioService(repo)
	ctx := context.Background()
	owner := uuid.New()

	for i := 0; i < 15; i++ {
		seedAudio(t, repo, owner, "track.mp3", "Music")
	}

	files, total, err := svc.ListForUser(ctx, owner, repositories.AudioFilter{Page: 0, Limit: -5})
	require.NoError(t, err)
	assert.Equal(t, int64(15), total)
	assert.Len(t, files, 10)

	files, _, err = svc.ListForUser(ctx, owner, repositories.AudioFilter{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, files, 5)

	// Oversized limits fall back to the default page size.
	files, _, err = svc.ListForUser(ctx, owner, repositories.AudioFilter{Page: 1, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, files, 10)
}

func TestAudioListFilters(t *testing.T) {
	repo := newFakeAudioRepo()
	svc := NewAudioService(repo)
	ctx := context.Background()
	owner := uuid.New()

	seedAudio(t, repo, owner, "morning-mix.mp3", "Music")
	seedAudio(t, repo, owner, "interview.mp3", "Podcast")
	seedAudio(t, repo, uuid.New(), "other-users.mp3", "Music")

	files, total, err := svc.ListForUser(ctx, owner, repositories.AudioFilter{Category: "Podcast"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, files, 1)
	assert.Equal(t, "interview.mp3", files[0].OriginalName)

	_, total, err = svc.ListForUser(ctx, owner, repositories.AudioFilter{Search: "MORNING"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestAudioUpdatePartial(t *testing.T) {
	repo := newFakeAudioRepo()
	svc := NewAudioService(repo)
	ctx := context.Background()
	owner := uuid.New()

	file := seedAudio(t, repo, owner, "song.mp3", "Music")
	file.Description = "original"
	require.NoError(t, repo.Save(ctx, file))

	// Category only; description untouched.
	updated, err := svc.Update(ctx, file.ID, owner, nil, "Podcast")
	require.NoError(t, err)
	assert.Equal(t, "Podcast", updated.Category)
	assert.Equal(t, "original", updated.Description)

	// Description only.
	desc := "new description"
	updated, err = svc.Update(ctx, file.ID, owner, &desc, "")
	require.NoError(t, err)
	assert.Equal(t, "new description", updated.Description)
	assert.Equal(t, "Podcast", updated.Category)

	_, err = svc.Update(ctx, file.ID, owner, nil, "Polka")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestAudioDeleteRemovesRecordAndDiskFile(t *testing.T) {
	repo := newFakeAudioRepo()
	svc := NewAudioService(repo)
	ctx := context.Background()
	owner := uuid.New()

	path := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio bytes"), 0o644))

	file := seedAudio(t, repo, owner, "song.mp3", "Music")
	file.FilePath = path
	require.NoError(t, repo.Save(ctx, file))

	require.NoError(t, svc.Delete(ctx, file.ID, owner))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = svc.Get(ctx, file.ID, owner)
	assert.ErrorIs(t, err, ErrAudioNotFound)

	// Deleting again reports not found.
	err = svc.Delete(ctx, file.ID, owner)
	assert.ErrorIs(t, err, ErrAudioNotFound)
}

func TestAudioDeleteToleratesMissingDiskFile(t *testing.T) {
	repo := newFakeAudioRepo()
	svc := NewAudioService(repo)
	ctx := context.Background()
	owner := uuid.New()

	file := seedAudio(t, repo, owner, "song.mp3", "Music")
	file.FilePath = filepath.Join(t.TempDir(), "never-written.mp3")
	require.NoError(t, repo.Save(ctx, file))

	assert.NoError(t, svc.Delete(ctx, file.ID, owner))
}
