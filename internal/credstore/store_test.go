package credstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadMissing(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "nope", "credentials.json"))

	_, err := store.Load()
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "credentials.json")
	store := New(path)

	rec := &Record{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC),
		Scope:        "https://www.googleapis.com/auth/gmail.send",
	}
	require.NoError(t, store.Save(rec))

	// directory is created with the file
	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestStoreSaveOverwrites(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "credentials.json"))

	require.NoError(t, store.Save(&Record{AccessToken: "old", RefreshToken: "keep"}))
	require.NoError(t, store.Save(&Record{AccessToken: "new"}))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.Empty(t, got.RefreshToken)
}

func TestStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := New(path).Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestRecordMerge(t *testing.T) {
	expiry := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		existing *Record
		update   *Record
		want     *Record
	}{
		{
			name:     "nil receiver copies update",
			existing: nil,
			update:   &Record{AccessToken: "a", RefreshToken: "r"},
			want:     &Record{AccessToken: "a", RefreshToken: "r"},
		},
		{
			name:     "access-only refresh keeps refresh token",
			existing: &Record{AccessToken: "old", RefreshToken: "keep", TokenType: "Bearer"},
			update:   &Record{AccessToken: "new", Expiry: expiry},
			want:     &Record{AccessToken: "new", RefreshToken: "keep", TokenType: "Bearer", Expiry: expiry},
		},
		{
			name:     "new refresh token overwrites",
			existing: &Record{AccessToken: "old", RefreshToken: "old-r"},
			update:   &Record{AccessToken: "new", RefreshToken: "new-r"},
			want:     &Record{AccessToken: "new", RefreshToken: "new-r"},
		},
		{
			name:     "empty update changes nothing",
			existing: &Record{AccessToken: "old", RefreshToken: "keep", Scope: "s"},
			update:   &Record{},
			want:     &Record{AccessToken: "old", RefreshToken: "keep", Scope: "s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before Record
			if tt.existing != nil {
				before = *tt.existing
			}

			got := tt.existing.Merge(tt.update)
			assert.Equal(t, tt.want, got)

			// receiver stays untouched
			if tt.existing != nil {
				assert.Equal(t, before, *tt.existing)
			}
		})
	}
}
