package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"kindred-backend/internal/models"
	"kindred-backend/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeedUsers(t *testing.T) {
	path := writeSeed(t, `
users:
  - id: u1
    age: 31
    location: Lisbon
    has_baby: true
    baby_birth_date: "2025-03-01"
    hobbies: [running, chess]
    visibility:
      age: anonymous
      location: hidden
  - id: u2
    career_field: nursing
`)
	users := memory.NewUserRepository(memory.New())

	n, err := seedUsers(context.Background(), path, users)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	u1, err := users.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, u1.Age)
	assert.Equal(t, 31, *u1.Age)
	assert.Equal(t, []string{"running", "chess"}, u1.Hobbies)
	assert.Equal(t, models.VisibleToAnonymous, u1.FieldVisibility(models.FieldAge))
	assert.Equal(t, models.VisibilityHidden, u1.FieldVisibility(models.FieldLocation))
	require.NotNil(t, u1.BabyBirthDate)
	assert.Equal(t, 2025, u1.BabyBirthDate.Year())

	u2, err := users.GetByID(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, models.VisibleToFriend, u2.FieldVisibility(models.FieldCareerField))
}

func TestSeedUsersRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing id", "users:\n  - age: 20\n"},
		{"bad visibility", "users:\n  - id: u1\n    visibility:\n      age: everyone\n"},
		{"bad date", "users:\n  - id: u1\n    baby_birth_date: yesterday\n"},
		{"not yaml", "users: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := memory.NewUserRepository(memory.New())
			_, err := seedUsers(context.Background(), writeSeed(t, tt.content), users)
			assert.Error(t, err)
		})
	}
}

func TestSeedUsersMissingFile(t *testing.T) {
	users := memory.NewUserRepository(memory.New())
	_, err := seedUsers(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), users)
	assert.Error(t, err)
}
