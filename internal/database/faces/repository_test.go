package faces

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/librarian/internal/crypto"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	db, err := database.Open(database.Options{Path: filepath.Join(t.TempDir(), "faces.db"), LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.DB), db.DB
}

func TestRepository_SaveAndList(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	active := entities.Person{Username: "face1", Role: entities.RoleBorrower, Active: true}
	inactive := entities.Person{Username: "face2", Role: entities.RoleBorrower, Active: true}
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, db.Create(&inactive).Error)
	require.NoError(t, db.Model(&inactive).Update("active", false).Error)

	require.NoError(t, repo.SaveEncoding(ctx, active.ID, "[0.1,0.2]"))
	require.NoError(t, repo.SaveEncoding(ctx, inactive.ID, "[0.3,0.4]"))

	// Saving again replaces the vector instead of adding a row.
	require.NoError(t, repo.SaveEncoding(ctx, active.ID, "[0.5,0.6]"))

	encodings, err := repo.ListEncodings(ctx)
	require.NoError(t, err)
	require.Len(t, encodings, 1)
	assert.Equal(t, active.ID, encodings[0].PersonID)
	assert.Equal(t, "[0.5,0.6]", encodings[0].Vector)

	err = repo.SaveEncoding(ctx, 999, "[1]")
	assert.Error(t, err)
}

func TestRepository_DeleteEncoding(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	person := entities.Person{Username: "gone", Role: entities.RoleBorrower, Active: true}
	require.NoError(t, db.Create(&person).Error)
	require.NoError(t, repo.SaveEncoding(ctx, person.ID, "[1,2,3]"))

	existed, err := repo.DeleteEncoding(ctx, person.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = repo.DeleteEncoding(ctx, person.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRepository_Sealed(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	person := entities.Person{Username: "sealed", Role: entities.RoleBorrower, Active: true}
	legacy := entities.Person{Username: "legacy", Role: entities.RoleBorrower, Active: true}
	require.NoError(t, db.Create(&person).Error)
	require.NoError(t, db.Create(&legacy).Error)

	// Written before a key was configured.
	require.NoError(t, repo.SaveEncoding(ctx, legacy.ID, "[9,9]"))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sealer, err := crypto.NewSealerFromBase64(key)
	require.NoError(t, err)
	repo.WithSealer(sealer)

	require.NoError(t, repo.SaveEncoding(ctx, person.ID, "[0.25,0.75]"))

	var stored entities.FaceEncoding
	require.NoError(t, db.Where("person_id = ?", person.ID).First(&stored).Error)
	assert.True(t, crypto.IsSealed(stored.Vector))

	encodings, err := repo.ListEncodings(ctx)
	require.NoError(t, err)
	require.Len(t, encodings, 2)
	assert.Equal(t, "[0.25,0.75]", encodings[0].Vector)
	assert.Equal(t, "[9,9]", encodings[1].Vector)
}
