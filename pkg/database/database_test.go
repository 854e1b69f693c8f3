package database

import (
	"exam_review_backend/internal/config"
	"exam_review_backend/internal/model"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialector_UnknownDriver(t *testing.T) {
	_, err := Dialector(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestDialector_Names(t *testing.T) {
	for driver, want := range map[string]string{
		"":         "sqlite",
		"sqlite":   "sqlite",
		"mysql":    "mysql",
		"postgres": "postgres",
	} {
		d, err := Dialector(&config.DatabaseConfig{Driver: driver, Host: "localhost", Port: 5432})
		require.NoError(t, err, driver)
		assert.Equal(t, want, d.Name(), driver)
	}
}

func TestInitDBAndMigrate_Sqlite(t *testing.T) {
	cfg := &config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "review.db")}

	db, err := InitDB(cfg, "release")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range []interface{}{&model.Question{}, &model.TestRun{}, &model.TestAttempt{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}
	assert.True(t, db.Migrator().HasIndex(&model.TestAttempt{}, "idx_attempt_run_number"))
}
