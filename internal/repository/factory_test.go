package repository

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ipd-simulator/pkg/config"
	"github.com/ipd-simulator/pkg/model"
)

func TestNewGormDB_UnsupportedType(t *testing.T) {
	_, err := NewGormDB(&config.DatabaseConfig{Type: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

// setupMockDB wires a sqlmock connection through the MySQL dialector so SQL
// generation can be asserted without a server.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestSaveStep_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &GormRunRepository{db: db}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `simulation_steps`")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	stats := &model.StepStats{Step: 5, Active: 10, CoopCount: 3}
	require.NoError(t, repo.SaveStep(t.Context(), 7, stats))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRun_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &GormRunRepository{db: db}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `simulation_runs`")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.FinishRun(t.Context(), 1, RunStatusCompleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}
