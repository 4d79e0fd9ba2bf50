package services

import (
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Liberatex/Rotation/internal/models"
	"github.com/Liberatex/Rotation/internal/ws"
)

// recordingFanout captures broadcast events instead of delivering them.
type recordingFanout struct {
	mu     sync.Mutex
	events []ws.Event
}

func (f *recordingFanout) Broadcast(sessionID uint, evt ws.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *recordingFanout) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every pooled connection to :memory: opens its own empty database, so
	// pin the pool to one connection. This also makes sqlite serialize
	// concurrent transactions the way the postgres row lock does.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Session{},
		&models.SessionParticipant{},
		&models.Rotation{},
		&models.RotationTurn{},
		&models.RotationHistory{},
	))
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := models.User{
		Email:        email,
		PasswordHash: "x",
		DisplayName:  email,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}
