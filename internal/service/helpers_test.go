package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/script-playground-api/internal/models"
	"github.com/noah-isme/script-playground-api/pkg/sandbox"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func seedChallenge(t *testing.T, db *gorm.DB, title string, order int, description string) models.Challenge {
	t.Helper()
	challenge := models.Challenge{
		Title:       title,
		Slug:        strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		Description: description,
		StarterCode: "// " + title + "\n",
		Difficulty:  models.DifficultyEasy,
		Order:       order,
	}
	require.NoError(t, db.Create(&challenge).Error)
	return challenge
}

// stubRunner succeeds unless the source contains "throw".
type stubRunner struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *stubRunner) Execute(_ context.Context, source string) (sandbox.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, source)
	r.mu.Unlock()

	if r.err != nil {
		return sandbox.Result{}, r.err
	}
	if strings.Contains(source, "throw") {
		return sandbox.Result{Logs: []string{"before"}, Error: "boom", Duration: time.Millisecond}, nil
	}
	return sandbox.Result{Logs: []string{"hello", "world"}, Success: true, Duration: time.Millisecond}, nil
}

func (r *stubRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}
