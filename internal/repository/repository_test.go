package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/script-playground-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedChallenges(t *testing.T, repo ChallengeRepository, titles ...string) []models.Challenge {
	t.Helper()
	created := make([]models.Challenge, 0, len(titles))
	for _, title := range titles {
		order, err := repo.NextOrder(context.Background())
		require.NoError(t, err)
		challenge := models.Challenge{
			Title:       title,
			Slug:        title,
			Description: "<p>" + title + "</p>",
			StarterCode: "// " + title,
			Difficulty:  models.DifficultyEasy,
			Order:       order,
		}
		require.NoError(t, repo.Create(context.Background(), &challenge, nil))
		created = append(created, challenge)
	}
	return created
}

func TestChallengeRepositoryOrdersAndNavigates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChallengeRepository(db)

	seeded := seedChallenges(t, repo, "alpha", "beta", "gamma")
	require.Equal(t, 0, seeded[0].Order)
	require.Equal(t, 2, seeded[2].Order)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, []string{list[0].Slug, list[1].Slug, list[2].Slug})

	neighbours, err := repo.Neighbours(context.Background(), seeded[1].Order)
	require.NoError(t, err)
	require.Equal(t, "alpha", neighbours.PrevSlug)
	require.Equal(t, "gamma", neighbours.NextSlug)

	edges, err := repo.Neighbours(context.Background(), seeded[0].Order)
	require.NoError(t, err)
	require.Empty(t, edges.PrevSlug)
	require.Equal(t, "beta", edges.NextSlug)
}

func TestChallengeRepositoryReorderIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChallengeRepository(db)
	seeded := seedChallenges(t, repo, "one", "two", "three")

	err := repo.Reorder(context.Background(), []OrderItem{
		{ID: seeded[2].ID, Order: 0},
		{ID: "missing", Order: 1},
		{ID: seeded[0].ID, Order: 2},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrReorderMismatch))

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three"}, []string{list[0].Slug, list[1].Slug, list[2].Slug})
	require.Equal(t, []int{0, 1, 2}, []int{list[0].Order, list[1].Order, list[2].Order})

	require.NoError(t, repo.Reorder(context.Background(), []OrderItem{
		{ID: seeded[2].ID, Order: 0},
		{ID: seeded[0].ID, Order: 1},
		{ID: seeded[1].ID, Order: 2},
	}))

	list, err = repo.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"three", "one", "two"}, []string{list[0].Slug, list[1].Slug, list[2].Slug})
}

func TestChallengeRepositoryLabelsReplaceOnUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChallengeRepository(db)
	labels := NewLabelRepository(db)

	loops := models.Label{Name: "loops", Color: "#22c55e"}
	arrays := models.Label{Name: "arrays", Color: "#3b82f6"}
	require.NoError(t, labels.Create(context.Background(), &loops))
	require.NoError(t, labels.Create(context.Background(), &arrays))

	challenge := models.Challenge{Title: "Sum", Slug: "sum", Description: "sum", StarterCode: "", Difficulty: models.DifficultyEasy}
	require.NoError(t, repo.Create(context.Background(), &challenge, []string{loops.ID}))

	stored, err := repo.GetBySlug(context.Background(), "sum")
	require.NoError(t, err)
	require.Len(t, stored.Labels, 1)
	require.Equal(t, "loops", stored.Labels[0].Name)

	replacement := []string{arrays.ID}
	updated, err := repo.Update(context.Background(), challenge.ID, map[string]interface{}{"title": "Sum It"}, &replacement)
	require.NoError(t, err)
	require.Equal(t, "Sum It", updated.Title)
	require.Len(t, updated.Labels, 1)
	require.Equal(t, "arrays", updated.Labels[0].Name)

	missing := []string{"nope"}
	_, err = repo.Update(context.Background(), challenge.ID, nil, &missing)
	require.True(t, errors.Is(err, ErrLabelNotFound))

	all, err := labels.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, "arrays", all[0].Name, "labels sorted by name")
}

func TestChallengeRepositoryDeleteRemovesSubmissions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChallengeRepository(db)
	submissions := NewSubmissionRepository(db)
	seeded := seedChallenges(t, repo, "solo")

	require.NoError(t, submissions.Create(context.Background(), &models.Submission{UserID: "u1", ChallengeID: seeded[0].ID, Code: "1", Status: models.SubmissionStatusPassed}))
	require.NoError(t, repo.Delete(context.Background(), seeded[0].ID))

	_, err := repo.GetByID(context.Background(), seeded[0].ID)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	var remaining int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&remaining).Error)
	require.Zero(t, remaining)

	require.True(t, errors.Is(repo.Delete(context.Background(), seeded[0].ID), gorm.ErrRecordNotFound))
}

func TestSubmissionRepositoryHistoryAndCompletion(t *testing.T) {
	db := setupTestDB(t)
	challenges := NewChallengeRepository(db)
	repo := NewSubmissionRepository(db)
	seeded := seedChallenges(t, challenges, "first", "second")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		status := models.SubmissionStatusFailed
		if i == 3 {
			status = models.SubmissionStatusPassed
		}
		submission := models.Submission{
			UserID:      "learner",
			ChallengeID: seeded[0].ID,
			Code:        fmt.Sprintf("attempt %d", i),
			Status:      status,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(context.Background(), &submission))
	}
	require.NoError(t, repo.Create(context.Background(), &models.Submission{UserID: "other", ChallengeID: seeded[1].ID, Code: "x", Status: models.SubmissionStatusFailed}))

	history, err := repo.ListByUserAndChallenge(context.Background(), "learner", seeded[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, history, DefaultSubmissionHistory)
	require.Equal(t, "attempt 11", history[0].Code, "newest first")

	latest, err := repo.Latest(context.Background(), "learner", seeded[0].ID)
	require.NoError(t, err)
	require.Equal(t, "attempt 11", latest.Code)

	_, err = repo.Latest(context.Background(), "learner", seeded[1].ID)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	passed, err := repo.PassedChallengeIDs(context.Background(), "learner")
	require.NoError(t, err)
	require.Equal(t, []string{seeded[0].ID}, passed)

	none, err := repo.PassedChallengeIDs(context.Background(), "other")
	require.NoError(t, err)
	require.Empty(t, none)
}
