package leaderboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/cache"
	"github.com/mikepea/studyhub/pkg/studyhub/database"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memoryCache is an in-process stand-in for Redis
type memoryCache struct {
	data    map[string][]byte
	gets    int
	deletes int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	m.gets++
	b, ok := m.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (m *memoryCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	m.deletes++
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Open(database.Options{DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string, score int, materials int) models.User {
	user := models.User{Username: username, PasswordHash: "hash", SystemRole: models.SystemRoleUser}
	require.NoError(t, db.Create(&user).Error)
	if score >= 0 {
		require.NoError(t, db.Create(&models.UserProfile{UserID: user.ID, Score: score}).Error)
	}
	for i := 0; i < materials; i++ {
		require.NoError(t, db.Create(&models.StudyMaterial{Title: "m", File: "materials/m", UploaderID: user.ID}).Error)
	}
	return user
}

func TestTopUploadersIncludesZeroCounts(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "carol", -1, 0)
	createTestUser(t, db, "alice", 20, 2)
	createTestUser(t, db, "bob", 10, 2)
	createTestUser(t, db, "dave", 10, 1)

	svc := NewService(db, nil, 0)
	ranks, err := svc.TopUploaders(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, ranks, 4)
	assert.Equal(t, []string{"alice", "bob", "dave", "carol"}, usernames(ranks))
	assert.Equal(t, int64(2), ranks[0].MaterialCount)
	assert.Equal(t, int64(0), ranks[3].MaterialCount)

	top, err := svc.TopUploaders(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestTopScores(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "carol", -1, 0)
	createTestUser(t, db, "bob", 10, 0)
	createTestUser(t, db, "alice", 10, 0)
	createTestUser(t, db, "dave", 30, 0)

	svc := NewService(db, nil, 0)
	ranks, err := svc.TopScores(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, ranks, 3, "users without a profile have no score entry")
	assert.Equal(t, "dave", ranks[0].Username)
	assert.Equal(t, "alice", ranks[1].Username)
	assert.Equal(t, "bob", ranks[2].Username)
	assert.Equal(t, 30, ranks[0].Score)
}

func TestGetUsesCacheUntilInvalidated(t *testing.T) {
	db := setupTestDB(t)
	alice := createTestUser(t, db, "alice", 10, 1)
	mc := newMemoryCache()
	svc := NewService(db, mc, time.Minute)
	ctx := context.Background()

	board, err := svc.Get(ctx)
	require.NoError(t, err)
	require.Len(t, board.Users, 1)
	assert.Contains(t, mc.data, boardCacheKey)

	// A new user is not visible while the cached board is served
	createTestUser(t, db, "bob", 0, 0)
	board, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, board.Users, 1)

	svc.MaterialUploaded(ctx, &models.StudyMaterial{UploaderID: alice.ID})
	assert.Equal(t, 1, mc.deletes)

	board, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, board.Users, 2)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	createTestUser(t, db, "alice", 20, 2)
	createTestUser(t, db, "bob", -1, 0)

	r := gin.New()
	NewHandler(NewService(db, nil, 0)).RegisterRoutes(&r.RouterGroup)

	req, _ := http.NewRequest("GET", "/leaderboard/", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var board Board
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &board))
	assert.Equal(t, []string{"alice", "bob"}, usernames(board.Users))
	require.Len(t, board.Profiles, 1)
	assert.Equal(t, 20, board.Profiles[0].Score)
}

func usernames(ranks []UserRank) []string {
	out := make([]string, len(ranks))
	for i, r := range ranks {
		out[i] = r.Username
	}
	return out
}
