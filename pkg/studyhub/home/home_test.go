package home

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/auth"
	"github.com/mikepea/studyhub/pkg/studyhub/database"
	"github.com/mikepea/studyhub/pkg/studyhub/leaderboard"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Open(database.Options{DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string, materials int) models.User {
	user := models.User{Username: username, PasswordHash: "hash", SystemRole: models.SystemRoleUser}
	require.NoError(t, db.Create(&user).Error)
	for i := 0; i < materials; i++ {
		require.NoError(t, db.Create(&models.StudyMaterial{Title: "m", File: "materials/m", UploaderID: user.ID}).Error)
	}
	return user
}

func TestDashboard(t *testing.T) {
	db := setupTestDB(t)
	alice := createTestUser(t, db, "alice", 3)
	for i := 0; i < 6; i++ {
		createTestUser(t, db, fmt.Sprintf("user%d", i), i%2)
	}
	require.NoError(t, db.Create(&models.StudyGroup{Name: "g", Description: "d", CreatorID: alice.ID}).Error)

	svc := NewService(db, leaderboard.NewService(db, nil, 0))
	d, err := svc.Dashboard(context.Background(), alice.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(6), d.TotalMaterials)
	assert.Equal(t, int64(1), d.TotalGroups)
	assert.Equal(t, int64(3), d.UserMaterials)
	require.Len(t, d.TopUsers, TopUsersLimit)
	assert.Equal(t, "alice", d.TopUsers[0].Username)
	assert.Equal(t, int64(0), d.TopUsers[4].MaterialCount, "zero-count users fill the ranking")
}

func TestDashboardEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	bob := createTestUser(t, db, "bob", 0)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.ContextKeyUserID, bob.ID)
		c.Next()
	})
	NewHandler(NewService(db, leaderboard.NewService(db, nil, 0))).RegisterRoutes(&r.RouterGroup)

	req, _ := http.NewRequest("GET", "/home/", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var d Dashboard
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &d))
	assert.Equal(t, int64(0), d.UserMaterials)
	require.Len(t, d.TopUsers, 1)
	assert.Equal(t, "bob", d.TopUsers[0].Username)
}
