package materials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/apperrors"
	"github.com/mikepea/studyhub/pkg/studyhub/auth"
	"github.com/mikepea/studyhub/pkg/studyhub/database"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"github.com/mikepea/studyhub/pkg/studyhub/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingListener struct {
	uploaded []uint
}

func (l *recordingListener) MaterialUploaded(_ context.Context, m *models.StudyMaterial) {
	l.uploaded = append(l.uploaded, m.ID)
}

// failingBlobs wraps a real store and fails Save on demand
type failingBlobs struct {
	*storage.LocalStorage
	failSave bool
}

func (f *failingBlobs) Save(ctx context.Context, dir, filename string, r io.Reader) (string, int64, error) {
	if f.failSave {
		return "", 0, errors.New("disk full")
	}
	return f.LocalStorage.Save(ctx, dir, filename, r)
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Open(database.Options{DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func setupTestService(t *testing.T) (*Service, *gorm.DB, *storage.LocalStorage, *recordingListener) {
	db := setupTestDB(t)
	blobs, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "media"))
	require.NoError(t, err)
	listener := &recordingListener{}
	return NewService(db, blobs, listener), db, blobs, listener
}

func createTestUser(t *testing.T, db *gorm.DB, username string) models.User {
	user := models.User{Username: username, PasswordHash: "hash", SystemRole: models.SystemRoleUser}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func upload(title, content string) UploadInput {
	return UploadInput{Title: title, FileName: title + ".pdf", ContentType: "application/pdf", File: strings.NewReader(content)}
}

func scoreOf(t *testing.T, db *gorm.DB, userID uint) int {
	var profile models.UserProfile
	require.NoError(t, db.Where("user_id = ?", userID).First(&profile).Error)
	return profile.Score
}

func countMaterials(db *gorm.DB) int64 {
	var n int64
	db.Model(&models.StudyMaterial{}).Count(&n)
	return n
}

func TestUploadCreditsScore(t *testing.T) {
	svc, db, _, listener := setupTestService(t)
	alice := createTestUser(t, db, "alice")
	ctx := context.Background()

	m, err := svc.Upload(ctx, alice.ID, upload("Calculus", "notes"))
	require.NoError(t, err)

	assert.Equal(t, alice.ID, m.UploaderID)
	assert.Equal(t, "alice", m.Uploader.Username)
	assert.Equal(t, 0, m.Views)
	assert.Equal(t, int64(5), m.SizeBytes)
	assert.False(t, m.UploadDate.IsZero())
	assert.True(t, strings.HasPrefix(m.File, "materials/"))
	assert.Equal(t, int64(1), countMaterials(db))
	assert.Equal(t, 10, scoreOf(t, db, alice.ID), "profile is created on demand and credited")
	assert.Equal(t, []uint{m.ID}, listener.uploaded)
}

func TestTwoUploadsNewestFirst(t *testing.T) {
	svc, db, _, _ := setupTestService(t)
	alice := createTestUser(t, db, "alice")
	ctx := context.Background()

	_, err := svc.Upload(ctx, alice.ID, upload("First", "a"))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, alice.ID, upload("Second", "b"))
	require.NoError(t, err)

	assert.Equal(t, 20, scoreOf(t, db, alice.ID))

	materials, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, materials, 2)
	assert.Equal(t, "Second", materials[0].Title)
	assert.Equal(t, "First", materials[1].Title)
	assert.Equal(t, "alice", materials[0].Uploader.Username)
}

func TestUploadValidation(t *testing.T) {
	svc, db, _, listener := setupTestService(t)
	alice := createTestUser(t, db, "alice")
	ctx := context.Background()

	tests := []struct {
		name  string
		in    UploadInput
		field string
	}{
		{"missing title", UploadInput{Title: "  ", FileName: "a.pdf", File: strings.NewReader("x")}, "title"},
		{"long title", UploadInput{Title: strings.Repeat("t", 256), FileName: "a.pdf", File: strings.NewReader("x")}, "title"},
		{"missing file", UploadInput{Title: "Notes"}, "file"},
		{"empty file", UploadInput{Title: "Notes", FileName: "a.pdf", File: strings.NewReader("")}, "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, alice.ID, tt.in)
			var ve *apperrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.Equal(t, int64(0), countMaterials(db))
	assert.Empty(t, listener.uploaded)

	var profiles int64
	db.Model(&models.UserProfile{}).Count(&profiles)
	assert.Equal(t, int64(0), profiles, "a rejected upload must not touch the score")
}

func TestUploadRollsBackOnFailure(t *testing.T) {
	svc, db, blobs, _ := setupTestService(t)
	ctx := context.Background()

	// Unknown uploader violates the foreign key
	_, err := svc.Upload(ctx, 999, upload("Orphan", "data"))
	require.Error(t, err)
	assert.Equal(t, int64(0), countMaterials(db))

	entries, _ := os.ReadDir(filepath.Join(filepathOf(t, blobs), storage.DirMaterials))
	assert.Empty(t, entries, "stored file is removed when the insert fails")
}

func TestUploadStorageFailure(t *testing.T) {
	db := setupTestDB(t)
	local, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "media"))
	require.NoError(t, err)
	svc := NewService(db, &failingBlobs{LocalStorage: local, failSave: true})
	alice := createTestUser(t, db, "alice")

	_, err = svc.Upload(context.Background(), alice.ID, upload("Notes", "data"))
	require.Error(t, err)
	assert.Equal(t, int64(0), countMaterials(db))
}

func TestWhoUploaded(t *testing.T) {
	svc, db, _, _ := setupTestService(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	ctx := context.Background()

	_, err := svc.Upload(ctx, alice.ID, upload("A", "a"))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, bob.ID, upload("B", "b"))
	require.NoError(t, err)

	records, err := svc.WhoUploaded(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "bob", records[0].Uploader)
	assert.Equal(t, "B", records[0].Title)
	assert.Equal(t, "alice", records[1].Uploader)
}

func filepathOf(t *testing.T, blobs *storage.LocalStorage) string {
	p, err := blobs.Path("x")
	require.NoError(t, err)
	return filepath.Dir(p)
}

func setupTestRouter(t *testing.T, maxUpload int64) (*gin.Engine, *gorm.DB, *auth.TokenManager) {
	gin.SetMode(gin.TestMode)
	svc, db, _, _ := setupTestService(t)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	sessions := auth.NewSessions(tokens, auth.SessionOptions{CookieName: "session"})

	r := gin.New()
	protected := r.Group("/")
	protected.Use(sessions.Middleware())
	NewHandler(svc, maxUpload).RegisterRoutes(protected)
	return r, db, tokens
}

func getAuthHeader(t *testing.T, tokens *auth.TokenManager, user models.User) string {
	token, err := tokens.GenerateToken(user.ID, user.Username, string(user.SystemRole))
	require.NoError(t, err)
	return "Bearer " + token
}

func multipartUpload(t *testing.T, title, filename, content string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if title != "" {
		require.NoError(t, w.WriteField("title", title))
	}
	require.NoError(t, w.WriteField("description", "chapter 1"))
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		fw.Write([]byte(content))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUploadEndpoint(t *testing.T) {
	router, db, tokens := setupTestRouter(t, 1<<20)
	alice := createTestUser(t, db, "alice")

	body, contentType := multipartUpload(t, "Algebra", "algebra.pdf", "pdf-bytes")
	req, _ := http.NewRequest("POST", "/materials/upload/", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", getAuthHeader(t, tokens, alice))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &response))
	assert.Equal(t, "Material uploaded successfully!", response["message"])
	assert.Equal(t, 10, scoreOf(t, db, alice.ID))

	req, _ = http.NewRequest("GET", "/materials/", nil)
	req.Header.Set("Authorization", getAuthHeader(t, tokens, alice))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var list struct {
		Materials []models.StudyMaterial `json:"materials"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list.Materials, 1)
	assert.Equal(t, "Algebra", list.Materials[0].Title)
	assert.Equal(t, "algebra.pdf", list.Materials[0].OriginalName)
}

func TestUploadEndpointMissingFile(t *testing.T) {
	router, db, tokens := setupTestRouter(t, 1<<20)
	alice := createTestUser(t, db, "alice")

	body, contentType := multipartUpload(t, "Algebra", "", "")
	req, _ := http.NewRequest("POST", "/materials/upload/", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", getAuthHeader(t, tokens, alice))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, int64(0), countMaterials(db))
}

func TestUploadEndpointMissingTitle(t *testing.T) {
	router, db, tokens := setupTestRouter(t, 1<<20)
	alice := createTestUser(t, db, "alice")

	body, contentType := multipartUpload(t, "", "a.pdf", "data")
	req, _ := http.NewRequest("POST", "/materials/upload/", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", getAuthHeader(t, tokens, alice))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, int64(0), countMaterials(db))
}

func TestMaterialsRequireSession(t *testing.T) {
	router, _, _ := setupTestRouter(t, 1<<20)

	req, _ := http.NewRequest("GET", "/materials/", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusFound, resp.Code)
	assert.Equal(t, "/?next=%2Fmaterials%2F", resp.Header().Get("Location"))
}
