package integration

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/config"
	"github.com/mikepea/studyhub/pkg/studyhub/database"
	"github.com/mikepea/studyhub/pkg/studyhub/models"
	"github.com/mikepea/studyhub/pkg/studyhub/server"
	"github.com/mikepea/studyhub/pkg/studyhub/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Open(database.Options{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// setupFullServer creates a Gin engine with all routes registered
// This mirrors the setup in cmd/studyhub-server/main.go
func setupFullServer(t *testing.T, db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)

	blobs, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "media"))
	require.NoError(t, err)

	return server.NewRouter(server.Deps{
		Config: config.Default(),
		DB:     db,
		Blobs:  blobs,
		Logger: zap.NewNop(),
	})
}

func do(t *testing.T, router *gin.Engine, method, path, token string, body *strings.Reader) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, body)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func register(t *testing.T, router *gin.Engine, username string) string {
	t.Helper()
	form := url.Values{
		"username":  {username},
		"password1": {"correct-horse-42"},
		"password2": {"correct-horse-42"},
	}
	w := do(t, router, "POST", "/register/", "", strings.NewReader(form.Encode()))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func upload(t *testing.T, router *gin.Engine, token, title string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", title))
	fw, err := mw.CreateFormFile("file", "notes.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 study notes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest("POST", "/materials/upload/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func createGroup(t *testing.T, router *gin.Engine, token, name string) uint {
	t.Helper()
	form := url.Values{"name": {name}, "description": {"weekly sessions"}}
	w := do(t, router, "POST", "/groups/create/", token, strings.NewReader(form.Encode()))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Group models.StudyGroup `json:"group"`
	}
	decode(t, w, &resp)
	require.NotZero(t, resp.Group.ID)
	return resp.Group.ID
}

func requestJoin(t *testing.T, router *gin.Engine, token string, groupID uint) models.GroupJoinRequest {
	t.Helper()
	w := do(t, router, "POST", "/groups/"+itoa(groupID)+"/join/", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Request models.GroupJoinRequest `json:"request"`
	}
	decode(t, w, &resp)
	return resp.Request
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestServerStartup(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	w := do(t, router, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "studyhub", resp["service"])
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	paths := []string{
		"/home/",
		"/materials/",
		"/who-uploaded/",
		"/groups/",
		"/groups/1/",
		"/leaderboard/",
		"/profile/",
		"/profile/alice/",
		"/me/",
		"/admin/stats",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			w := do(t, router, "GET", path, "", nil)
			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, "/?next="+url.QueryEscape(path), w.Header().Get("Location"))
		})
	}
}

func TestPublicEndpointsNoAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	w := do(t, router, "GET", "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.Equal(t, false, resp["authenticated"])
}

func TestUploadsAccumulateScore(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	token := register(t, router, "alice")
	upload(t, router, token, "Linear Algebra Notes")
	upload(t, router, token, "Calculus Cheatsheet")

	w := do(t, router, "GET", "/profile/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view struct {
		Profile   models.UserProfile     `json:"profile"`
		Materials []models.StudyMaterial `json:"materials"`
		IsOwn     bool                   `json:"is_own"`
	}
	decode(t, w, &view)
	assert.Equal(t, 20, view.Profile.Score)
	assert.True(t, view.IsOwn)
	require.Len(t, view.Materials, 2)
	assert.Equal(t, "Calculus Cheatsheet", view.Materials[0].Title)
	assert.Equal(t, "Linear Algebra Notes", view.Materials[1].Title)

	w = do(t, router, "GET", "/materials/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Materials []models.StudyMaterial `json:"materials"`
	}
	decode(t, w, &list)
	require.Len(t, list.Materials, 2)
	assert.Equal(t, "Calculus Cheatsheet", list.Materials[0].Title)

	w = do(t, router, "GET", "/leaderboard/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var board struct {
		Users []struct {
			Username      string `json:"username"`
			MaterialCount int64  `json:"material_count"`
		} `json:"users"`
		Profiles []struct {
			Username string `json:"username"`
			Score    int    `json:"score"`
		} `json:"profiles"`
	}
	decode(t, w, &board)
	require.NotEmpty(t, board.Users)
	assert.Equal(t, "alice", board.Users[0].Username)
	assert.Equal(t, int64(2), board.Users[0].MaterialCount)
	require.NotEmpty(t, board.Profiles)
	assert.Equal(t, 20, board.Profiles[0].Score)
}

func TestJoinApproveFlow(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	bob := register(t, router, "bob")
	carol := register(t, router, "carol")
	dave := register(t, router, "dave")

	groupID := createGroup(t, router, bob, "Physics Study Circle")
	req := requestJoin(t, router, carol, groupID)
	assert.Equal(t, models.JoinRequestPending, req.Status)

	// Only the creator sees pending requests
	w := do(t, router, "GET", "/groups/"+itoa(groupID)+"/", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		IsCreator       bool                      `json:"is_creator"`
		PendingRequests []models.GroupJoinRequest `json:"pending_requests"`
	}
	decode(t, w, &detail)
	assert.True(t, detail.IsCreator)
	require.Len(t, detail.PendingRequests, 1)

	// A non-creator approving changes nothing
	w = do(t, router, "POST", "/requests/"+itoa(req.ID)+"/approve/", dave, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var noop struct {
		Request models.GroupJoinRequest `json:"request"`
		Message string                  `json:"message"`
	}
	decode(t, w, &noop)
	assert.Equal(t, models.JoinRequestPending, noop.Request.Status)
	assert.Empty(t, noop.Message)

	var memberCount int64
	db.Model(&models.GroupMembership{}).Where("group_id = ?", groupID).Count(&memberCount)
	assert.Equal(t, int64(1), memberCount)

	// The creator approves
	w = do(t, router, "POST", "/requests/"+itoa(req.ID)+"/approve/", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var approved struct {
		Request  models.GroupJoinRequest `json:"request"`
		Message  string                  `json:"message"`
		Redirect string                  `json:"redirect"`
	}
	decode(t, w, &approved)
	assert.Equal(t, models.JoinRequestApproved, approved.Request.Status)
	assert.Equal(t, "carol has been added to the group!", approved.Message)
	assert.Equal(t, "/groups/"+itoa(groupID)+"/", approved.Redirect)

	w = do(t, router, "GET", "/groups/"+itoa(groupID)+"/members/", carol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var members []struct {
		Username string `json:"username"`
	}
	decode(t, w, &members)
	usernames := make([]string, len(members))
	for i, m := range members {
		usernames[i] = m.Username
	}
	assert.ElementsMatch(t, []string{"bob", "carol"}, usernames)
}

func TestDoubleJoinKeepsSingleRequest(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	owner := register(t, router, "owner")
	member := register(t, router, "member")
	groupID := createGroup(t, router, owner, "Chemistry")

	first := requestJoin(t, router, member, groupID)
	second := requestJoin(t, router, member, groupID)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&models.GroupJoinRequest{}).Where("group_id = ?", groupID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRejectFlow(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	owner := register(t, router, "owner")
	member := register(t, router, "member")
	groupID := createGroup(t, router, owner, "History")
	req := requestJoin(t, router, member, groupID)

	w := do(t, router, "GET", "/requests/"+itoa(req.ID)+"/reject/", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Request models.GroupJoinRequest `json:"request"`
		Message string                  `json:"message"`
	}
	decode(t, w, &resp)
	assert.Equal(t, models.JoinRequestRejected, resp.Request.Status)
	assert.Equal(t, "Request rejected.", resp.Message)

	var memberCount int64
	db.Model(&models.GroupMembership{}).Where("group_id = ? AND user_id = ?", groupID, req.UserID).Count(&memberCount)
	assert.Equal(t, int64(0), memberCount)
}

func TestUnknownProfileNotFound(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	token := register(t, router, "alice")
	w := do(t, router, "GET", "/profile/nobody/", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, "GET", "/groups/999/", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, "POST", "/requests/999/approve/", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCookieSessionFlow(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)
	register(t, router, "erin")

	form := url.Values{"username": {"erin"}, "password": {"correct-horse-42"}}
	w := do(t, router, "POST", "/", "", strings.NewReader(form.Encode()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req, _ := http.NewRequest("GET", "/home/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	home := httptest.NewRecorder()
	router.ServeHTTP(home, req)
	assert.Equal(t, http.StatusOK, home.Code)

	req, _ = http.NewRequest("GET", "/logout/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	logout := httptest.NewRecorder()
	router.ServeHTTP(logout, req)
	assert.Equal(t, http.StatusFound, logout.Code)
	assert.Equal(t, "/", logout.Header().Get("Location"))
}

func TestLoginWithBadPassword(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)
	register(t, router, "frank")

	form := url.Values{"username": {"frank"}, "password": {"wrong-password"}}
	w := do(t, router, "POST", "/", "", strings.NewReader(form.Encode()))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
