package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"vibeconnect/chat"
	"vibeconnect/database/memory"
	"vibeconnect/events"
	"vibeconnect/feed"
	"vibeconnect/graph"
	"vibeconnect/metrics"
	"vibeconnect/middleware"
	"vibeconnect/storage"
	"vibeconnect/users"
	"vibeconnect/utils"
	"vibeconnect/utils/tokentest"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := utils.RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router   *gin.Engine
	recorder *events.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := memory.New()
	recorder := &events.Recorder{}
	retry := utils.NewRetrier(time.Second, 1, logger)
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	graphSvc := graph.NewService(store, recorder, retry, logger)
	h := New(Deps{
		Users:  users.NewService(store, retry, logger),
		Graph:  graphSvc,
		Chat:   chat.NewService(store, recorder, retry, logger),
		Feed:   feed.NewService(store, graphSvc, recorder, retry, logger),
		Files:  files,
		Logger: logger,
	})

	verifier := utils.NewTokenVerifier(tokentest.Secret)
	r := gin.New()
	collector := metrics.NewCollector("test")
	r.Use(middleware.RequestLogger(logger, collector))
	h.Register(r, middleware.Auth(verifier), nil, collector.Handler())
	return &testServer{router: r, recorder: recorder}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+tokentest.Sign(t, tokentest.Secret, userID, time.Hour))
	}
	return s.serve(t, req)
}

func (s *testServer) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) profile(t *testing.T, userID string) {
	t.Helper()
	w, _ := s.do(t, http.MethodPut, "/api/users/me", userID, users.ProfileInput{Username: userID})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodGet, "/api/friends", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusUnauthorized, env.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w, _ = s.serve(t, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfile(t *testing.T) {
	s := newTestServer(t)
	s.profile(t, "alice")

	w, env := s.do(t, http.MethodGet, "/api/users/me", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"username":"alice"`)

	w, _ = s.do(t, http.MethodPut, "/api/users/me", "bob", users.ProfileInput{Username: "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = s.do(t, http.MethodPut, "/api/users/me", "bob", map[string]string{"bio": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "username is required", env.Message)

	w, _ = s.do(t, http.MethodGet, "/api/users/ghost", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFriendRequestFlow(t *testing.T) {
	s := newTestServer(t)
	s.profile(t, "alice")
	s.profile(t, "bob")

	w, env := s.do(t, http.MethodPost, "/api/friends/bob/request", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"sent"`)

	w, _ = s.do(t, http.MethodPost, "/api/friends/bob/request", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/friends/bob/accept", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/friends/requests/received", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"id":"alice"`)

	w, env = s.do(t, http.MethodPost, "/api/friends/alice/accept", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"friends"`)

	w, env = s.do(t, http.MethodGet, "/api/friends/bob/status", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"friends"}`, string(env.Data))

	assert.Len(t, s.recorder.For("alice", events.FriendRequestAccepted), 1)

	w, _ = s.do(t, http.MethodPost, "/api/friends/alice/request", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessageValidation(t *testing.T) {
	s := newTestServer(t)
	s.profile(t, "alice")
	s.profile(t, "bob")

	w, env := s.do(t, http.MethodPost, "/api/messages", "alice", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "recipient is required", env.Message)

	w, env = s.do(t, http.MethodPost, "/api/messages", "alice", map[string]string{"recipient": "bob", "content": "hi ", "clientId": "c1"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, string(env.Data), `"content":"hi "`)
	assert.Len(t, s.recorder.For("bob", events.Message), 1)

	w, env = s.do(t, http.MethodGet, "/api/messages/conversations", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"unread":1`)

	w, env = s.do(t, http.MethodPost, "/api/messages/alice/read", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1}`, string(env.Data))
}

func TestCreatePostWithImage(t *testing.T) {
	s := newTestServer(t)
	s.profile(t, "alice")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("content", "sunset"))
	part, err := mw.CreateFormFile("image", "sunset.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/posts", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tokentest.Sign(t, tokentest.Secret, "alice", time.Hour))

	w, env := s.serve(t, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var post struct {
		Content  string `json:"content"`
		ImageURL string `json:"imageUrl"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &post))
	assert.Equal(t, "sunset", post.Content)
	require.True(t, strings.HasPrefix(post.ImageURL, storage.URLPrefix))

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, post.ImageURL, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg bytes", w.Body.String())
}

func TestPostAuthorship(t *testing.T) {
	s := newTestServer(t)
	s.profile(t, "alice")
	s.profile(t, "bob")

	w, env := s.do(t, http.MethodPost, "/api/posts", "alice", map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	var post struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &post))

	w, _ = s.do(t, http.MethodPut, "/api/posts/"+post.ID, "bob", map[string]string{"content": "mine"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/posts/"+post.ID+"/like", "bob", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/posts/"+post.ID+"/comments", "bob", map[string]string{"text": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/posts/"+post.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/posts/"+post.ID+"/like", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
