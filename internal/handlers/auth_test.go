package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/taskhive/taskhive/backend/internal/middleware"
	"github.com/taskhive/taskhive/backend/internal/models"
	"github.com/taskhive/taskhive/backend/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-handler-testing")
	utils.SetJWTRefreshSecret("test-refresh-secret-for-handler-testing")
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         glogger.Default.LogMode(glogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.RefreshToken{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	h := NewAuthHandler(db, false)
	r := gin.New()
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
	}
	protected := r.Group("/api", middleware.AuthRequired())
	{
		protected.GET("/auth/me", h.GetCurrentUser)
		protected.POST("/auth/logout-all", h.LogoutAll)
	}
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}, mutate func(*http.Request)) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, r *gin.Engine, email string) tokenResponse {
	t.Helper()

	w := doJSON(r, "POST", "/api/auth/register", gin.H{
		"email":    email,
		"password": "secret123",
		"name":     "Test User",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected status %d, got %d (%s)", http.StatusCreated, w.Code, w.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("register: bad response body: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("register: token pair missing from response")
	}
	return resp
}

func TestRegister_SetsCookiesAndTokens(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(r, "POST", "/api/auth/register", gin.H{
		"email":    "reg@test.local",
		"password": "secret123",
		"name":     "Reg",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusCreated, w.Code, w.Body.String())
	}

	var names []string
	for _, c := range w.Result().Cookies() {
		names = append(names, c.Name)
	}
	for _, want := range []string{middleware.AccessTokenCookie, middleware.RefreshTokenCookie} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("cookie %q not set, got %v", want, names)
		}
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	r := newTestRouter(t)
	registerUser(t, r, "dup@test.local")

	w := doJSON(r, "POST", "/api/auth/register", gin.H{
		"email":    "dup@test.local",
		"password": "secret123",
		"name":     "Dup",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	r := newTestRouter(t)
	registerUser(t, r, "login@test.local")

	w := doJSON(r, "POST", "/api/auth/login", gin.H{
		"email":    "login@test.local",
		"password": "wrong-password",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestRefresh_RotatesAndRejectsReuse(t *testing.T) {
	r := newTestRouter(t)
	first := registerUser(t, r, "refresh@test.local")

	withCookie := func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: first.RefreshToken})
	}

	w := doJSON(r, "POST", "/api/auth/refresh", nil, withCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: expected status %d, got %d (%s)", http.StatusOK, w.Code, w.Body.String())
	}

	var next tokenResponse
	json.Unmarshal(w.Body.Bytes(), &next)
	if next.RefreshToken == "" || next.RefreshToken == first.RefreshToken {
		t.Error("refresh must return a new refresh token")
	}

	// The consumed token is single-use.
	w = doJSON(r, "POST", "/api/auth/refresh", nil, withCookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("reused refresh token: expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestRefresh_FromBody(t *testing.T) {
	r := newTestRouter(t)
	first := registerUser(t, r, "body@test.local")

	w := doJSON(r, "POST", "/api/auth/refresh", gin.H{"refreshToken": first.RefreshToken}, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d (%s)", http.StatusOK, w.Code, w.Body.String())
	}
}

func TestRefresh_MissingToken(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(r, "POST", "/api/auth/refresh", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestLogout_IdempotentAndRevokes(t *testing.T) {
	r := newTestRouter(t)
	pair := registerUser(t, r, "logout@test.local")

	withCookie := func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: pair.RefreshToken})
	}

	for i := 0; i < 2; i++ {
		w := doJSON(r, "POST", "/api/auth/logout", nil, withCookie)
		if w.Code != http.StatusOK {
			t.Errorf("logout attempt %d: expected status %d, got %d", i+1, http.StatusOK, w.Code)
		}
	}

	// Logout with no token at all still succeeds.
	w := doJSON(r, "POST", "/api/auth/logout", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("tokenless logout: expected status %d, got %d", http.StatusOK, w.Code)
	}

	// The revoked token can no longer be exchanged.
	w = doJSON(r, "POST", "/api/auth/refresh", nil, withCookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout: expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestLogoutAll_InvalidatesAllSessions(t *testing.T) {
	r := newTestRouter(t)
	pair := registerUser(t, r, "all@test.local")

	w := doJSON(r, "POST", "/api/auth/logout-all", nil, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	})
	if w.Code != http.StatusOK {
		t.Fatalf("logout-all: expected status %d, got %d (%s)", http.StatusOK, w.Code, w.Body.String())
	}

	w = doJSON(r, "POST", "/api/auth/refresh", gin.H{"refreshToken": pair.RefreshToken}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout-all: expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestLogoutAll_RequiresAccessToken(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(r, "POST", "/api/auth/logout-all", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestGetCurrentUser(t *testing.T) {
	r := newTestRouter(t)
	pair := registerUser(t, r, "me@test.local")

	w := doJSON(r, "GET", "/api/auth/me", nil, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusOK, w.Code, w.Body.String())
	}

	var resp struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.User.Email != "me@test.local" {
		t.Errorf("email = %q, expected %q", resp.User.Email, "me@test.local")
	}
}
