package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestGenerateAndValidateToken(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateToken("user-42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Errorf("UserID = %q, want user-42", claims.UserID)
	}
	if claims.Subject != "user-42" {
		t.Errorf("Subject = %q, want user-42", claims.Subject)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).GenerateToken("user-42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewJWTManager("secret-b", time.Hour).ValidateToken(token); err == nil {
		t.Error("token signed with a different secret validated")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	m := &JWTManager{secret: []byte("test-secret"), accessTokenDuration: -time.Hour}
	token, err := m.GenerateToken("user-42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Error("expired token validated")
	}
}

func authTestRouter(m *JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", authMiddleware(m), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": userIDFrom(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	router := authTestRouter(m)

	token, err := m.GenerateToken("user-42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"malformed header", "Bearer", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	router := authTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); body != `{"user_id":"default"}` {
		t.Errorf("body = %s", body)
	}
}
