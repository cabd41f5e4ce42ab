package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/camatch/camatch-api/internal/models"
	"github.com/camatch/camatch-api/internal/service"
)

const testSecret = "middleware-test-secret"

func testAuthService() *service.AuthService {
	return service.NewAuthService(nil, nil, nil, nil, service.AuthConfig{
		AccessTokenSecret: testSecret,
		AccessTokenExpiry: time.Minute,
	})
}

func signTestToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTMiddlewareValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen *models.JWTClaims

	router := gin.New()
	router.Use(JWT(testAuthService()))
	router.GET("/", func(c *gin.Context) {
		if v, ok := c.Get(ContextUserKey); ok {
			seen, _ = v.(*models.JWTClaims)
		}
		c.Status(http.StatusNoContent)
	})

	token := signTestToken(t, testSecret, &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if seen == nil || seen.UserID != "u-1" {
		t.Fatalf("claims not attached to context: %+v", seen)
	}
}

func TestJWTMiddlewareMissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWT(testAuthService()))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestJWTMiddlewareWrongSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWT(testAuthService()))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	token := signTestToken(t, "some-other-secret", &models.JWTClaims{UserID: "u-1"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(OptionalJWT(testAuthService()))
	router.GET("/", func(c *gin.Context) {
		if _, ok := c.Get(ContextUserKey); ok {
			t.Fatal("claims should not be set for a garbage token")
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		claims *models.JWTClaims
		want   int
	}{
		{"admin allowed", &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin}, http.StatusNoContent},
		{"student blocked", &models.JWTClaims{UserID: "u-2", Role: models.RoleStudent}, http.StatusForbidden},
		{"missing claims", nil, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				if tc.claims != nil {
					c.Set(ContextUserKey, tc.claims)
				}
			})
			router.Use(RequireRoles(models.RoleAdmin))
			router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if rec.Code != tc.want {
				t.Fatalf("unexpected status: got %d want %d", rec.Code, tc.want)
			}
		})
	}
}
