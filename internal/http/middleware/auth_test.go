package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func authRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BearerAuth(secret))
	r.GET("/whoami", func(c *gin.Context) {
		uid := "anonymous"
		if v, ok := c.Get("userID"); ok {
			uid, _ = v.(string)
		}
		c.String(http.StatusOK, uid)
	})
	return r
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func getWhoami(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBearerAuth_ValidToken(t *testing.T) {
	r := authRouter("secret")
	tok := signToken(t, "secret", jwt.MapClaims{
		"sub": "user-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	w := getWhoami(r, "Bearer "+tok)
	if w.Code != http.StatusOK || w.Body.String() != "user-7" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

func TestBearerAuth_LegacyIDClaim(t *testing.T) {
	r := authRouter("secret")
	tok := signToken(t, "secret", jwt.MapClaims{"id": "user-8"})
	w := getWhoami(r, "bearer "+tok) // scheme match is case-insensitive
	if w.Code != http.StatusOK || w.Body.String() != "user-8" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

func TestBearerAuth_Rejections(t *testing.T) {
	r := authRouter("secret")

	for name, header := range map[string]string{
		"wrong key":  "Bearer " + signToken(t, "other-secret", jwt.MapClaims{"sub": "u"}),
		"expired":    "Bearer " + signToken(t, "secret", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no subject": "Bearer " + signToken(t, "secret", jwt.MapClaims{"scope": "read"}),
		"not a jwt":  "Bearer abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			w := getWhoami(r, header)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if got := w.Header().Get("WWW-Authenticate"); got == "" {
				t.Fatalf("missing WWW-Authenticate header")
			}
		})
	}
}

func TestBearerAuth_AnonymousPassthrough(t *testing.T) {
	r := authRouter("secret")

	// No header and non-bearer schemes proceed without an identity.
	for _, header := range []string{"", "Basic dXNlcjpwdw==", "Bearer"} {
		w := getWhoami(r, header)
		if w.Code != http.StatusOK || w.Body.String() != "anonymous" {
			t.Fatalf("header %q: got %d %q", header, w.Code, w.Body.String())
		}
	}
}

func TestBearerAuth_DisabledWithoutSecret(t *testing.T) {
	r := authRouter("")
	tok := signToken(t, "whatever", jwt.MapClaims{"sub": "user-9"})
	w := getWhoami(r, "Bearer "+tok)
	if w.Code != http.StatusOK || w.Body.String() != "anonymous" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}
