// README: Tests for the auth middleware and the role gate using a stub verifier.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"bookferry/internal/infra"
	"bookferry/internal/modules/user"
	"bookferry/internal/types"
)

type stubVerifier struct {
	token *infra.AuthToken
	err   error
}

func (v *stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.AuthToken, error) {
	return v.token, v.err
}

type stubRegistrar struct {
	mu   sync.Mutex
	seen []*user.User
	fail error
}

func (r *stubRegistrar) Upsert(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.seen = append(r.seen, u)
	return nil
}

func newAuthRouter(verifier infra.TokenVerifier, registrar Registrar) (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var gotUID string
	r.GET("/whoami", Auth(verifier, registrar), func(c *gin.Context) {
		gotUID = CallerUID(c)
		c.Status(http.StatusOK)
	})
	return r, &gotUID
}

func TestAuthMissingHeader(t *testing.T) {
	r, _ := newAuthRouter(&stubVerifier{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthInvalidToken(t *testing.T) {
	r, _ := newAuthRouter(&stubVerifier{err: errors.New("expired")}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthValidTokenRegistersCaller(t *testing.T) {
	verifier := &stubVerifier{token: &infra.AuthToken{
		UID:    "user-1",
		Claims: map[string]interface{}{"name": "Alice"},
	}}
	registrar := &stubRegistrar{}
	r, gotUID := newAuthRouter(verifier, registrar)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if *gotUID != "user-1" {
		t.Fatalf("caller uid = %q", *gotUID)
	}
	if len(registrar.seen) != 1 || registrar.seen[0].ID != "user-1" || registrar.seen[0].DisplayName != "Alice" {
		t.Fatalf("registrar saw %+v", registrar.seen)
	}
}

func TestAuthRegistrarFailure(t *testing.T) {
	verifier := &stubVerifier{token: &infra.AuthToken{UID: "user-1", Claims: map[string]interface{}{}}}
	registrar := &stubRegistrar{fail: errors.New("db down")}
	r, _ := newAuthRouter(verifier, registrar)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	verifier := &stubVerifier{token: &infra.AuthToken{UID: "user-1", Claims: map[string]interface{}{}}}

	cases := []struct {
		name     string
		hasRole  RoleChecker
		wantCode int
	}{
		{
			"granted",
			func(_ context.Context, id types.ID, role user.Role) (bool, error) {
				return id == "user-1" && role == user.RoleAdmin, nil
			},
			http.StatusOK,
		},
		{
			"denied",
			func(_ context.Context, _ types.ID, _ user.Role) (bool, error) { return false, nil },
			http.StatusForbidden,
		},
		{
			"checker failure",
			func(_ context.Context, _ types.ID, _ user.Role) (bool, error) {
				return false, errors.New("db down")
			},
			http.StatusServiceUnavailable,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			r.GET("/admin", Auth(verifier, nil), RequireRole(user.RoleAdmin, c.hasRole), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer good-token")
			r.ServeHTTP(w, req)

			if w.Code != c.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, c.wantCode)
			}
		})
	}
}
