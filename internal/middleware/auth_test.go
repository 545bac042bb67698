package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func genUUID() gopter.Gen {
	return gen.UInt64().Map(func(n uint64) uuid.UUID {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24), byte(n >> 32)})
	})
}

// Property: a request without an Authorization header never reaches the handler
func TestProperty_ProtectedEndpointsRejectMissingTokens(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requests without authorization header are rejected", prop.ForAll(
		func(pathSuffix string, method string) bool {
			reached := false
			handler := AuthMiddleware(testSecret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/api/"+pathSuffix, nil))

			return !reached && w.Code == http.StatusUnauthorized
		},
		gen.AlphaString(),
		gen.OneConstOf("GET", "POST", "PUT", "DELETE"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property: an expired token is rejected whatever its claims
func TestProperty_ExpiredTokensAreRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("expired tokens are rejected with 401", prop.ForAll(
		func(userID uuid.UUID, role string) bool {
			token := signToken(t, jwt.MapClaims{
				"user_id": userID.String(),
				"role":    role,
				"exp":     time.Now().Add(-time.Hour).Unix(),
			}, testSecret)

			handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler)
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		genUUID(),
		gen.OneConstOf(domain.RoleCustomer, domain.RoleAdmin),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property: a valid token puts its user id and role on the context
func TestProperty_ValidTokensAllowProcessing(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid tokens allow request processing", prop.ForAll(
		func(userID uuid.UUID, role string) bool {
			token := signToken(t, jwt.MapClaims{
				"user_id": userID.String(),
				"role":    role,
				"exp":     time.Now().Add(time.Hour).Unix(),
			}, testSecret)

			var gotID uuid.UUID
			var gotRole string
			handler := AuthMiddleware(testSecret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID, _ = GetUserID(r.Context())
				gotRole, _ = GetUserRole(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK || gotID != userID || gotRole != role {
				t.Logf("FAIL: status %d id %s role %s", w.Code, gotID, gotRole)
				return false
			}
			return true
		},
		genUUID(),
		gen.OneConstOf(domain.RoleCustomer, domain.RoleAdmin),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property: garbage after "Bearer " is rejected
func TestProperty_InvalidTokenFormatRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("invalid token formats are rejected", prop.ForAll(
		func(invalidToken string) bool {
			handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler)
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			req.Header.Set("Authorization", "Bearer "+invalidToken)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			return w.Code == http.StatusUnauthorized
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestAuthMiddleware_RejectsBadClaimsAndSignatures(t *testing.T) {
	valid := jwt.MapClaims{
		"user_id": uuid.NewString(),
		"role":    domain.RoleCustomer,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing bearer prefix", signToken(t, valid, testSecret)},
		{"other secret", "Bearer " + signToken(t, valid, "other-secret")},
		{"user id is not a uuid", "Bearer " + signToken(t, jwt.MapClaims{
			"user_id": "42", "role": domain.RoleCustomer, "exp": time.Now().Add(time.Hour).Unix(),
		}, testSecret)},
		{"missing role", "Bearer " + signToken(t, jwt.MapClaims{
			"user_id": uuid.NewString(), "exp": time.Now().Add(time.Hour).Unix(),
		}, testSecret)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			req.Header.Set("Authorization", tt.header)
			w := httptest.NewRecorder()
			AuthMiddleware(testSecret, zap.NewNop())(okHandler).ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	chain := func(role string) int {
		token := signToken(t, jwt.MapClaims{
			"user_id": uuid.NewString(),
			"role":    role,
			"exp":     time.Now().Add(time.Hour).Unix(),
		}, testSecret)
		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		AuthMiddleware(testSecret, zap.NewNop())(RequireAdmin(zap.NewNop())(okHandler)).ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, chain(domain.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, chain(domain.RoleCustomer))

	w := httptest.NewRecorder()
	RequireAdmin(zap.NewNop())(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
