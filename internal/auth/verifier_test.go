package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/Subash-08/iTech-compters-sub001/internal/common"
)

const testSecret = "test-secret-test-secret-test-secret"

func signToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(time.Now().Add(-time.Minute)).
		Expiration(exp).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)
	return string(signed)
}

func TestVerifierSubject(t *testing.T) {
	v := Verifier{Secret: []byte(testSecret)}
	token := signToken(t, "user-1", time.Now().Add(time.Hour))
	sub, err := v.Subject(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", sub)
}

func TestVerifierRejectsExpired(t *testing.T) {
	v := Verifier{Secret: []byte(testSecret)}
	token := signToken(t, "user-1", time.Now().Add(-time.Hour))
	_, err := v.Subject(token)
	require.Error(t, err)
}

func TestVerifierRejectsWrongKey(t *testing.T) {
	v := Verifier{Secret: []byte("another-secret-another-secret-xx")}
	token := signToken(t, "user-1", time.Now().Add(time.Hour))
	_, err := v.Subject(token)
	require.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	m := Middleware{Verifier: Verifier{Secret: []byte(testSecret)}}
	var gotUser string
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = common.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-2", time.Now().Add(time.Hour)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-2", gotUser)
}
