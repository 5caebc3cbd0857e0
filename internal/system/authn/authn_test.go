package authn

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/identity-contact-resolution-service/internal/system/config"
	errors2 "github.com/wso2/identity-contact-resolution-service/internal/system/errors"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
)

func TestMain(m *testing.M) {
	_ = log.Init("ERROR")
	config.OverrideICRRuntime(config.Config{
		Auth: config.AuthConfig{AdminAudience: "icr-admin"},
	})
	os.Exit(m.Run())
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func requestWithToken(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestValidateAuthentication_ValidToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"aud": "icr-admin",
		"exp": float64(time.Now().Add(time.Hour).Unix()),
		"sub": "admin-user",
	})

	claims, err := ValidateAuthentication(requestWithToken(token))

	require.NoError(t, err)
	assert.Equal(t, "admin-user", claims["sub"])
}

func TestValidateAuthentication_AudienceArray(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"aud": []string{"other", "icr-admin"},
		"exp": float64(time.Now().Add(time.Hour).Unix()),
	})

	_, err := ValidateAuthentication(requestWithToken(token))

	assert.NoError(t, err)
}

func TestValidateAuthentication_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)

	_, err := ValidateAuthentication(req)

	require.Error(t, err)
	clientErr, ok := err.(*errors2.ClientError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, clientErr.StatusCode)
}

func TestValidateAuthentication_OpaqueTokenRejected(t *testing.T) {
	_, err := ValidateAuthentication(requestWithToken("not-a-jwt"))

	assert.Error(t, err)
}

func TestValidateAuthentication_WrongAudience(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"aud": "someone-else",
		"exp": float64(time.Now().Add(time.Hour).Unix()),
	})

	_, err := ValidateAuthentication(requestWithToken(token))

	assert.Error(t, err)
}

func TestValidateAuthentication_ExpiredToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"aud": "icr-admin",
		"exp": float64(time.Now().Add(-time.Hour).Unix()),
	})

	_, err := ValidateAuthentication(requestWithToken(token))

	assert.Error(t, err)
}

func TestSubjectClaim(t *testing.T) {
	assert.Equal(t, "admin-user", subjectClaim(map[string]interface{}{"sub": "admin-user"}))
	assert.Equal(t, "", subjectClaim(map[string]interface{}{}))
	assert.Equal(t, "", subjectClaim(map[string]interface{}{"sub": 42}))
}

func TestValidateAuthentication_MissingExpiry(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"aud": "icr-admin",
	})

	_, err := ValidateAuthentication(requestWithToken(token))

	assert.Error(t, err)
}
