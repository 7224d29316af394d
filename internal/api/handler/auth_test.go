package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	h := NewHandler(nil, "test-secret")

	token, err := h.generateJWT("anon-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	anonID, err := h.validateAndGetAnonID(token)
	require.NoError(t, err)
	assert.Equal(t, "anon-123", anonID)
}

func TestJWT_WrongSecretRejected(t *testing.T) {
	token, err := NewHandler(nil, "secret-one").generateJWT("anon-123")
	require.NoError(t, err)

	_, err = NewHandler(nil, "secret-two").validateAndGetAnonID(token)
	assert.Error(t, err)
}

func TestJWT_ExpiredTokenRejected(t *testing.T) {
	h := NewHandler(nil, "test-secret")
	claims := jwt.MapClaims{
		"anon_id": "anon-123",
		"exp":     time.Now().Add(-time.Hour).Unix(),
		"iss":     tokenIssuer,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	require.NoError(t, err)

	_, err = h.validateAndGetAnonID(token)
	assert.Error(t, err)
}

func TestJWT_MissingClaimsRejected(t *testing.T) {
	h := NewHandler(nil, "test-secret")

	cases := map[string]jwt.MapClaims{
		"no anon_id": {
			"exp": time.Now().Add(time.Hour).Unix(),
			"iss": tokenIssuer,
		},
		"no expiry": {
			"anon_id": "anon-123",
			"iss":     tokenIssuer,
		},
		"wrong issuer": {
			"anon_id": "anon-123",
			"exp":     time.Now().Add(time.Hour).Unix(),
			"iss":     "someone-else",
		},
	}
	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
			require.NoError(t, err)
			_, err = h.validateAndGetAnonID(token)
			assert.Error(t, err)
		})
	}
}

func TestGetAnonID_ReturnsTokenForFreshIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, "test-secret")

	router := gin.New()
	router.GET("/token", h.GetAnonID)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Token  string `json:"token"`
		AnonID string `json:"anon_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	require.NotEmpty(t, body.AnonID)

	anonID, err := h.validateAndGetAnonID(body.Token)
	require.NoError(t, err)
	assert.Equal(t, body.AnonID, anonID)
}
