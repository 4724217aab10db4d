package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumforge/platform/internal/traders"
)

func setupAuthRouter(t *testing.T) (*gin.Engine, *Manager, *traders.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := NewManager(NewMemoryStore())
	traderSvc := traders.NewService(traders.NewMemoryStore())
	h := NewHandler(manager, traderSvc)

	r := gin.New()
	r.Use(Middleware(manager))
	h.RegisterRoutes(r.Group("/api/v1"))
	return r, manager, traderSvc
}

func postSignIn(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/wallet", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestWalletSignIn_NewWallet(t *testing.T) {
	r, _, _ := setupAuthRouter(t)

	address, sigHex := signMessage(t, SignInMessage)

	w := postSignIn(r, `{"walletAddress":"`+address+`","signature":"`+sigHex+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token   string         `json:"token"`
		Trader  traders.Trader `json:"trader"`
		Created bool           `json:"created"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Token, "qft_"))
	assert.True(t, resp.Created)
	assert.Equal(t, address, resp.Trader.WalletAddress)
	require.NotNil(t, resp.Trader.LastLoginAt)
}

func TestWalletSignIn_ExistingWallet(t *testing.T) {
	r, _, _ := setupAuthRouter(t)

	address, sigHex := signMessage(t, SignInMessage)
	body := `{"walletAddress":"` + address + `","signature":"` + sigHex + `"}`

	w := postSignIn(r, body)
	require.Equal(t, http.StatusCreated, w.Code)

	// Second sign-in finds the existing profile.
	w = postSignIn(r, body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Created bool `json:"created"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Created)
}

func TestWalletSignIn_Rejected(t *testing.T) {
	r, _, _ := setupAuthRouter(t)

	// Missing fields
	w := postSignIn(r, `{"walletAddress":"0x1234567890123456789012345678901234567890"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed address
	_, sigHex := signMessage(t, SignInMessage)
	w = postSignIn(r, `{"walletAddress":"nope","signature":"`+sigHex+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Signature that is not hex at all
	w = postSignIn(r, `{"walletAddress":"0x1234567890123456789012345678901234567890","signature":"not-hex!"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Signature from a different wallet
	w = postSignIn(r, `{"walletAddress":"0x1234567890123456789012345678901234567890","signature":"`+sigHex+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Signature over the wrong message
	address, wrongSig := signMessage(t, "not the sign-in message")
	w = postSignIn(r, `{"walletAddress":"`+address+`","signature":"`+wrongSig+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	r, _, _ := setupAuthRouter(t)

	address, sigHex := signMessage(t, SignInMessage)
	w := postSignIn(r, `{"walletAddress":"`+address+`","signature":"`+sigHex+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// Logout with the issued token
	w = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// The token no longer authenticates
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
