package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/quantumforge/platform/internal/config"
	"github.com/quantumforge/platform/internal/reputation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeMinter implements certifier.Minter without touching an RPC endpoint
type fakeMinter struct {
	mu    sync.Mutex
	calls int
}

func (m *fakeMinter) Mint(ctx context.Context, traderAddr string, tier reputation.Tier) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return fmt.Sprintf("0xtest%04d", m.calls), nil
}

func (m *fakeMinter) Address() string {
	return "0x0000000000000000000000000000000000000001"
}

func (m *fakeMinter) Close() error {
	return nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:         "0",
		Env:          "development",
		LogLevel:     "error",
		RPCURL:       config.DefaultRPCURL,
		ChainID:      config.DefaultChainID,
		CertContract: config.DefaultCertContract,
	}
}

// newTestServer creates an in-memory server with a fake minter
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), WithMinter(&fakeMinter{}))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"POST:/reviews",
		"GET:/reviews/:subjectId",
		"GET:/traders",
		"GET:/traders/search",
		"GET:/traders/:address",
		"POST:/traders",
		"PUT:/traders/:address",
		"POST:/auth/wallet",
		"POST:/auth/logout",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end review pipeline (in-memory stores, fake minter)
// ---------------------------------------------------------------------------

func TestReviewPipelineEndToEnd(t *testing.T) {
	s := newTestServer(t)

	const wallet = "0xaaaa000000000000000000000000000000000001"

	// Register a trader profile
	body := fmt.Sprintf(`{"name":"TestTrader","walletAddress":"%s"}`, wallet)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/traders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 registering trader, got %d: %s", w.Code, w.Body.String())
	}

	// Five 5-star reviews cross the first certification threshold
	for i := 0; i < 5; i++ {
		reviewBody := fmt.Sprintf(`{"subjectId":"%s","reviewerId":"0xbbbb00000000000000000000000000000000000%d","rating":5}`, wallet, i)
		w = httptest.NewRecorder()
		req = httptest.NewRequest("POST", "/reviews", strings.NewReader(reviewBody))
		req.Header.Set("Content-Type", "application/json")
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201 for review %d, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	// The trader should now hold a bronze certification with a credential tx
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/traders/search?walletAddress="+wallet, nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 searching trader, got %d", w.Code)
	}

	var found []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &found); err != nil {
		t.Fatalf("Failed to parse search response: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Expected 1 search result, got %d", len(found))
	}

	trader := found[0]
	if trader["certification"] != string(reputation.TierBronze) {
		t.Errorf("Expected bronze certification, got %v", trader["certification"])
	}
	if trader["certificationTx"] == nil || trader["certificationTx"] == "" {
		t.Error("Expected a credential tx hash on the trader")
	}
	if trader["reviewCount"] != float64(5) {
		t.Errorf("Expected reviewCount 5, got %v", trader["reviewCount"])
	}
	if trader["averageRating"] != float64(5) {
		t.Errorf("Expected averageRating 5, got %v", trader["averageRating"])
	}
}

func TestReviewForUnknownSubjectStillAccepted(t *testing.T) {
	s := newTestServer(t)

	body := `{"subjectId":"0xcccc000000000000000000000000000000000001","reviewerId":"0xdddd000000000000000000000000000000000001","rating":4}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/reviews", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201 for review of unregistered subject, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Auth wiring
// ---------------------------------------------------------------------------

func TestProfileUpdateRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	body := `{"name":"NewName"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/traders/0xaaaa000000000000000000000000000000000001", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without session token, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
