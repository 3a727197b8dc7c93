package dummy

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const body = `{"maxCaloriesPerSlice":500,"mustBeVegetarian":false,"excludedIngredients":["pepperoni"],"excludedTools":["knife"],"maxNumberOfToppings":6,"minNumberOfToppings":2}`

func post(t *testing.T, h http.Handler, auth, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/pizza", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRecommendsPizza(t *testing.T) {
	h := NewHandler(ServerConfig{})
	rec := post(t, h, "token abcdef0123456789", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Pizza pizza `json:"pizza"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.GreaterOrEqual(t, len(resp.Pizza.Ingredients), 2)
	assert.LessOrEqual(t, len(resp.Pizza.Ingredients), 6)
	assert.NotEqual(t, "knife", resp.Pizza.Tool)
	assert.Equal(t, 250, resp.Pizza.Calories)

	assert.Equal(t, uint64(1), h.Requests())
	min, max := h.LastMinMax()
	assert.Equal(t, 2, min)
	assert.Equal(t, 6, max)
}

func TestHandlerRejects(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		auth    string
		payload string
		want    int
	}{
		{"missing auth", ServerConfig{}, "", body, http.StatusUnauthorized},
		{"bearer scheme", ServerConfig{}, "Bearer abc", body, http.StatusUnauthorized},
		{"wrong token", ServerConfig{Token: "secret"}, "token other", body, http.StatusUnauthorized},
		{"bad json", ServerConfig{}, "token x", "{", http.StatusBadRequest},
		{"min above max", ServerConfig{}, "token x", `{"maxNumberOfToppings":1,"minNumberOfToppings":3}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.cfg)
			rec := post(t, h, tt.auth, tt.payload)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, uint64(1), h.Rejected())
		})
	}
}

func TestHandlerForcedStatus(t *testing.T) {
	h := NewHandler(ServerConfig{Status: http.StatusInternalServerError})
	rec := post(t, h, "token x", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, uint64(0), h.Rejected())
}

func TestHandlerFailRate(t *testing.T) {
	h := NewHandler(ServerConfig{FailRate: 1})
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusInternalServerError, post(t, h, "token x", body).Code)
	}
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	h := NewHandler(ServerConfig{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pizza", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerLatency(t *testing.T) {
	h := NewHandler(ServerConfig{Latency: 30 * time.Millisecond})
	start := time.Now()
	post(t, h, "token x", body)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestStartShutsDownOnCancel(t *testing.T) {
	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, ServerConfig{Port: port}, zap.NewNop().Sugar()) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
