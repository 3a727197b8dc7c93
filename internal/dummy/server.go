// Package dummy is a stand-in for the QuickPizza API, good enough to point a
// benchmark at without deploying the real stack.
package dummy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type ServerConfig struct {
	Port int
	// Status forces every /api/pizza response to this code when non-zero.
	Status int
	// FailRate is the share of requests answered with 500, between 0 and 1.
	FailRate float64
	// Latency and Jitter delay every response by Latency + rand(Jitter).
	Latency time.Duration
	Jitter  time.Duration
	// Token, when set, must match "Authorization: token <Token>".
	Token string
}

// restrictions mirrors the body QuickPizza accepts.
type restrictions struct {
	MaxCaloriesPerSlice int      `json:"maxCaloriesPerSlice"`
	MustBeVegetarian    bool     `json:"mustBeVegetarian"`
	ExcludedIngredients []string `json:"excludedIngredients"`
	ExcludedTools       []string `json:"excludedTools"`
	MaxNumberOfToppings int      `json:"maxNumberOfToppings"`
	MinNumberOfToppings int      `json:"minNumberOfToppings"`
}

type pizza struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Dough       string   `json:"dough"`
	Ingredients []string `json:"ingredients"`
	Tool        string   `json:"tool"`
	Calories    int      `json:"calories"`
	Vegetarian  bool     `json:"vegetarian"`
}

// Handler serves POST /api/pizza and keeps counters tests can assert on.
type Handler struct {
	cfg ServerConfig
	mux *http.ServeMux

	requests uint64
	rejected uint64
	lastAuth atomic.Value // string
	lastBody atomic.Value // restrictions
}

func NewHandler(cfg ServerConfig) *Handler {
	h := &Handler{cfg: cfg, mux: http.NewServeMux()}
	h.mux.HandleFunc("/api/pizza", h.pizza)
	h.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Requests is the number of /api/pizza calls received.
func (h *Handler) Requests() uint64 {
	return atomic.LoadUint64(&h.requests)
}

// Rejected is the number of calls refused for a bad body or credentials.
func (h *Handler) Rejected() uint64 {
	return atomic.LoadUint64(&h.rejected)
}

// LastAuthorization returns the Authorization header of the latest call.
func (h *Handler) LastAuthorization() string {
	v, _ := h.lastAuth.Load().(string)
	return v
}

// LastMinMax returns the topping bounds of the latest accepted body.
func (h *Handler) LastMinMax() (min, max int) {
	v, _ := h.lastBody.Load().(restrictions)
	return v.MinNumberOfToppings, v.MaxNumberOfToppings
}

func (h *Handler) pizza(w http.ResponseWriter, r *http.Request) {
	atomic.AddUint64(&h.requests, 1)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	auth := r.Header.Get("Authorization")
	h.lastAuth.Store(auth)
	if !strings.HasPrefix(auth, "token ") || (h.cfg.Token != "" && auth != "token "+h.cfg.Token) {
		atomic.AddUint64(&h.rejected, 1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body restrictions
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		atomic.AddUint64(&h.rejected, 1)
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.MinNumberOfToppings > body.MaxNumberOfToppings {
		atomic.AddUint64(&h.rejected, 1)
		http.Error(w, "minNumberOfToppings exceeds maxNumberOfToppings", http.StatusBadRequest)
		return
	}
	h.lastBody.Store(body)

	if d := h.delay(); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	switch {
	case h.cfg.Status != 0 && h.cfg.Status != http.StatusOK:
		http.Error(w, http.StatusText(h.cfg.Status), h.cfg.Status)
		return
	case h.cfg.FailRate > 0 && rand.Float64() < h.cfg.FailRate:
		http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]pizza{"pizza": recommend(body)})
}

func (h *Handler) delay() time.Duration {
	d := h.cfg.Latency
	if h.cfg.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(h.cfg.Jitter)))
	}
	return d
}

func recommend(r restrictions) pizza {
	toppings := []string{"mozzarella", "tomato", "basil", "mushrooms", "olives", "onion", "peppers", "ham"}
	n := r.MinNumberOfToppings
	if r.MaxNumberOfToppings > n {
		n += rand.Intn(r.MaxNumberOfToppings - n + 1)
	}
	if n > len(toppings) {
		n = len(toppings)
	}
	tool := "pizza cutter"
	for _, t := range r.ExcludedTools {
		if t == tool {
			tool = "scissors"
		}
	}
	return pizza{
		ID:          rand.Int63n(1 << 20),
		Name:        "Benchmark Special",
		Dough:       "thin",
		Ingredients: toppings[:n],
		Tool:        tool,
		Calories:    r.MaxCaloriesPerSlice / 2,
		Vegetarian:  r.MustBeVegetarian,
	}
}

// Start serves the handler on cfg.Port until ctx is done.
func Start(ctx context.Context, cfg ServerConfig, log *zap.SugaredLogger) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: NewHandler(cfg),
	}

	log.Infow("mock QuickPizza listening", "addr", "http://localhost"+addr, "endpoint", "/api/pizza",
		"status", cfg.Status, "failRate", cfg.FailRate, "latency", cfg.Latency)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
