// Command paysim is a standalone mock payment provider for local development
// and load testing. It implements the customer, checkout session and billing
// portal endpoints the gateway client calls, and fires signed
// checkout.session.completed webhooks at a configurable target.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	gateway "github.com/inboxly/mail-assistant/internal/gateways"
)

type customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

type checkoutSession struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Customer    string            `json:"customer"`
	AmountTotal int64             `json:"amount_total"`
	Metadata    map[string]string `json:"metadata"`
	Status      string            `json:"status"`
}

// simulator keeps all state in memory; restarting it wipes everything, which
// is fine for a dev tool.
type simulator struct {
	mu         sync.Mutex
	customers  map[string]*customer
	sessions   map[string]*checkoutSession
	webhookURL string
	secret     string
	failRate   float64
	rng        *rand.Rand
}

func newSimulator(webhookURL, secret string, failRate float64) *simulator {
	return &simulator{
		customers:  make(map[string]*customer),
		sessions:   make(map[string]*checkoutSession),
		webhookURL: webhookURL,
		secret:     secret,
		failRate:   failRate,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *simulator) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.failRate
}

type handler struct {
	sim *simulator
}

// CreateCustomer mirrors the provider's form-encoded customer endpoint.
func (h *handler) CreateCustomer(c *gin.Context) {
	if h.sim.shouldFail() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": "simulated outage"}})
		return
	}

	email := c.PostForm("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "parameter_missing", "message": "email is required"}})
		return
	}

	cust := &customer{
		ID:       "cus_" + uuid.New().String()[:8],
		Email:    email,
		Metadata: formMetadata(c),
	}

	h.sim.mu.Lock()
	h.sim.customers[cust.ID] = cust
	h.sim.mu.Unlock()

	log.Info().Str("customer_id", cust.ID).Str("email", email).Msg("customer created")
	c.JSON(http.StatusOK, cust)
}

func (h *handler) CreateCheckoutSession(c *gin.Context) {
	if h.sim.shouldFail() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": "simulated outage"}})
		return
	}

	customerID := c.PostForm("customer")
	h.sim.mu.Lock()
	_, known := h.sim.customers[customerID]
	h.sim.mu.Unlock()
	if !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "resource_missing", "message": "no such customer"}})
		return
	}

	var amount int64
	fmt.Sscanf(c.PostForm("line_items[0][price_data][unit_amount]"), "%d", &amount)

	session := &checkoutSession{
		ID:          "cs_" + uuid.New().String()[:12],
		Customer:    customerID,
		AmountTotal: amount,
		Metadata:    formMetadata(c),
		Status:      "open",
	}
	session.URL = "http://localhost:8082/pay/" + session.ID

	h.sim.mu.Lock()
	h.sim.sessions[session.ID] = session
	h.sim.mu.Unlock()

	log.Info().Str("session_id", session.ID).Int64("amount", amount).Msg("checkout session created")
	c.JSON(http.StatusOK, session)
}

func (h *handler) CreateBillingPortalSession(c *gin.Context) {
	customerID := c.PostForm("customer")
	c.JSON(http.StatusOK, gin.H{
		"id":  "bps_" + uuid.New().String()[:8],
		"url": "http://localhost:8082/portal/" + customerID,
	})
}

// CompletePayment simulates the shopper finishing checkout: the session is
// marked complete and a signed webhook goes out.
func (h *handler) CompletePayment(c *gin.Context) {
	sessionID := c.Param("session_id")

	h.sim.mu.Lock()
	session, ok := h.sim.sessions[sessionID]
	if ok {
		session.Status = "complete"
	}
	h.sim.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "resource_missing", "message": "no such session"}})
		return
	}

	if err := h.sim.sendWebhook(session); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("webhook delivery failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "webhook_failed", "message": err.Error()}})
		return
	}

	log.Info().Str("session_id", sessionID).Msg("payment completed, webhook delivered")
	c.JSON(http.StatusOK, session)
}

func (s *simulator) sendWebhook(session *checkoutSession) error {
	event := map[string]any{
		"id":   "evt_" + uuid.New().String()[:12],
		"type": gateway.EventCheckoutCompleted,
		"data": map[string]any{
			"object": map[string]any{
				"id":           session.ID,
				"customer":     session.Customer,
				"amount_total": session.AmountTotal,
				"metadata":     session.Metadata,
			},
		},
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ts := time.Now().Unix()
	signature := fmt.Sprintf("t=%d,v1=%s", ts, gateway.ComputeSignature([]byte(s.secret), ts, payload))

	req, err := http.NewRequest(http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Webhook-Signature", signature)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

// UpdateConfig tweaks the failure rate at runtime, handy for breaker tests.
func (h *handler) UpdateConfig(c *gin.Context) {
	var cfg struct {
		FailRate *float64 `json:"fail_rate"`
	}
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_request", "message": err.Error()}})
		return
	}

	if cfg.FailRate != nil && *cfg.FailRate >= 0 && *cfg.FailRate <= 1.0 {
		h.sim.mu.Lock()
		h.sim.failRate = *cfg.FailRate
		h.sim.mu.Unlock()
		log.Info().Float64("fail_rate", *cfg.FailRate).Msg("updated failure rate")
	}

	c.JSON(http.StatusOK, gin.H{"fail_rate": h.sim.failRate})
}

// formMetadata collects metadata[...] form fields.
func formMetadata(c *gin.Context) map[string]string {
	metadata := make(map[string]string)
	c.Request.ParseForm()
	for key, values := range c.Request.PostForm {
		if strings.HasPrefix(key, "metadata[") && strings.HasSuffix(key, "]") && len(values) > 0 {
			metadata[key[len("metadata["):len(key)-1]] = values[0]
		}
	}
	return metadata
}

func setupRouter(h *handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/customers", h.CreateCustomer)
		v1.POST("/checkout/sessions", h.CreateCheckoutSession)
		v1.POST("/billing_portal/sessions", h.CreateBillingPortalSession)
	}

	// dev-only controls
	router.POST("/pay/:session_id/complete", h.CompletePayment)
	router.PUT("/config", h.UpdateConfig)
	router.GET("/health", h.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	webhookURL := getEnv("WEBHOOK_URL", "http://localhost:8080/api/v1/billing/webhook")
	secret := getEnv("WEBHOOK_SECRET", "whsec_dev_secret")
	failRate := getEnvFloat("FAIL_RATE", 0)

	log.Info().
		Str("port", port).
		Str("webhook_url", webhookURL).
		Float64("fail_rate", failRate).
		Msg("starting payment simulator")

	sim := newSimulator(webhookURL, secret, failRate)
	h := &handler{sim: sim}
	router := setupRouter(h)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}
