package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/harvestline/storefront/internal/alert/domain"
	"github.com/harvestline/storefront/internal/clock"
	"github.com/harvestline/storefront/internal/config"
	"github.com/harvestline/storefront/internal/dedupe"
	orderdomain "github.com/harvestline/storefront/internal/order/domain"
	orderrepo "github.com/harvestline/storefront/internal/order/repository"
	paymentrepo "github.com/harvestline/storefront/internal/payment/repository"
	"github.com/harvestline/storefront/internal/reconcile"
	"github.com/harvestline/storefront/internal/shipping"
	"github.com/harvestline/storefront/internal/square"
	dbpkg "github.com/harvestline/storefront/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type noopAlerts struct{}

func (noopAlerts) NewOrderAlert(context.Context, *orderdomain.Order)          {}
func (noopAlerts) OrderConfirmationEmail(context.Context, *orderdomain.Order) {}
func (noopAlerts) StatusChangeAlert(context.Context, *orderdomain.Order, orderdomain.OrderStatus, orderdomain.OrderStatus) {
}
func (noopAlerts) LabelFollowUpAlert(context.Context, *orderdomain.Order, string) {}

type noopPurchaser struct{}

func (noopPurchaser) Purchase(context.Context, string, string) shipping.Result {
	return shipping.Result{Success: true, TrackingNumber: "TRK"}
}

type noopFetcher struct{}

func (noopFetcher) RetrieveOrder(context.Context, string) (*square.Order, error) {
	return nil, square.ErrOrderNotFound
}

const testSignatureKey = "test-signature-key"
const testNotificationURL = "https://store.example.com/webhooks/square"

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbConn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(&orderdomain.Order{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		Square: config.SquareConfig{
			SignatureKey:    testSignatureKey,
			NotificationURL: testNotificationURL,
		},
		DedupeTTL:        time.Minute,
		LabelVerifyDelay: time.Hour,
	}

	reconciler := reconcile.New(reconcile.Params{
		DB:        dbConn,
		Log:       zap.NewNop(),
		GenID:     node,
		Orders:    orderrepo.Provide(),
		Payments:  paymentrepo.Provide(),
		SquareAPI: noopFetcher{},
		Dedupe:    dedupe.New(zap.NewNop(), dedupe.Options{TTL: time.Minute}),
		Alerts:    noopAlerts{},
		Labels:    noopPurchaser{},
		Clock:     clock.System(),
		Cfg:       cfg,
	})

	engine := NewEngine(cfg, zap.NewNop(), nil)
	NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		Log:        zap.NewNop(),
		Reconciler: reconciler,
	})
	return engine
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSignatureKey))
	mac.Write([]byte(testNotificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(engine *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", bytes.NewReader(body))
	req.Header.Set("X-Square-Hmacsha256-Signature", signature)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	engine := newTestServer(t)

	body := []byte(`{"type":"payment.updated","event_id":"evt-1","data":{}}`)
	w := postWebhook(engine, body, "not-a-valid-signature")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookAcknowledgesMalformedEnvelope(t *testing.T) {
	engine := newTestServer(t)

	body := []byte(`{"no_type_here": true}`)
	w := postWebhook(engine, body, signBody(body))
	assert.Equal(t, http.StatusOK, w.Code, "malformed payloads are acknowledged so Square stops resending")
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookAcknowledgesUnconsumedEventType(t *testing.T) {
	engine := newTestServer(t)

	body := []byte(`{"merchant_id":"m1","type":"catalog.version.updated","event_id":"evt-1","created_at":"2026-08-01T10:00:00Z","data":{"type":"catalog","id":"x","object":{}}}`)
	w := postWebhook(engine, body, signBody(body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "skipped")
}

func TestWebhookSkipsUnknownOrderCreated(t *testing.T) {
	engine := newTestServer(t)

	body := []byte(`{"merchant_id":"m1","type":"order.created","event_id":"evt-1","created_at":"2026-08-01T10:00:00Z","data":{"type":"order","id":"sq-1","object":{"order_created":{"order_id":"sq-1","state":"OPEN"}}}}`)
	w := postWebhook(engine, body, signBody(body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "skipped")
}

func TestHealthz(t *testing.T) {
	engine := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

var _ alertdomain.Service = noopAlerts{}
