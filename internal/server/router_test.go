package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tableside/internal/auth"
	"tableside/internal/catalog"
	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/dto"
	"tableside/internal/infrastructure/database"
	"tableside/internal/notify"
	"tableside/internal/order"
	"tableside/internal/session"
	"tableside/internal/testutil"
)

type app struct {
	db      *database.DB
	handler http.Handler
	tokens  *auth.TokenService
}

func newApp(t *testing.T, requestRate int) *app {
	t.Helper()
	return newAppWithOptions(t, RouterOptions{RequestRate: requestRate})
}

func newAppWithOptions(t *testing.T, opts RouterOptions) *app {
	t.Helper()
	requestRate := opts.RequestRate
	opts.AllowedOrigins = []string{"https://menu.example"}
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	cfg := &config.Config{
		Server:  config.ServerConfig{PublicBaseURL: "https://menu.example", RequestRate: requestRate},
		Auth:    config.AuthConfig{JWTSecret: "router-secret", SessionTTL: time.Hour, StaffTTL: time.Hour},
		Order:   config.OrderConfig{TxTimeout: 5 * time.Second, MaxRetryAttempts: 3},
		Session: config.SessionConfig{TxTimeout: 5 * time.Second, MaxRetryAttempts: 3},
	}

	authModule := auth.NewModule(db, cfg.Auth, logger)
	catalogModule := catalog.NewModule(db, logger)

	bus := notify.NewBus(notify.Options{}, authModule.Tokens, logger)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { bus.Shutdown(context.Background()) })

	sessionModule := session.NewModule(db, cfg, authModule.Tokens, bus, logger)
	orderModule := order.NewModule(db, cfg, sessionModule.Registry, catalogModule.Service, bus, logger)

	handler := NewRouter(Handlers{
		DB:         db,
		Auth:       authModule.Controller,
		Middleware: authModule.Middleware,
		Catalog:    catalogModule.Controller,
		Sessions:   sessionModule.Controller,
		Orders:     orderModule.Controller,
		WebSocket:  notify.NewWebSocketHandler(bus, []string{"*"}, logger),
	}, opts, logger)

	return &app{db: db, handler: handler, tokens: authModule.Tokens}
}

func (a *app) call(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *app) staffToken(t *testing.T, role domain.Role) string {
	t.Helper()
	token, _, err := a.tokens.IssueStaffToken(domain.User{ID: 1, Username: string(role), Role: role})
	require.NoError(t, err)
	return token
}

func TestRouter_Health(t *testing.T) {
	a := newApp(t, 0)

	rec := a.call(t, http.MethodGet, "/health", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "OK", body["status"])
}

type downDB struct{}

func (downDB) PingContext(context.Context) error { return errors.New("connection refused") }

func TestHealthHandler_StoreDown(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(downDB{}, zap.NewNop())(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERROR")
}

func TestRouter_DiningFlow(t *testing.T) {
	a := newApp(t, 0)
	tableID := testutil.CreateTable(t, a.db, 8)
	burger := testutil.CreateProduct(t, a.db, 0, "Burger", 12.50, true)
	staff := a.staffToken(t, domain.RoleStaff)
	kitchen := a.staffToken(t, domain.RoleKitchen)

	rec := a.call(t, http.MethodPost, "/api/sessions/request", "",
		`{"tableId":`+strconv.FormatInt(tableID, 10)+`,"customerName":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created dto.SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	sessionPath := "/api/sessions/" + strconv.FormatInt(created.ID, 10)

	assert.Equal(t, http.StatusUnauthorized, a.call(t, http.MethodPost, sessionPath+"/approve", "", "").Code)
	assert.Equal(t, http.StatusForbidden, a.call(t, http.MethodPost, sessionPath+"/approve", kitchen, "").Code)
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPost, sessionPath+"/approve", staff, "").Code)

	customer, _, err := a.tokens.IssueSessionCredential(created.ID, tableID)
	require.NoError(t, err)

	orderBody := `{"items":[{"productId":` + strconv.FormatInt(burger, 10) + `,"quantity":2,"price":0.5}]}`
	assert.Equal(t, http.StatusForbidden, a.call(t, http.MethodPost, "/api/orders", staff, orderBody).Code)
	rec = a.call(t, http.MethodPost, "/api/orders", customer, orderBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed dto.OrderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&placed))
	assert.Equal(t, 25.0, placed.TotalAmount)

	assert.Equal(t, http.StatusForbidden, a.call(t, http.MethodGet, "/api/orders", customer, "").Code)
	rec = a.call(t, http.MethodGet, "/api/orders?status=pending", kitchen, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var queue []dto.OrderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&queue))
	require.Len(t, queue, 1)
	assert.Equal(t, 8, queue[0].TableNumber)

	statusPath := "/api/orders/" + strconv.FormatInt(placed.ID, 10) + "/status"
	require.Equal(t, http.StatusOK, a.call(t, http.MethodPatch, statusPath, kitchen, `{"status":"preparing"}`).Code)
	assert.Equal(t, http.StatusConflict, a.call(t, http.MethodPatch, statusPath, kitchen, `{"status":"served"}`).Code)

	rec = a.call(t, http.MethodGet, "/api/orders/session/"+strconv.FormatInt(created.ID, 10), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []dto.OrderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, "preparing", history[0].Status)

	require.Equal(t, http.StatusOK, a.call(t, http.MethodPost, sessionPath+"/close", staff, "").Code)
	assert.Equal(t, http.StatusConflict, a.call(t, http.MethodPost, "/api/orders", customer, orderBody).Code)

	rec = a.call(t, http.MethodGet, "/api/sessions/table/"+strconv.FormatInt(tableID, 10), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestRouter_SessionRequestsAreRateLimited(t *testing.T) {
	a := newApp(t, 2)
	tableID := testutil.CreateTable(t, a.db, 1)
	body := `{"tableId":` + strconv.FormatInt(tableID, 10) + `,"customerName":"Bob"}`

	assert.Equal(t, http.StatusCreated, a.call(t, http.MethodPost, "/api/sessions/request", "", body).Code)
	assert.Equal(t, http.StatusOK, a.call(t, http.MethodPost, "/api/sessions/request", "", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, a.call(t, http.MethodPost, "/api/sessions/request", "", body).Code)
}

func (a *app) requestFrom(t *testing.T, remoteAddr, forwardedFor, body string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/request", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Real-IP", forwardedFor)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRouter_SpoofedForwardingHeadersShareOneBucket(t *testing.T) {
	a := newApp(t, 1)
	tableID := testutil.CreateTable(t, a.db, 1)
	body := `{"tableId":` + strconv.FormatInt(tableID, 10) + `,"customerName":"Bob"}`

	assert.Equal(t, http.StatusCreated, a.requestFrom(t, "198.51.100.4:4000", "203.0.113.1", body))
	for i := 2; i <= 5; i++ {
		code := a.requestFrom(t, "198.51.100.4:4000", "203.0.113."+strconv.Itoa(i), body)
		assert.Equal(t, http.StatusTooManyRequests, code)
	}
}

func TestRouter_TrustedProxyForwardsClientAddress(t *testing.T) {
	a := newAppWithOptions(t, RouterOptions{
		RequestRate:    1,
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	})
	tableID := testutil.CreateTable(t, a.db, 1)
	body := `{"tableId":` + strconv.FormatInt(tableID, 10) + `,"customerName":"Bob"}`

	assert.Equal(t, http.StatusCreated, a.requestFrom(t, "10.0.0.5:4000", "203.0.113.1", body))
	assert.Equal(t, http.StatusOK, a.requestFrom(t, "10.0.0.5:4000", "203.0.113.2", body))
	assert.Equal(t, http.StatusTooManyRequests, a.requestFrom(t, "10.0.0.5:4000", "203.0.113.1", body))
}

func TestRouter_TablesRequireStaff(t *testing.T) {
	a := newApp(t, 0)
	testutil.CreateTable(t, a.db, 3)

	assert.Equal(t, http.StatusUnauthorized, a.call(t, http.MethodGet, "/api/tables", "", "").Code)

	rec := a.call(t, http.MethodGet, "/api/tables", a.staffToken(t, domain.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tables []dto.TableResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tables))
	require.Len(t, tables, 1)
	assert.Equal(t, 3, tables[0].Number)
}

func TestRouter_CORSPreflight(t *testing.T) {
	a := newApp(t, 0)
	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://menu.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()

	a.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://menu.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
