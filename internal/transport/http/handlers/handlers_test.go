package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"

	"github.com/glowcheck/backend/internal/domain/enums"
	"github.com/glowcheck/backend/internal/domain/model"
	"github.com/glowcheck/backend/internal/domain/rules"
	redrepo "github.com/glowcheck/backend/internal/repo/redis"
	"github.com/glowcheck/backend/internal/services/analysis"
	authsvc "github.com/glowcheck/backend/internal/services/auth"
	entsvc "github.com/glowcheck/backend/internal/services/entitlements"
	mediasvc "github.com/glowcheck/backend/internal/services/media"
	paymentsvc "github.com/glowcheck/backend/internal/services/payments"
	scansvc "github.com/glowcheck/backend/internal/services/scans"
	usagesvc "github.com/glowcheck/backend/internal/services/usage"
	"github.com/glowcheck/backend/internal/transport/http/dto"
)

const (
	testUserID   = "9b2d4c61-0f3e-4a8e-b7a1-5c6d7e8f9a01"
	testClientID = "install-1"
)

type memUsageStore struct {
	mu      sync.Mutex
	records map[enums.FeatureType]model.UsageRecord
}

func (m *memUsageStore) IncrementUsage(_ context.Context, userID string, feature enums.FeatureType, dayKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[feature]
	if rec.LastResetDate != dayKey {
		rec = model.UsageRecord{UserID: userID, FeatureType: feature, LastResetDate: dayKey}
	}
	rec.UsageCount++
	m.records[feature] = rec
	return rec.UsageCount, nil
}

func (m *memUsageStore) ListUsage(_ context.Context, _ string, features []enums.FeatureType) ([]model.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.UsageRecord, 0, len(features))
	for _, feature := range features {
		if rec, ok := m.records[feature]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memTrialStore struct {
	mu  sync.Mutex
	rec model.TrialTracking
}

func (m *memTrialStore) Get(context.Context, string) (model.TrialTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec, nil
}

func (m *memTrialStore) ExtendResultsUnlock(_ context.Context, userID string, now, until time.Time) (model.TrialTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.UserID = userID
	if m.rec.FirstScanAt == nil {
		first := now
		m.rec.FirstScanAt = &first
	}
	m.rec.ResultsUnlockedUntil = &until
	return m.rec, nil
}

func (m *memTrialStore) MarkPaymentMethod(_ context.Context, userID string, now, trialEndsAt time.Time) (model.TrialTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.UserID = userID
	m.rec.HasPaymentMethod = true
	if m.rec.TrialStartedAt == nil {
		start := now
		m.rec.TrialStartedAt = &start
		m.rec.TrialEndsAt = &trialEndsAt
	}
	return m.rec, nil
}

type fakePhotos struct{}

func (fakePhotos) UploadScanPhoto(_ context.Context, in mediasvc.UploadInput) (mediasvc.ScanPhoto, error) {
	if _, err := io.Copy(io.Discard, in.Body); err != nil {
		return mediasvc.ScanPhoto{}, err
	}
	key := mediasvc.ScanObjectKey(in.UserID, in.Feature, in.AttemptID, ".jpg")
	return mediasvc.ScanPhoto{ObjectKey: key, URL: "http://s3.local/" + key}, nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(context.Context, analysis.Request) (json.RawMessage, error) {
	return json.RawMessage(`{"score":87}`), nil
}

type testEnv struct {
	redis    *goredis.Client
	usage    *memUsageStore
	trials   *memTrialStore
	sessions *Sessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		redis:  client,
		usage:  &memUsageStore{records: make(map[enums.FeatureType]model.UsageRecord)},
		trials: &memTrialStore{},
	}
	entitlements := entsvc.NewRegistry(redrepo.NewSnapshotRepo(client), entsvc.Config{}, nil)
	ledgers := usagesvc.NewRegistry(usagesvc.Dependencies{Usage: env.usage, Trials: env.trials}, usagesvc.Config{}, nil)
	env.sessions = NewSessions(entitlements, ledgers, "UTC")
	return env
}

func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(authsvc.WithIdentity(req.Context(), authsvc.Identity{
		UserID:   testUserID,
		ClientID: testClientID,
	}))
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rr.Body.String())
	}
	return out
}

func TestEntitlementGetFreshClient(t *testing.T) {
	env := newTestEnv(t)
	handler := NewEntitlementHandler(env.sessions, nil, nil)

	rr := httptest.NewRecorder()
	handler.Get(rr, authedRequest(http.MethodGet, "/v1/entitlement", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	payload := decodeBody[dto.EntitlementResponse](t, rr)
	if payload.ClientID != testClientID {
		t.Fatalf("unexpected client id: %q", payload.ClientID)
	}
	if payload.IsPremium || payload.HasStartedTrial || payload.InTrial {
		t.Fatalf("fresh client must be free without trial: %+v", payload)
	}
	if !payload.CanScan || payload.ScansLeft != rules.DefaultMaxScansInTrial {
		t.Fatalf("fresh client must be able to scan: %+v", payload)
	}
}

func TestEntitlementRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	handler := NewEntitlementHandler(env.sessions, nil, nil)

	rr := httptest.NewRecorder()
	handler.Get(rr, httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestEntitlementScanAutoStartsTrialAndPersists(t *testing.T) {
	env := newTestEnv(t)
	handler := NewEntitlementHandler(env.sessions, nil, nil)

	rr := httptest.NewRecorder()
	handler.IncrementScan(rr, authedRequest(http.MethodPost, "/v1/entitlement/scan", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	payload := decodeBody[dto.EntitlementScanResponse](t, rr)
	if !payload.TrialStarted || payload.QuotaExceeded {
		t.Fatalf("unexpected scan result: %+v", payload)
	}
	if payload.Entitlement.ScanCount != 0 || !payload.Entitlement.InTrial {
		t.Fatalf("first scan arms the trial without counting: %+v", payload.Entitlement)
	}

	rr = httptest.NewRecorder()
	handler.IncrementScan(rr, authedRequest(http.MethodPost, "/v1/entitlement/scan", nil))
	payload = decodeBody[dto.EntitlementScanResponse](t, rr)
	if payload.TrialStarted || payload.Entitlement.ScanCount != 1 {
		t.Fatalf("second scan must count: %+v", payload)
	}

	snapshot, found, err := redrepo.NewSnapshotRepo(env.redis).Get(context.Background(), entsvc.SnapshotKey(testUserID, testClientID))
	if err != nil || !found {
		t.Fatalf("snapshot not persisted: found=%v err=%v", found, err)
	}
	if !snapshot.HasStartedTrial || snapshot.ScanCount != 1 {
		t.Fatalf("unexpected persisted snapshot: %+v", snapshot)
	}
}

func TestEntitlementIsScopedToAuthenticatedUser(t *testing.T) {
	env := newTestEnv(t)
	handler := NewEntitlementHandler(env.sessions, nil, nil)

	rr := httptest.NewRecorder()
	handler.StartTrial(rr, authedRequest(http.MethodPost, "/v1/entitlement/trial", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}

	other := httptest.NewRequest(http.MethodPost, "/v1/entitlement/reset", nil)
	other = other.WithContext(authsvc.WithIdentity(other.Context(), authsvc.Identity{
		UserID:   "3c1e5a7b-9d2f-4b6a-8c0e-2f4a6b8c0d1e",
		ClientID: testClientID,
	}))
	rr = httptest.NewRecorder()
	handler.Reset(rr, other)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	handler.Get(rr, authedRequest(http.MethodGet, "/v1/entitlement", nil))
	payload := decodeBody[dto.EntitlementResponse](t, rr)
	if !payload.HasStartedTrial || !payload.InTrial {
		t.Fatalf("another user's reset must not touch this client's trial: %+v", payload)
	}
}

func TestStartTrialRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	handler := NewEntitlementHandler(env.sessions, nil, nil)

	rr := httptest.NewRecorder()
	handler.StartTrial(rr, authedRequest(http.MethodPost, "/v1/entitlement/trial", strings.NewReader(`{"weeks":1}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestStartTrialAcceptsEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	handler := NewEntitlementHandler(env.sessions, nil, nil)

	rr := httptest.NewRecorder()
	handler.StartTrial(rr, authedRequest(http.MethodPost, "/v1/entitlement/trial", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d (body=%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	payload := decodeBody[dto.EntitlementResponse](t, rr)
	if !payload.InTrial || payload.DaysLeft != rules.DefaultTrialDays {
		t.Fatalf("unexpected trial state: %+v", payload)
	}
}

func TestUsageIncrementRoutesFeature(t *testing.T) {
	env := newTestEnv(t)
	handler := NewUsageHandler(env.sessions, nil, nil)
	router := chi.NewRouter()
	router.Post("/v1/usage/{feature}/increment", handler.Increment)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/usage/glow/increment", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown feature: got %d want %d", rr.Code, http.StatusBadRequest)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/usage/glow_analysis/increment", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	payload := decodeBody[dto.UsageIncrementResponse](t, rr)
	if !payload.Recorded || payload.Count != 1 {
		t.Fatalf("unexpected increment: %+v", payload)
	}
	if !payload.ShowPaywall {
		t.Fatalf("free tier must see the paywall after the free scan")
	}
	if payload.ResultsUnlockedUntil == nil || !payload.Usage.ResultsUnlocked {
		t.Fatalf("results must be unlocked after a recorded scan: %+v", payload)
	}
	if payload.Usage.CanScanGlow || !payload.Usage.CanScanStyle {
		t.Fatalf("only glow quota must be consumed: %+v", payload.Usage)
	}
}

func TestPaymentMethodActivatesTrialAllowance(t *testing.T) {
	env := newTestEnv(t)
	handler := NewUsageHandler(env.sessions, nil, nil)

	rr := httptest.NewRecorder()
	handler.PaymentMethod(rr, authedRequest(http.MethodPost, "/v1/trial/payment-method", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	payload := decodeBody[dto.UsageResponse](t, rr)
	if !payload.TrialActive || !payload.HasPaymentMethod {
		t.Fatalf("trial must be active: %+v", payload)
	}
	if payload.GlowScansLeft != rules.TrialDailyScans {
		t.Fatalf("unexpected glow scans left: got %d want %d", payload.GlowScansLeft, rules.TrialDailyScans)
	}
}

func TestPurchaseConfirm(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPurchaseHandler(env.sessions, paymentsvc.NewService(nil, nil))

	rr := httptest.NewRecorder()
	handler.Confirm(rr, authedRequest(http.MethodPost, "/v1/purchases/confirm",
		strings.NewReader(`{"plan":"weekly","provider":"app_store","purchase_token":"tok"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unsupported plan: got %d want %d", rr.Code, http.StatusBadRequest)
	}

	rr = httptest.NewRecorder()
	handler.Confirm(rr, authedRequest(http.MethodPost, "/v1/purchases/confirm",
		strings.NewReader(`{"plan":"yearly","provider":"play_store","purchase_token":"tok","original_transaction_id":"tx-1"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d (body=%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	payload := decodeBody[dto.PurchaseConfirmResponse](t, rr)
	if !payload.Entitlement.IsPremium || payload.Entitlement.ScansLeft != rules.Unlimited {
		t.Fatalf("purchase must grant premium: %+v", payload.Entitlement)
	}
	if payload.Entitlement.SubscriptionType == nil || *payload.Entitlement.SubscriptionType != "yearly" {
		t.Fatalf("unexpected subscription type: %+v", payload.Entitlement.SubscriptionType)
	}

	rr = httptest.NewRecorder()
	handler.Confirm(rr, authedRequest(http.MethodPost, "/v1/purchases/confirm",
		strings.NewReader(`{"plan":"yearly","provider":"play_store","purchase_token":"tok","original_transaction_id":"tx-1"}`)))
	replay := decodeBody[dto.PurchaseConfirmResponse](t, rr)
	if !replay.Idempotent {
		t.Fatalf("replayed purchase must be idempotent")
	}
}

func TestPushTokenRegister(t *testing.T) {
	env := newTestEnv(t)
	repo := redrepo.NewPushTokenRepo(env.redis)
	handler := NewPushTokenHandler(repo)

	rr := httptest.NewRecorder()
	handler.Register(rr, authedRequest(http.MethodPost, "/v1/push-token", strings.NewReader(`{"token":"  "}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank token: got %d want %d", rr.Code, http.StatusBadRequest)
	}

	rr = httptest.NewRecorder()
	handler.Register(rr, authedRequest(http.MethodPost, "/v1/push-token", strings.NewReader(`{"token":"ExponentPushToken[abc]"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}

	token, found, err := repo.Get(context.Background(), testUserID)
	if err != nil || !found || token != "ExponentPushToken[abc]" {
		t.Fatalf("unexpected stored token: %q found=%v err=%v", token, found, err)
	}
}

func multipartPhoto(t *testing.T, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="photo"; filename="face.jpg"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("fake-jpeg-bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func newScanRouter(env *testEnv) chi.Router {
	service := scansvc.NewService(scansvc.Dependencies{Photos: fakePhotos{}, Analyzer: fakeAnalyzer{}}, nil)
	router := chi.NewRouter()
	router.Post("/v1/scans/{feature}", NewScanHandler(env.sessions, service, 1<<20).Scan)
	return router
}

func TestScanReturnsAnalysis(t *testing.T) {
	env := newTestEnv(t)
	router := newScanRouter(env)

	body, contentType := multipartPhoto(t, "image/jpeg")
	req := authedRequest(http.MethodPost, "/v1/scans/glow_analysis", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d (body=%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	payload := decodeBody[dto.ScanResponse](t, rr)
	if payload.AttemptID == "" || payload.Feature != string(enums.FeatureGlowAnalysis) {
		t.Fatalf("unexpected scan identity: %+v", payload)
	}
	if string(payload.Analysis) != `{"score":87}` {
		t.Fatalf("unexpected analysis: %s", payload.Analysis)
	}
	if !payload.TrialStarted || !payload.CanViewResults {
		t.Fatalf("first scan must start the trial and unlock results: %+v", payload)
	}
}

func TestScanRequiresPremiumWhenFreeScanUsed(t *testing.T) {
	env := newTestEnv(t)
	env.usage.records[enums.FeatureGlowAnalysis] = model.UsageRecord{
		UserID:        testUserID,
		FeatureType:   enums.FeatureGlowAnalysis,
		UsageCount:    1,
		LastResetDate: rules.DayKey(time.Now(), time.UTC),
	}
	router := newScanRouter(env)

	body, contentType := multipartPhoto(t, "image/jpeg")
	req := authedRequest(http.MethodPost, "/v1/scans/glow_analysis", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("unexpected status: got %d want %d (body=%s)", rr.Code, http.StatusPaymentRequired, rr.Body.String())
	}
	payload := decodeBody[dto.PremiumRequiredResponse](t, rr)
	if payload.Code != "PREMIUM_REQUIRED" {
		t.Fatalf("unexpected code: %q", payload.Code)
	}
	if env.usage.records[enums.FeatureGlowAnalysis].UsageCount != 1 {
		t.Fatalf("refused scan must not consume quota")
	}
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	Health(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response: %d %s", rr.Code, rr.Body.String())
	}
}
