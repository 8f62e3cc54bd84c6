package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/contacthub/contacthub/internal/auth"
	"github.com/contacthub/contacthub/internal/domain"
	"github.com/contacthub/contacthub/internal/event"
	"github.com/contacthub/contacthub/internal/service"
	storagememory "github.com/contacthub/contacthub/internal/storage/memory"
	apperrors "github.com/contacthub/contacthub/pkg/errors"
	"github.com/contacthub/contacthub/pkg/health"
	pkgkafka "github.com/contacthub/contacthub/pkg/kafka"
	"github.com/contacthub/contacthub/pkg/ratelimit"
)

// --- In-memory fakes ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User // keyed by email
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.Email]; ok {
		return apperrors.AlreadyExists("user", "email", user.Email)
	}
	copied := *user
	f.users[user.Email] = &copied
	return nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) SetConfirmed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			u.Confirmed = true
			return nil
		}
	}
	return apperrors.NotFound("user", id)
}

func (f *fakeUserRepo) UpdateAvatar(_ context.Context, id, avatarURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			u.AvatarURL = avatarURL
			return nil
		}
	}
	return apperrors.NotFound("user", id)
}

func (f *fakeUserRepo) SetRefreshToken(_ context.Context, id string, token *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			u.RefreshToken = token
			return nil
		}
	}
	return apperrors.NotFound("user", id)
}

func (f *fakeUserRepo) RotateRefreshToken(_ context.Context, id, current, next string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			if u.RefreshToken == nil || *u.RefreshToken != current {
				return false, nil
			}
			u.RefreshToken = &next
			return true, nil
		}
	}
	return false, nil
}

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts map[string]*domain.Contact
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[string]*domain.Contact)}
}

func (f *fakeContactRepo) Create(_ context.Context, contact *domain.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contacts {
		if c.OwnerID == contact.OwnerID && (c.Email == contact.Email || c.Phone == contact.Phone) {
			return apperrors.AlreadyExists("contact", "email or phone", contact.Email)
		}
	}
	copied := *contact
	f.contacts[contact.ID] = &copied
	return nil
}

func (f *fakeContactRepo) GetByID(_ context.Context, ownerID, id string) (*domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[id]
	if !ok || c.OwnerID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeContactRepo) ListByOwner(_ context.Context, ownerID string, _, _ int) ([]*domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.Contact{}
	for _, c := range f.contacts {
		if c.OwnerID == ownerID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeContactRepo) Update(_ context.Context, contact *domain.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[contact.ID]
	if !ok || c.OwnerID != contact.OwnerID {
		return apperrors.NotFound("contact", contact.ID)
	}
	copied := *contact
	f.contacts[contact.ID] = &copied
	return nil
}

func (f *fakeContactRepo) Delete(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[id]
	if !ok || c.OwnerID != ownerID {
		return apperrors.NotFound("contact", id)
	}
	delete(f.contacts, id)
	return nil
}

func (f *fakeContactRepo) Search(_ context.Context, ownerID, keyword string) ([]*domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := strings.ToLower(keyword)
	out := []*domain.Contact{}
	for _, c := range f.contacts {
		if c.OwnerID != ownerID {
			continue
		}
		if strings.Contains(strings.ToLower(c.FirstName), needle) ||
			strings.Contains(strings.ToLower(c.LastName), needle) ||
			strings.Contains(strings.ToLower(c.Email), needle) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeContactRepo) ListWithBirthdays(_ context.Context, ownerID string) ([]*domain.Contact, error) {
	return f.ListByOwner(context.Background(), ownerID, 0, 0)
}

type fakeCache struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeCache() *fakeCache {
	return &fakeCache{users: make(map[string]*domain.User)}
}

func (c *fakeCache) Get(_ context.Context, email string) (*domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[email], nil
}

func (c *fakeCache) Set(_ context.Context, user *domain.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[user.Email] = user
	return nil
}

func (c *fakeCache) Delete(_ context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, email)
	return nil
}

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

// --- Fixture ---

type fixture struct {
	router   http.Handler
	tokens   *auth.TokenService
	userRepo *fakeUserRepo
	pinger   *fakePinger
	store    *ratelimit.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	tokens := auth.NewTokenService("test-secret-key-for-handler-tests", "HS256", 15*time.Minute, 7*24*time.Hour, 24*time.Hour)

	userRepo := newFakeUserRepo()
	contactRepo := newFakeContactRepo()
	cache := newFakeCache()

	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	producer := event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)

	authService := service.NewAuthService(userRepo, tokens, cache, producer, logger)
	userService := service.NewUserService(userRepo, storagememory.New("https://cdn.example.com"), cache, logger)
	contactService := service.NewContactService(contactRepo, logger)

	gate := auth.NewGate(tokens, userRepo, cache, logger)

	// Generous limits so routing tests don't trip the limiter; the rate-limit
	// test builds its own tight limiter.
	store := ratelimit.NewMemoryStore()
	limiters := Limiters{
		Read:  ratelimit.New(store, "contacts-read", 1000, time.Minute),
		Write: ratelimit.New(store, "contacts-write", 1000, time.Minute),
		Query: ratelimit.New(store, "contacts-query", 1000, time.Minute),
	}

	pinger := &fakePinger{}

	router := NewRouter(
		authService, userService, contactService,
		gate, limiters, pinger,
		health.NewHandler(), logger,
		CORSConfig{Environment: "development"},
	)

	return &fixture{
		router:   router,
		tokens:   tokens,
		userRepo: userRepo,
		pinger:   pinger,
		store:    store,
	}
}

// seedUser creates a confirmed user directly in the repo and returns an
// access token for it.
func (f *fixture) seedUser(t *testing.T, email string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("SecurePass123"), 4)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, f.userRepo.Create(context.Background(), &domain.User{
		ID:           "u-" + email,
		Username:     strings.Split(email, "@")[0],
		Email:        email,
		PasswordHash: string(hash),
		Confirmed:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	token, err := f.tokens.Issue(auth.PurposeAccess, email)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

// --- Auth flow ---

func TestSignupLoginRefreshFlow(t *testing.T) {
	f := newFixture(t)

	// Signup.
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", jsonBody(t, map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "SecurePass123",
	}))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "SecurePass123")
	assert.NotContains(t, rec.Body.String(), "password_hash")

	// Login before confirmation is rejected.
	form := url.Values{"username": {"alice@example.com"}, "password": {"SecurePass123"}}
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = f.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())

	// Confirm via token.
	confToken, err := f.tokens.Issue(auth.PurposeConfirmation, "alice@example.com")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/auth/confirmed_email/"+confToken, nil)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Email confirmed")

	// Confirming again is idempotent.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/confirmed_email/"+confToken, nil)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already confirmed")

	// Login now succeeds.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var loginResp struct {
		Data domain.TokenPair `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))
	assert.Equal(t, "bearer", loginResp.Data.TokenType)
	require.NotEmpty(t, loginResp.Data.RefreshToken)

	// Refresh rotates the pair.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh_token", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Data.RefreshToken)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var refreshResp struct {
		Data domain.TokenPair `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshResp))
	assert.NotEqual(t, loginResp.Data.RefreshToken, refreshResp.Data.RefreshToken)

	// The old refresh token is single-use.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh_token", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Data.RefreshToken)
	rec = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignup_DuplicateEmailConflict(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice@example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", jsonBody(t, map[string]string{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": "SecurePass123",
	}))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestSignup_ValidationError(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", jsonBody(t, map[string]string{
		"username": "al",
		"email":    "not-an-email",
		"password": "short",
	}))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestRefresh_MissingHeader(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh_token", nil)
	rec := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- Contacts ---

func createContact(t *testing.T, f *fixture, token string, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/contacts/", jsonBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return f.do(req)
}

func sampleContactBody() map[string]string {
	return map[string]string{
		"first_name": "Bob",
		"last_name":  "Jones",
		"email":      "bob@example.com",
		"phone":      "+380501234567",
		"birthday":   "1990-03-14",
		"note":       "met at conference",
	}
}

func TestContacts_RequireAuth(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/contacts/", nil)
	rec := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestContacts_CRUD(t *testing.T) {
	f := newFixture(t)
	token := f.seedUser(t, "alice@example.com")

	// Create.
	rec := createContact(t, f, token, sampleContactBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data domain.Contact `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)
	assert.Equal(t, "1990-03-14", created.Data.Birthday.Format("2006-01-02"))

	// Duplicate email conflicts.
	rec = createContact(t, f, token, sampleContactBody())
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Get.
	req := httptest.NewRequest(http.MethodGet, "/api/contacts/"+created.Data.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Update.
	body := sampleContactBody()
	body["first_name"] = "Robert"
	req = httptest.NewRequest(http.MethodPut, "/api/contacts/"+created.Data.ID, jsonBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Robert")

	// Search.
	req = httptest.NewRequest(http.MethodGet, "/api/contacts/search/keyword=robert", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Robert")

	// Search with no matches is a 404, not an empty list.
	req = httptest.NewRequest(http.MethodGet, "/api/contacts/search/keyword=zzz", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Delete, then get returns 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/contacts/"+created.Data.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/contacts/"+created.Data.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContacts_OwnerScoped(t *testing.T) {
	f := newFixture(t)
	aliceToken := f.seedUser(t, "alice@example.com")
	bobToken := f.seedUser(t, "bob@example.com")

	rec := createContact(t, f, aliceToken, sampleContactBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data domain.Contact `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Bob cannot see Alice's contact.
	req := httptest.NewRequest(http.MethodGet, "/api/contacts/"+created.Data.ID, nil)
	req.Header.Set("Authorization", "Bearer "+bobToken)
	rec = f.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContacts_UpcomingBirthdays(t *testing.T) {
	f := newFixture(t)
	token := f.seedUser(t, "alice@example.com")

	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	body := sampleContactBody()
	body["birthday"] = fmt.Sprintf("1990-%02d-%02d", tomorrow.Month(), tomorrow.Day())
	rec := createContact(t, f, token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/contacts/birthdays/7", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bob@example.com")
}

// --- Rate limiting ---

func TestRateLimit_ReadWindow(t *testing.T) {
	f := newFixture(t)
	token := f.seedUser(t, "alice@example.com")

	// A dedicated router with the real 2/2s read policy.
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	gate := auth.NewGate(f.tokens, f.userRepo, newFakeCache(), logger)

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), "contacts-read", 2, 2*time.Second)
	handler := Authenticate(gate, logger)(RateLimit(limiter, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/contacts/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	// Third request inside the window is rejected.
	req := httptest.NewRequest(http.MethodGet, "/api/contacts/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

// --- Users ---

func TestUsersMe(t *testing.T) {
	f := newFixture(t)
	token := f.seedUser(t, "alice@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/users/me/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice@example.com")
	assert.NotContains(t, rec.Body.String(), "password_hash")
}

func TestUploadAvatar(t *testing.T) {
	f := newFixture(t)
	token := f.seedUser(t, "alice@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="avatar.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-image-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPatch, "/api/users/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "avatars/")

	// The URL survives a fresh profile read.
	req = httptest.NewRequest(http.MethodGet, "/api/users/me/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "avatars/")
}

// --- Healthchecker ---

func TestHealthchecker(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/healthchecker", nil)
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.pinger.err = errors.New("dial tcp 127.0.0.1:5432: connection refused")
	rec = f.do(req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error connecting to the database")
	// No driver detail leaks.
	assert.NotContains(t, rec.Body.String(), "dial tcp")
}
