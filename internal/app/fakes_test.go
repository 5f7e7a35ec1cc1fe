package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Qompa-Fi/banking-service/internal/domain"
	"github.com/Qompa-Fi/banking-service/internal/store"
	"github.com/Qompa-Fi/banking-service/pkg/prometeoclient"
	"github.com/Qompa-Fi/banking-service/pkg/security"
)

const (
	testUserID = int64(101)
	validKey   = "0123456789abcdef0123456789abcdef"
	rotatedKey = "fedcba9876543210fedcba9876543210"
)

// fakeAPI is a scripted upstream. Unset funcs fail the test when called.
type fakeAPI struct {
	t  *testing.T
	mu sync.Mutex

	loginFn         func(req prometeoclient.LoginRequest) (*prometeoclient.LoginResponse, error)
	getClientsFn    func(key string) ([]domain.Client, error)
	selectClientFn  func(key, client string) (string, error)
	logoutFn        func(key string) (bool, error)
	listAccountsFn  func(key string) ([]domain.Account, error)
	listMovementsFn func(key string, q domain.MovementsQuery) ([]domain.Movement, error)
	institutionsFn  func(key string) ([]domain.Institution, error)
	preprocessFn    func(key string, in domain.PreprocessTransferInput) (*domain.TransferRequest, error)
	confirmFn       func(key string, in domain.ConfirmTransferInput) (*domain.TransferResult, error)
	listProvidersFn func() ([]domain.ProviderSummary, error)
	getProviderFn   func(code string) (*domain.Provider, error)

	calls map[string]int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{t: t, calls: map[string]int{}}
}

func (f *fakeAPI) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) unexpected(op string) {
	f.t.Helper()
	f.t.Errorf("unexpected upstream call: %s", op)
}

func (f *fakeAPI) Login(ctx context.Context, req prometeoclient.LoginRequest) (*prometeoclient.LoginResponse, error) {
	f.record("login")
	if f.loginFn == nil {
		f.unexpected("login")
		return nil, ErrSomethingWentWrong
	}
	return f.loginFn(req)
}

func (f *fakeAPI) GetClients(ctx context.Context, key string) ([]domain.Client, error) {
	f.record("get_clients")
	if f.getClientsFn == nil {
		f.unexpected("get_clients")
		return nil, ErrSomethingWentWrong
	}
	return f.getClientsFn(key)
}

func (f *fakeAPI) SelectClient(ctx context.Context, key, client string) (string, error) {
	f.record("select_client")
	if f.selectClientFn == nil {
		f.unexpected("select_client")
		return "", ErrSomethingWentWrong
	}
	return f.selectClientFn(key, client)
}

func (f *fakeAPI) Logout(ctx context.Context, key string) (bool, error) {
	f.record("logout")
	if f.logoutFn == nil {
		f.unexpected("logout")
		return false, ErrSomethingWentWrong
	}
	return f.logoutFn(key)
}

func (f *fakeAPI) ListAccounts(ctx context.Context, key string) ([]domain.Account, error) {
	f.record("list_accounts")
	if f.listAccountsFn == nil {
		f.unexpected("list_accounts")
		return nil, ErrSomethingWentWrong
	}
	return f.listAccountsFn(key)
}

func (f *fakeAPI) ListMovements(ctx context.Context, key string, q domain.MovementsQuery) ([]domain.Movement, error) {
	f.record("list_movements")
	if f.listMovementsFn == nil {
		f.unexpected("list_movements")
		return nil, ErrSomethingWentWrong
	}
	return f.listMovementsFn(key, q)
}

func (f *fakeAPI) ListInstitutions(ctx context.Context, key string) ([]domain.Institution, error) {
	f.record("list_institutions")
	if f.institutionsFn == nil {
		f.unexpected("list_institutions")
		return nil, ErrSomethingWentWrong
	}
	return f.institutionsFn(key)
}

func (f *fakeAPI) PreprocessTransfer(ctx context.Context, key string, in domain.PreprocessTransferInput) (*domain.TransferRequest, error) {
	f.record("preprocess_transfer")
	if f.preprocessFn == nil {
		f.unexpected("preprocess_transfer")
		return nil, ErrSomethingWentWrong
	}
	return f.preprocessFn(key, in)
}

func (f *fakeAPI) ConfirmTransfer(ctx context.Context, key string, in domain.ConfirmTransferInput) (*domain.TransferResult, error) {
	f.record("confirm_transfer")
	if f.confirmFn == nil {
		f.unexpected("confirm_transfer")
		return nil, ErrSomethingWentWrong
	}
	return f.confirmFn(key, in)
}

func (f *fakeAPI) ListProviders(ctx context.Context) ([]domain.ProviderSummary, error) {
	f.record("list_providers")
	if f.listProvidersFn == nil {
		f.unexpected("list_providers")
		return nil, ErrSomethingWentWrong
	}
	return f.listProvidersFn()
}

func (f *fakeAPI) GetProvider(ctx context.Context, code string) (*domain.Provider, error) {
	f.record("get_provider")
	if f.getProviderFn == nil {
		f.unexpected("get_provider")
		return nil, ErrSomethingWentWrong
	}
	return f.getProviderFn(code)
}

type sessionEntry struct {
	key string
	ttl time.Duration
}

// memorySessions is a SessionCache kept in a map.
type memorySessions struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
	deletes int
}

func newMemorySessions() *memorySessions {
	return &memorySessions{entries: map[string]sessionEntry{}}
}

func (m *memorySessions) Get(ctx context.Context, userID int64, directoryID uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[store.SessionCacheKey(userID, directoryID)]
	return e.key, ok
}

func (m *memorySessions) Put(ctx context.Context, userID int64, directoryID uuid.UUID, key string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[store.SessionCacheKey(userID, directoryID)] = sessionEntry{key: key, ttl: ttl}
}

func (m *memorySessions) Delete(ctx context.Context, userID int64, directoryID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.entries, store.SessionCacheKey(userID, directoryID))
}

func (m *memorySessions) entry(userID int64, directoryID uuid.UUID) (sessionEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[store.SessionCacheKey(userID, directoryID)]
	return e, ok
}

type stubUsers struct {
	exists bool
	err    error
	calls  int
}

func (s *stubUsers) ExistsByID(ctx context.Context, userID int64) (bool, error) {
	s.calls++
	return s.exists, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.DirectoryEvent
	err    error
}

func (p *recordingPublisher) PublishDirectoryEvent(ctx context.Context, event domain.DirectoryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type testEnv struct {
	service   *BankingService
	api       *fakeAPI
	repo      *store.InMemoryDirectoryRepository
	sessions  *memorySessions
	users     *stubUsers
	events    *recordingPublisher
	providers *store.InMemoryProviderCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cipher, err := security.NewCipher("credentials-secret", security.PurposeCredentials)
	require.NoError(t, err)

	env := &testEnv{
		api:       newFakeAPI(t),
		repo:      store.NewInMemoryDirectoryRepository(),
		sessions:  newMemorySessions(),
		users:     &stubUsers{exists: true},
		events:    &recordingPublisher{},
		providers: store.NewInMemoryProviderCache(),
	}
	catalog := NewProviderCatalog(env.api, env.providers, CatalogOptions{Country: "PE", CodeFilters: []string{"corp"}, TTL: time.Hour}, zerolog.Nop())
	catalog.sleep = func(context.Context, time.Duration) error { return nil }
	env.service = NewBankingService(Dependencies{
		Directories: env.repo,
		Sessions:    env.sessions,
		API:         env.api,
		Users:       env.users,
		Providers:   catalog,
		Events:      env.events,
		Credentials: cipher,
		SessionTTL:  600 * time.Second,
		Logger:      zerolog.Nop(),
	})
	return env
}

// createSandboxDirectory stores a directory for the upstream test provider.
func (e *testEnv) createSandboxDirectory(t *testing.T, userID int64) *domain.Directory {
	t.Helper()
	d, err := e.service.SetupDirectory(context.Background(), userID, domain.SetupDirectoryInput{
		ProviderName: domain.SandboxProvider,
		Credentials:  domain.Credentials{Username: "12345678", Password: "gfdsa"},
	})
	require.NoError(t, err)
	return d
}

func loggedIn(key string) func(prometeoclient.LoginRequest) (*prometeoclient.LoginResponse, error) {
	return func(prometeoclient.LoginRequest) (*prometeoclient.LoginResponse, error) {
		return &prometeoclient.LoginResponse{Status: prometeoclient.StatusLoggedIn, Key: key}, nil
	}
}

func strPtr(s string) *string { return &s }
