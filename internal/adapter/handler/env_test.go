package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/library-circulation/internal/adapter/storage"
	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/core/service"
)

const (
	librarianEmail    = "desk@example.org"
	librarianPassword = "correct horse"
)

type memoryCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryCache) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type testEnv struct {
	store       *storage.SQLStore
	circulation *service.CirculationService
	catalog     *service.CatalogService
	members     *service.MemberService
	auth        *service.AuthService
	http        *HTTPHandler
	routes      http.Handler
	token       string
	librarianID int64
	log         *zap.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLogger(t, zaptest.NewLogger(t))
}

func newTestEnvWithLogger(t *testing.T, log *zap.Logger) *testEnv {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate",
		filepath.Join(t.TempDir(), "library.db"))
	store, err := storage.OpenSQLStore(ctx, storage.DriverSQLite, dsn, storage.PoolConfig{MaxOpenConns: 8}, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	env := &testEnv{
		store:       store,
		circulation: service.NewCirculationService(store, log, service.WithIdempotencyCache(&memoryCache{keys: map[string]bool{}})),
		catalog:     service.NewCatalogService(store, log),
		members:     service.NewMemberService(store, log),
		auth:        service.NewAuthService(store, storage.NewMemorySessionStore(), time.Hour, log),
		log:         log,
	}
	env.http = NewHTTPHandler(env.circulation, env.catalog, env.members, env.auth, log, WithReadiness(store))
	env.routes = env.http.Routes()

	env.librarianID, err = env.auth.RegisterLibrarian(ctx, librarianEmail, "Front Desk", librarianPassword)
	require.NoError(t, err)
	session, err := env.auth.Login(ctx, librarianEmail, librarianPassword)
	require.NoError(t, err)
	env.token = session.Token

	return env
}

func (e *testEnv) seedBook(t *testing.T, copies int) domain.Book {
	t.Helper()
	book, err := e.catalog.AddBook(context.Background(), service.NewBook{Title: "The Left Hand of Darkness", Author: "Le Guin", CopiesTotal: copies})
	require.NoError(t, err)
	return book
}

func (e *testEnv) seedMember(t *testing.T) domain.Member {
	t.Helper()
	member, err := e.members.Register(context.Background(), domain.Member{FullName: "Shevek"})
	require.NoError(t, err)
	return member
}

// request serves one call with the session cookie set.
func (e *testEnv) request(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := newRequest(t, method, path, body, headers...)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: e.token})
	rec := httptest.NewRecorder()
	e.routes.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) anonymous(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.routes.ServeHTTP(rec, newRequest(t, method, path, body))
	return rec
}

func newRequest(t *testing.T, method, path string, body any, headers ...string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorResponse](t, rec).Error
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.routes.ServeHTTP(rec, req)
	return rec
}
