package supabasestore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionlock/clock"
	"github.com/creastat/sessionlock/sessionstate"
	"github.com/creastat/sessionlock/store"
	"github.com/creastat/sessionlock/store/storetest"
)

// fakeREST serves the subset of PostgREST the driver uses on one table:
// eq filters on key and generation with select, insert, update and delete.
type fakeREST struct {
	mu   sync.Mutex
	rows map[string]row
}

func (f *fakeREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/rest/v1/"+DefaultTable) {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	matches := func(rw row) bool {
		if v := q.Get("key"); v != "" && "eq."+rw.Key != v {
			return false
		}
		if v := q.Get("generation"); v != "" && "eq."+jsonNumber(rw.Generation) != v {
			return false
		}
		return true
	}

	var out []row
	switch r.Method {
	case http.MethodGet:
		for _, rw := range f.rows {
			if matches(rw) {
				out = append(out, rw)
			}
		}
	case http.MethodPost:
		var rw row
		if err := json.NewDecoder(r.Body).Decode(&rw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, ok := f.rows[rw.Key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint","details":null,"hint":null}`))
			return
		}
		f.rows[rw.Key] = rw
		out = append(out, rw)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(out)
		return
	case http.MethodPatch:
		var rw row
		if err := json.NewDecoder(r.Body).Decode(&rw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for k, existing := range f.rows {
			if matches(existing) {
				f.rows[k] = rw
				out = append(out, rw)
			}
		}
	case http.MethodDelete:
		for k, existing := range f.rows {
			if matches(existing) {
				delete(f.rows, k)
				out = append(out, existing)
			}
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if out == nil {
		out = []row{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func jsonNumber(n uint32) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeREST) {
	t.Helper()
	fake := &fakeREST{rows: map[string]row{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewStore(Config{URL: srv.URL, APIKey: "test-key"}, opts...)
	require.NoError(t, err)
	return s, fake
}

func TestConformance(t *testing.T) {
	storetest.RunData(t, func(t *testing.T) store.Client {
		s, _ := newTestStore(t)
		return s
	})
}

func TestNewStoreRequiresConfig(t *testing.T) {
	_, err := NewStore(Config{APIKey: "key"})
	assert.Error(t, err)
	_, err = NewStore(Config{URL: "http://localhost"})
	assert.Error(t, err)
}

func TestRowLayout(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestStore(t)
	k := store.Key{Namespace: "test", Set: "test", UserKey: "app_1"}

	require.NoError(t, s.Put(ctx, k, store.WritePolicy{}, store.Bins{
		sessionstate.BinLocked: true,
		sessionstate.BinLockID: int64(4),
		"Items":                map[string][]byte{"a": []byte(`"x"`)},
	}))

	fake.mu.Lock()
	rw, ok := fake.rows["test:test:app_1"]
	fake.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, uint32(1), rw.Generation)
	assert.Equal(t, int64(0), rw.ExpiresAt)
	assert.Equal(t, bin{Type: "bool", Bool: true}, rw.Bins[sessionstate.BinLocked])
	assert.Equal(t, bin{Type: "int", Int: 4}, rw.Bins[sessionstate.BinLockID])

	rec, err := s.Get(ctx, k)
	require.NoError(t, err)
	assert.True(t, rec.Bool(sessionstate.BinLocked))
	assert.Equal(t, int64(4), rec.Int64(sessionstate.BinLockID))
	assert.Equal(t, map[string][]byte{"a": []byte(`"x"`)}, rec.Map("Items"))
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s, _ := newTestStore(t, WithClock(clk))
	k := store.Key{Namespace: "test", Set: "test", UserKey: "ttl"}

	require.NoError(t, s.Put(ctx, k, store.WritePolicy{TTL: 10}, store.Bins{"a": 1}))
	clk.Advance(9 * time.Second)
	rec, err := s.Get(ctx, k)
	require.NoError(t, err)
	require.NotNil(t, rec)

	clk.Advance(2 * time.Second)
	rec, err = s.Get(ctx, k)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// the expired row is rewritten as a new record
	err = s.Put(ctx, k, store.WritePolicy{UpdateOnly: true}, store.Bins{"a": 2})
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, s.Put(ctx, k, store.WritePolicy{Replace: true, TTL: 10}, store.Bins{"b": 3}))
	rec, err = s.Get(ctx, k)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Has("a"))
	assert.Equal(t, 3, rec.Int("b"))
}

func TestModulesUnsupported(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	mod := sessionstate.Module()

	ok, err := s.HasModule(ctx, mod)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, s.RegisterModule(ctx, mod), ErrModulesUnsupported)

	_, err = s.Execute(ctx, store.Key{Namespace: "test", Set: "test", UserKey: "x"}, mod.Name, sessionstate.FuncRemoveItem, 1)
	assert.ErrorIs(t, err, store.ErrModuleNotFound)
}

func TestUnsupportedBinType(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Put(context.Background(), store.Key{Namespace: "test", Set: "test", UserKey: "bad"},
		store.WritePolicy{}, store.Bins{"f": 1.5})
	assert.Error(t, err)
}
