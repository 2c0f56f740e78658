package stocksqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ndomog/stocksync/stocksync"
	"github.com/stretchr/testify/require"
)

// remoteOp is one call observed by fakeRemote
type remoteOp struct {
	Op    string // insert, update, select
	Table string
	ID    string
}

// fakeRemote is an in-memory RemoteStore with failure injection
type fakeRemote struct {
	mu      sync.Mutex
	records map[string]map[string]map[string]any // table -> id -> fields
	ops     []remoteOp

	// fail, when set, decides the error for insert/update calls
	fail      func(op remoteOp) error
	selectErr error
	// onCall runs before every insert/update, outside the lock
	onCall func(ctx context.Context, op remoteOp)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: map[string]map[string]map[string]any{}}
}

func (f *fakeRemote) Insert(ctx context.Context, table string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	id, _ := fields["id"].(string)
	op := remoteOp{Op: "insert", Table: table, ID: id}
	if err := f.before(ctx, op); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records[table] == nil {
		f.records[table] = map[string]map[string]any{}
	}
	if _, exists := f.records[table][id]; !exists {
		f.records[table][id] = fields
	}
	return nil
}

func (f *fakeRemote) UpdateByID(ctx context.Context, table, id string, patch any) error {
	op := remoteOp{Op: "update", Table: table, ID: id}
	if err := f.before(ctx, op); err != nil {
		return err
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[table][id]
	if !ok {
		return &RemoteError{StatusCode: http.StatusNotFound, Code: stocksync.CodeNotFound, Message: table + "/" + id}
	}
	for k, v := range fields {
		rec[k] = v
	}
	return nil
}

func (f *fakeRemote) SelectNonDeleted(_ context.Context, table string) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, remoteOp{Op: "select", Table: table})
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	ids := make([]string, 0, len(f.records[table]))
	for id, rec := range f.records[table] {
		if deleted, _ := rec["is_deleted"].(bool); !deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		raw, err := json.Marshal(f.records[table][id])
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (f *fakeRemote) before(ctx context.Context, op remoteOp) error {
	if f.onCall != nil {
		f.onCall(ctx, op)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	if f.fail != nil {
		return f.fail(op)
	}
	return nil
}

func (f *fakeRemote) setFail(fn func(op remoteOp) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

// writes returns the insert/update calls seen so far
func (f *fakeRemote) writes() []remoteOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []remoteOp
	for _, op := range f.ops {
		if op.Op != "select" {
			out = append(out, op)
		}
	}
	return out
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.ops {
		if o.Op == op {
			n++
		}
	}
	return n
}

func (f *fakeRemote) record(table, id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[table][id]
	return rec, ok
}

func failFor(op, id string) func(remoteOp) error {
	return func(o remoteOp) error {
		if o.Op == op && o.ID == id {
			return fmt.Errorf("boom on %s %s", op, id)
		}
		return nil
	}
}

// fakeClock ticks one second per reading
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "stock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.RemoteTimeout = 2 * time.Second
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Clock = newFakeClock().Now
	return cfg
}

func newTestClient(t *testing.T, remote RemoteStore, cfg *Config) *Client {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	c, err := NewClient(openTestDB(t), remote, StaticIdentity("user-1"), cfg)
	require.NoError(t, err)
	return c
}

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := OpenLocalStore(openTestDB(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store
}

func testItem(id, name string, qty int) stocksync.Item {
	return stocksync.Item{
		ID:                id,
		Name:              name,
		Category:          "TOOLS",
		BuyingPrice:       2.5,
		SellingPrice:      4,
		Quantity:          qty,
		LowStockThreshold: stocksync.DefaultLowStockThreshold,
	}
}

func pendingCount(t *testing.T, c *Client) int {
	t.Helper()
	n, err := c.PendingCount(context.Background())
	require.NoError(t, err)
	return n
}
