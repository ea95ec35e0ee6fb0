package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
)

// fakeFetcher answers with a fixed descriptor per model and counts calls.
type fakeFetcher struct {
	mu    sync.Mutex
	perms map[string]Permissions
	err   error
	calls atomic.Int64
	block chan struct{} // optional: hold fetches open
}

func (f *fakeFetcher) FetchPermissions(_ context.Context, model string) (Permissions, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return Permissions{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms[model], nil
}

func newDelegatedEngine(t *testing.T, fetcher Fetcher, cfg Config) *Engine {
	t.Helper()
	cfg.Mode = ModeDelegated
	e, err := NewEngine(cfg, fetcher)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngine_DelegatedRequiresFetcher(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(Config{Mode: ModeDelegated}, nil); err == nil {
		t.Error("NewEngine succeeded without fetcher")
	}
	if _, err := NewEngine(Config{Mode: "yolo"}, nil); err == nil {
		t.Error("NewEngine accepted unknown mode")
	}
	if _, err := NewEngine(Config{Mode: ModeBypass}, nil); err != nil {
		t.Errorf("NewEngine bypass: %v", err)
	}
}

func TestEngine_BypassAllowsEverything(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(Config{Mode: ModeBypass}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	for _, op := range []Operation{OpRead, OpWrite, OpCreate, OpUnlink} {
		if err := e.Check(t.Context(), "res.partner", op); err != nil {
			t.Errorf("Check(%s) = %v, want nil", op, err)
		}
	}
}

func TestEngine_ReadBypassDeniesMutations(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(Config{Mode: ModeReadBypass}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if err := e.Check(t.Context(), "res.partner", OpRead); err != nil {
		t.Errorf("Check(read) = %v, want nil", err)
	}
	for _, op := range []Operation{OpWrite, OpCreate, OpUnlink} {
		err := e.Check(t.Context(), "res.partner", op)
		if !errors.Is(err, odoo.ErrAccessDenied) {
			t.Errorf("Check(%s) = %v, want ErrAccessDenied", op, err)
		}
	}
}

func TestEngine_NativeDefersToBackend(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(Config{Mode: ModeNative}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Check(t.Context(), "res.partner", OpUnlink); err != nil {
		t.Errorf("Check = %v, want nil (backend decides)", err)
	}
}

func TestEngine_DelegatedCachesVerdict(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{perms: map[string]Permissions{
		"res.partner": {Read: true, Write: true},
	}}
	e := newDelegatedEngine(t, fetcher, Config{})

	for range 5 {
		if err := e.Check(t.Context(), "res.partner", OpRead); err != nil {
			t.Fatalf("Check: %v", err)
		}
	}
	if err := e.Check(t.Context(), "res.partner", OpUnlink); !errors.Is(err, odoo.ErrAccessDenied) {
		t.Errorf("Check(unlink) = %v, want ErrAccessDenied", err)
	}

	if fetcher.calls.Load() != 1 {
		t.Errorf("fetcher calls = %d, want 1", fetcher.calls.Load())
	}
}

func TestEngine_TTLExpiryRefetches(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{perms: map[string]Permissions{
		"res.partner": {Read: true},
	}}
	e := newDelegatedEngine(t, fetcher, Config{TTL: 300 * time.Second})

	clock := time.Unix(1000, 0)
	e.now = func() time.Time { return clock }

	if err := e.Check(t.Context(), "res.partner", OpRead); err != nil {
		t.Fatalf("Check: %v", err)
	}

	// One second before expiry: still cached.
	clock = clock.Add(299 * time.Second)
	if err := e.Check(t.Context(), "res.partner", OpRead); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("fetcher calls = %d, want 1 before expiry", fetcher.calls.Load())
	}

	// At the TTL boundary the entry is stale.
	clock = clock.Add(1 * time.Second)
	if err := e.Check(t.Context(), "res.partner", OpRead); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("fetcher calls = %d, want 2 after expiry", fetcher.calls.Load())
	}
}

func TestEngine_DenyVerdictUsesDenyTTL(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{perms: map[string]Permissions{}}
	e := newDelegatedEngine(t, fetcher, Config{TTL: 300 * time.Second, DenyTTL: 30 * time.Second})

	clock := time.Unix(1000, 0)
	e.now = func() time.Time { return clock }

	if err := e.Check(t.Context(), "res.secret", OpRead); !errors.Is(err, odoo.ErrAccessDenied) {
		t.Fatalf("Check = %v, want ErrAccessDenied", err)
	}

	// Within the deny TTL the verdict is served from cache.
	clock = clock.Add(29 * time.Second)
	if err := e.Check(t.Context(), "res.secret", OpRead); !errors.Is(err, odoo.ErrAccessDenied) {
		t.Fatalf("Check = %v, want ErrAccessDenied", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("fetcher calls = %d, want 1", fetcher.calls.Load())
	}

	// Permission granted behind our back; the shorter deny TTL picks
	// it up well before the allow TTL would.
	fetcher.mu.Lock()
	fetcher.perms["res.secret"] = Permissions{Read: true}
	fetcher.mu.Unlock()

	clock = clock.Add(2 * time.Second)
	if err := e.Check(t.Context(), "res.secret", OpRead); err != nil {
		t.Errorf("Check after grant = %v, want nil", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("fetcher calls = %d, want 2", fetcher.calls.Load())
	}
}

func TestEngine_PartialDenyUsesDenyTTL(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{perms: map[string]Permissions{
		"res.partner": {Read: true},
	}}
	e := newDelegatedEngine(t, fetcher, Config{TTL: 300 * time.Second, DenyTTL: 30 * time.Second})

	clock := time.Unix(1000, 0)
	e.now = func() time.Time { return clock }

	if err := e.Check(t.Context(), "res.partner", OpWrite); !errors.Is(err, odoo.ErrAccessDenied) {
		t.Fatalf("Check = %v, want ErrAccessDenied", err)
	}

	// Write access granted behind our back. The descriptor still allows
	// reads, but any denied operation puts it on the shorter deny TTL.
	fetcher.mu.Lock()
	fetcher.perms["res.partner"] = Permissions{Read: true, Write: true}
	fetcher.mu.Unlock()

	clock = clock.Add(31 * time.Second)
	if err := e.Check(t.Context(), "res.partner", OpWrite); err != nil {
		t.Errorf("Check after grant = %v, want nil", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("fetcher calls = %d, want 2", fetcher.calls.Load())
	}
}

func TestEngine_FetchFailureIsNotCached(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: fmt.Errorf("probe: %w", odoo.ErrUnavailable)}
	e := newDelegatedEngine(t, fetcher, Config{})

	if err := e.Check(t.Context(), "res.partner", OpRead); !errors.Is(err, odoo.ErrUnavailable) {
		t.Fatalf("Check = %v, want ErrUnavailable", err)
	}

	fetcher.err = nil
	fetcher.perms = map[string]Permissions{"res.partner": {Read: true}}
	if err := e.Check(t.Context(), "res.partner", OpRead); err != nil {
		t.Errorf("Check after recovery = %v, want nil", err)
	}
}

func TestEngine_ConcurrentChecksSingleFetch(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		perms: map[string]Permissions{"res.partner": {Read: true}},
		block: make(chan struct{}),
	}
	e := newDelegatedEngine(t, fetcher, Config{})

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.Check(t.Context(), "res.partner", OpRead)
		}()
	}

	// Give the goroutines time to pile up on the flight, then release.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("check %d: %v", i, err)
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetcher calls = %d, want 1", got)
	}
}

func TestEngine_InvalidateForcesRefetch(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{perms: map[string]Permissions{"res.partner": {Read: true}}}
	e := newDelegatedEngine(t, fetcher, Config{})

	if err := e.Check(t.Context(), "res.partner", OpRead); err != nil {
		t.Fatalf("Check: %v", err)
	}
	e.Invalidate("res.partner")
	if err := e.Check(t.Context(), "res.partner", OpRead); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("fetcher calls = %d, want 2", fetcher.calls.Load())
	}
}

func TestPermissions_Allows(t *testing.T) {
	t.Parallel()

	p := Permissions{Read: true, Create: true}
	if !p.Allows(OpRead) || !p.Allows(OpCreate) {
		t.Error("granted operations denied")
	}
	if p.Allows(OpWrite) || p.Allows(OpUnlink) {
		t.Error("ungranted operations allowed")
	}
}

func TestEngine_PermissionsPerMode(t *testing.T) {
	t.Parallel()

	bypass, _ := NewEngine(Config{Mode: ModeBypass}, nil)
	if p, _ := bypass.Permissions(t.Context(), "res.partner"); p != allowAll {
		t.Errorf("bypass permissions = %+v", p)
	}

	readOnly, _ := NewEngine(Config{Mode: ModeReadBypass}, nil)
	if p, _ := readOnly.Permissions(t.Context(), "res.partner"); p != (Permissions{Read: true}) {
		t.Errorf("read_bypass permissions = %+v", p)
	}

	native, _ := NewEngine(Config{Mode: ModeNative}, nil)
	if p, _ := native.Permissions(t.Context(), "res.partner"); p != allowAll {
		t.Errorf("native permissions = %+v", p)
	}
}
