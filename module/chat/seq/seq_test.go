package seq

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"

	"chatparty/tools/errs"
)

// fakeScripter keeps the segment hash in memory and mirrors what the two
// lua scripts do, so the retry loop runs against real return shapes. The
// mutex stands in for redis's single-threaded script execution.
type fakeScripter struct {
	mu     sync.Mutex
	loaded bool
	curr   int64
	end    int64
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func (f *fakeScripter) eval(args []interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch len(args) {
	case 2: // in-segment: need, nowms
		if !f.loaded {
			return redis.NewCmdResult([]interface{}{int64(1)}, nil)
		}
		need := asInt64(args[0])
		start := f.curr + 1
		if f.curr+need > f.end {
			return redis.NewCmdResult([]interface{}{int64(3)}, nil)
		}
		f.curr += need
		return redis.NewCmdResult([]interface{}{int64(0), start}, nil)
	case 3: // set-segment: curr, end, nowms
		f.curr = asInt64(args[0])
		f.end = asInt64(args[1])
		f.loaded = true
		return redis.NewCmdResult(int64(1), nil)
	default:
		return redis.NewCmdResult(nil, errs.New("unexpected script args"))
	}
}

func (f *fakeScripter) Eval(_ context.Context, _ string, _ []string, args ...interface{}) *redis.Cmd {
	return f.eval(args)
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, _ []string, args ...interface{}) *redis.Cmd {
	return f.eval(args)
}

func (f *fakeScripter) EvalRO(_ context.Context, _ string, _ []string, args ...interface{}) *redis.Cmd {
	return f.eval(args)
}

func (f *fakeScripter) EvalShaRO(_ context.Context, _ string, _ []string, args ...interface{}) *redis.Cmd {
	return f.eval(args)
}

func (f *fakeScripter) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	out := make([]bool, len(hashes))
	for i := range out {
		out[i] = true
	}
	return redis.NewBoolSliceResult(out, nil)
}

func (f *fakeScripter) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

type fakeDAO struct {
	mu    sync.Mutex
	next  int64
	calls int
	err   error
}

func (d *fakeDAO) AllocSegment(_ context.Context, _ string, block int64) (int64, int64, error) {
	if d.err != nil {
		return 0, 0, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	start := d.next + 1
	d.next += block
	return start, d.next, nil
}

func newTestAllocator(dao *fakeDAO, block int64) *Allocator {
	return &Allocator{
		Rdb:         &fakeScripter{},
		DAO:         dao,
		BlockSizeFn: func(string, int64) int64 { return block },
		MaxRetry:    64, // refill races under the concurrent tests need headroom
	}
}

func TestNextStartsAtOne(t *testing.T) {
	a := newTestAllocator(&fakeDAO{}, 8)
	for want := int64(1); want <= 5; want++ {
		got, err := a.Next(context.Background(), "conv_1")
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != want {
			t.Fatalf("seq = %d, want %d", got, want)
		}
	}
}

func TestRefillKeepsSequenceGapless(t *testing.T) {
	dao := &fakeDAO{}
	a := newTestAllocator(dao, 3) // tiny segment, forces refills
	var prev int64
	for i := 0; i < 10; i++ {
		got, err := a.Next(context.Background(), "conv_1")
		if err != nil {
			t.Fatalf("next #%d: %v", i, err)
		}
		if got != prev+1 {
			t.Fatalf("seq jumped from %d to %d", prev, got)
		}
		prev = got
	}
	if dao.calls < 3 {
		t.Fatalf("expected multiple refills, got %d", dao.calls)
	}
}

func TestMallocReservesConsecutiveRange(t *testing.T) {
	a := newTestAllocator(&fakeDAO{}, 64)
	first, err := a.Malloc(context.Background(), "conv_1", 5)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	if first != 1 {
		t.Fatalf("first = %d", first)
	}
	next, err := a.Next(context.Background(), "conv_1")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next != 6 {
		t.Fatalf("next after Malloc(5) = %d, want 6", next)
	}
}

func TestConcurrentNextNeverCollides(t *testing.T) {
	const (
		goroutines = 8
		perG       = 50
	)
	a := newTestAllocator(&fakeDAO{}, 16) // small segments force refill races

	out := make(chan int64, goroutines*perG)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				n, err := a.Next(context.Background(), "conv_1")
				if err != nil {
					t.Errorf("next: %v", err)
					return
				}
				out <- n
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[int64]struct{}, goroutines*perG)
	for n := range out {
		if _, dup := seen[n]; dup {
			t.Fatalf("seq %d issued twice", n)
		}
		seen[n] = struct{}{}
	}
	if len(seen) != goroutines*perG {
		t.Fatalf("issued %d seqs, want %d", len(seen), goroutines*perG)
	}
}

func TestDAOFailureSurfaces(t *testing.T) {
	dao := &fakeDAO{err: errs.New("mongo down")}
	a := newTestAllocator(dao, 8)
	if _, err := a.Next(context.Background(), "conv_1"); err == nil {
		t.Fatalf("refill failure must surface to the caller")
	}
}
