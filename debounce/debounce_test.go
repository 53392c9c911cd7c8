package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	testingclock "k8s.io/utils/clock/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) fn(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestDebouncer_BurstCollapsesIntoLastCall(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	d := New(300*time.Millisecond, rec.fn, WithClock(fc))
	defer d.Stop()

	for _, q := range []string{"r", "re", "rep", "repo", "repor"} {
		d.Call(q)
		fc.Step(20 * time.Millisecond)
	}
	assert.True(t, d.Pending())

	// a última chamada foi há 20ms: faltam 280ms.
	fc.Step(279 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, rec.get())

	fc.Step(time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"repor"}, rec.get())
	assert.False(t, d.Pending())

	fc.Step(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, rec.get(), 1, "fn runs exactly once")
}

func TestDebouncer_SeparateWindowsFireSeparately(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	d := New(100*time.Millisecond, rec.fn, WithClock(fc))
	defer d.Stop()

	d.Call("a")
	fc.Step(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, time.Millisecond)

	d.Call("b")
	fc.Step(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.get()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, rec.get())
}

func TestDebouncer_FlushRunsPendingNow(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	d := New(time.Minute, rec.fn, WithClock(fc))
	defer d.Stop()

	d.Flush()
	assert.Empty(t, rec.get())

	d.Call("x")
	d.Flush()
	assert.Equal(t, []string{"x"}, rec.get())
	assert.False(t, fc.HasWaiters())
}

func TestDebouncer_StopDiscardsPendingAndFutureCalls(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	rec := &recorder{}
	d := New(time.Second, rec.fn, WithClock(fc))

	d.Call("x")
	d.Stop()
	d.Call("y")
	fc.Step(time.Hour)
	time.Sleep(10 * time.Millisecond)

	assert.Empty(t, rec.get())
	assert.False(t, d.Pending())
}

func TestFunc_RealClock(t *testing.T) {
	var mu sync.Mutex
	var got []int
	var once sync.Once
	done := make(chan struct{})

	d := New(30*time.Millisecond, func(n int) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		once.Do(func() { close(done) })
	})
	defer d.Stop()

	call := d.Call
	for i := 1; i <= 5; i++ {
		call(i)
		time.Sleep(2 * time.Millisecond)
	}
	start := time.Now()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced fn never ran")
	}
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{5}, got)
}

func TestFunc_ReturnsWrapper(t *testing.T) {
	ch := make(chan string, 1)
	f := Func(time.Millisecond, func(s string) { ch <- s })
	f("only")

	select {
	case s := <-ch:
		assert.Equal(t, "only", s)
	case <-time.After(time.Second):
		t.Fatalf("wrapped fn never ran")
	}
}
