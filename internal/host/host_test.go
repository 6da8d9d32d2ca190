package host

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/weftlabs/weft/internal/kv/memkv"
	"github.com/weftlabs/weft/internal/linker"
	"github.com/weftlabs/weft/internal/parser"
	"github.com/weftlabs/weft/internal/registry"
	"github.com/weftlabs/weft/internal/script"
)

func newTestHost(t *testing.T, maxDepth int) (*Host, *registry.Manager) {
	t.Helper()
	reg := registry.NewManager(memkv.New(), "", nil)
	return New(reg, maxDepth, nil), reg
}

// extractAll parses raw sources into script units ready for linking.
func extractAll(t *testing.T, sources map[string]string) []*script.Script {
	t.Helper()
	var scripts []*script.Script
	for name, src := range sources {
		ex, err := parser.Extract(name, src)
		if err != nil {
			t.Fatalf("Extract(%s): %v", name, err)
		}
		scripts = append(scripts, &script.Script{
			Name:      name,
			RawSource: src,
			RawHash:   script.HashSource(src),
			CallSites: ex.Sites,
			IdentRefs: ex.Idents,
		})
	}
	return scripts
}

// publish links raw sources, stores the transformed scripts, and registers
// their hashes.
func publish(t *testing.T, h *Host, reg *registry.Manager, sources map[string]string) map[string]*script.Script {
	t.Helper()
	res, err := linker.Link(context.Background(), extractAll(t, sources), nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	for _, s := range res.Scripts {
		if _, err := h.Put(s.Name, s.Transformed); err != nil {
			t.Fatalf("Put(%s): %v", s.Name, err)
		}
		if err := reg.Register(context.Background(), s.Name, s.Hash); err != nil {
			t.Fatalf("Register(%s): %v", s.Name, err)
		}
	}
	return res.ByName
}

func TestHostInvokeSimple(t *testing.T) {
	h, reg := newTestHost(t, 0)
	byName := publish(t, h, reg, map[string]string{
		"hello": "RESULT = \"hello, \" + \"weft\"\n",
	})

	got, err := h.Invoke(context.Background(), byName["hello"].Hash, nil, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "hello, weft" {
		t.Errorf("got %v", got)
	}
}

func TestHostInvokeName(t *testing.T) {
	h, reg := newTestHost(t, 0)
	publish(t, h, reg, map[string]string{
		"greet": "RESULT = \"hi\"\n",
	})

	got, err := h.InvokeName(context.Background(), "greet", nil, nil)
	if err != nil {
		t.Fatalf("InvokeName: %v", err)
	}
	if got != "hi" {
		t.Errorf("got %v", got)
	}

	_, err = h.InvokeName(context.Background(), "absent", nil, nil)
	var missErr *script.RegistryMissError
	if !errors.As(err, &missErr) {
		t.Fatalf("error type = %T: %v", err, err)
	}
}

func TestHostInvokeNoResultGlobal(t *testing.T) {
	h, reg := newTestHost(t, 0)
	byName := publish(t, h, reg, map[string]string{
		"silent": "x = 1\n",
	})

	got, err := h.Invoke(context.Background(), byName["silent"].Hash, nil, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil result, got %v", got)
	}
}

func TestHostArgumentRoundTrip(t *testing.T) {
	h, reg := newTestHost(t, 0)
	byName := publish(t, h, reg, map[string]string{
		"echo":   "RESULT = [_KEYS, _ARGV]\n",
		"caller": "x = call.echo([\"tag\"], [\"a\", \"b\"])\nRESULT = [x, len(_ARGV)]\n",
	})

	got, err := h.Invoke(context.Background(), byName["caller"].Hash, nil, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	// The callee saw exactly the pushed key and argument lists, and the
	// caller's own argument list is balanced again after the call.
	want := []any{
		[]any{[]any{"tag"}, []any{"a", "b"}},
		int64(0),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestHostCallerArgsVisibleToCallee(t *testing.T) {
	h, reg := newTestHost(t, 0)
	byName := publish(t, h, reg, map[string]string{
		"inner": "RESULT = _ARGV[0] + \"!\"\n",
		"outer": "RESULT = call.inner([], [_ARGV[0]])\n",
	})

	got, err := h.Invoke(context.Background(), byName["outer"].Hash, nil, []string{"ping"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "ping!" {
		t.Errorf("got %v", got)
	}
}

func TestHostMutualRecursion(t *testing.T) {
	h, reg := newTestHost(t, 0)
	byName := publish(t, h, reg, map[string]string{
		"even": "n = int(_ARGV[0])\nRESULT = True if n == 0 else call.odd([], [str(n - 1)])\n",
		"odd":  "n = int(_ARGV[0])\nRESULT = False if n == 0 else call.even([], [str(n - 1)])\n",
	})

	// The two scripts form a cycle, so every hop resolves through the
	// registry at run time.
	if !strings.Contains(byName["even"].Transformed, script.RegistryGetBuiltin) {
		t.Fatal("cycle members should dispatch dynamically")
	}

	got, err := h.Invoke(context.Background(), byName["even"].Hash, nil, []string{"4"})
	if err != nil {
		t.Fatalf("Invoke even(4): %v", err)
	}
	if got != true {
		t.Errorf("even(4) = %v", got)
	}

	got, err = h.Invoke(context.Background(), byName["even"].Hash, nil, []string{"7"})
	if err != nil {
		t.Fatalf("Invoke even(7): %v", err)
	}
	if got != false {
		t.Errorf("even(7) = %v", got)
	}
}

func TestHostDepthGuard(t *testing.T) {
	h, reg := newTestHost(t, 8)
	byName := publish(t, h, reg, map[string]string{
		"spin": "RESULT = call.spin([], [])\n",
	})

	_, err := h.Invoke(context.Background(), byName["spin"].Hash, nil, nil)
	if err == nil {
		t.Fatal("unbounded self-call should fail")
	}
	if !strings.Contains(err.Error(), "call depth exceeded") {
		t.Errorf("error = %v", err)
	}
}

func TestHostRegistryMissAtRuntime(t *testing.T) {
	h, reg := newTestHost(t, 0)

	res, err := linker.Link(context.Background(), extractAll(t, map[string]string{
		"a": "RESULT = call.b([], [])\n",
		"b": "RESULT = call.a([], [])\n",
	}), nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	// Store both scripts but register only a: the first dynamic hop from a
	// to b must surface a registry miss.
	for _, s := range res.Scripts {
		if _, err := h.Put(s.Name, s.Transformed); err != nil {
			t.Fatalf("Put(%s): %v", s.Name, err)
		}
	}
	if err := reg.Register(context.Background(), "a", res.ByName["a"].Hash); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err = h.Invoke(context.Background(), res.ByName["a"].Hash, nil, nil)
	var missErr *script.RegistryMissError
	if !errors.As(err, &missErr) {
		t.Fatalf("error type = %T: %v", err, err)
	}
	if missErr.Name != "b" {
		t.Errorf("Name = %q", missErr.Name)
	}
}

func TestHostTrailingNonStringArgument(t *testing.T) {
	h, reg := newTestHost(t, 0)
	byName := publish(t, h, reg, map[string]string{
		"echo": "RESULT = [_KEYS, _ARGV]\n",
	})
	want := []any{[]any{"k"}, []any{"v"}}

	t.Run("typed frame", func(t *testing.T) {
		got, err := h.InvokeValues(context.Background(), byName["echo"].Hash, nil,
			[]any{script.CallFrame{Keys: []any{"k"}, Args: []any{"v"}}})
		if err != nil {
			t.Fatalf("InvokeValues: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %#v, want %#v", got, want)
		}
	})

	// The callee cannot tell a frame from a trailing list-shaped argument:
	// anything non-string in last position is consumed and its two elements
	// become the effective lists. Callers that need composite arguments
	// intact must not place them last.
	t.Run("bare composite consumed as frame", func(t *testing.T) {
		got, err := h.InvokeValues(context.Background(), byName["echo"].Hash, nil,
			[]any{[]any{[]any{"k"}, []any{"v"}}})
		if err != nil {
			t.Fatalf("InvokeValues: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %#v, want %#v", got, want)
		}
	})
}

func TestHostUnknownScript(t *testing.T) {
	h, _ := newTestHost(t, 0)

	_, err := h.Invoke(context.Background(), "deadbeef", nil, nil)
	var unkErr *UnknownScriptError
	if !errors.As(err, &unkErr) {
		t.Fatalf("error type = %T: %v", err, err)
	}
	if unkErr.Hash != "deadbeef" {
		t.Errorf("Hash = %q", unkErr.Hash)
	}
}

func TestHostPutIdempotent(t *testing.T) {
	h, _ := newTestHost(t, 0)

	h1, err := h.Put("a", "RESULT = 1\n")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	h2, err := h.Put("a", "RESULT = 1\n")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %s vs %s", h1, h2)
	}
	if h.Len() != 1 {
		t.Errorf("Len = %d", h.Len())
	}
	if !h.Has(h1) {
		t.Error("Has = false for stored hash")
	}

	src, ok := h.Source(h1)
	if !ok || src != "RESULT = 1\n" {
		t.Errorf("Source = %q, %v", src, ok)
	}
}

func TestHostPutCompileError(t *testing.T) {
	h, _ := newTestHost(t, 0)

	if _, err := h.Put("bad", "def broken(:\n"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestHostContextCanceled(t *testing.T) {
	h, reg := newTestHost(t, 0)
	byName := publish(t, h, reg, map[string]string{
		"hello": "RESULT = 1\n",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.Invoke(ctx, byName["hello"].Hash, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v", err)
	}
}
