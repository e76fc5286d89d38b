package interop

import (
	"runtime"
	"sync"
	"testing"
)

type wrapper struct{ name string }

func TestArena_ResolveIdentity(t *testing.T) {
	w := &wrapper{name: "pc-1"}
	r := MintRef(w)
	defer ReleaseRef(r)

	got, ok := ResolveRef(r)
	if !ok {
		t.Fatal("resolve failed for live ref")
	}
	if got != w {
		t.Fatalf("resolve returned %p, want %p (identity must be preserved)", got, w)
	}
}

func TestArena_ReleasedRefDoesNotResolve(t *testing.T) {
	r := MintRef(&wrapper{})
	ReleaseRef(r)
	ReleaseRef(r) // idempotent

	if _, ok := ResolveRef(r); ok {
		t.Fatal("released ref still resolves")
	}
}

func TestArena_ZeroRefIsNeverMinted(t *testing.T) {
	for i := 0; i < 100; i++ {
		r := MintRef(&wrapper{})
		if r == 0 {
			t.Fatal("minted the zero ref")
		}
		ReleaseRef(r)
	}
	if _, ok := ResolveRef(0); ok {
		t.Fatal("zero ref resolves")
	}
}

// TestArena_KeepsWrapperAlive simulates the native engine holding a token
// across a GC pass: as long as the ref is outstanding the wrapper must stay
// resolvable, and only after release may it be collected.
func TestArena_KeepsWrapperAlive(t *testing.T) {
	collected := make(chan struct{})
	r := func() Ref {
		w := &wrapper{name: "pinned"}
		runtime.SetFinalizer(w, func(*wrapper) { close(collected) })
		return MintRef(w)
	}()

	// Several forced GC passes while the token is outstanding.
	for i := 0; i < 3; i++ {
		runtime.GC()
		select {
		case <-collected:
			t.Fatal("wrapper collected while back-reference was outstanding")
		default:
		}
		got, ok := ResolveRef(r)
		if !ok {
			t.Fatalf("ref stopped resolving on GC pass %d", i)
		}
		if got.(*wrapper).name != "pinned" {
			t.Fatalf("resolved wrong wrapper on pass %d", i)
		}
	}

	ReleaseRef(r)
	// After release the wrapper is collectible. Cleanup runs asynchronously,
	// so loop a few GC cycles before giving up.
	for i := 0; i < 10; i++ {
		runtime.GC()
		select {
		case <-collected:
			return
		default:
		}
	}
	t.Fatal("wrapper never collected after ReleaseRef")
}

func TestArena_ConcurrentMintResolveRelease(t *testing.T) {
	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				w := &wrapper{}
				r := MintRef(w)
				got, ok := ResolveRef(r)
				if !ok || got != w {
					t.Error("concurrent resolve returned wrong wrapper")
					return
				}
				ReleaseRef(r)
				if _, ok := ResolveRef(r); ok {
					t.Error("ref resolvable after release")
					return
				}
			}
		}()
	}
	wg.Wait()
}
