package hookable

import "testing"

func TestEmitPriorityOrder(t *testing.T) {
	h := New()
	var order []string

	h.On("stopped", func(any) CleanupFunc {
		order = append(order, "low")
		return nil
	}, WithPriority(10))
	h.On("stopped", func(any) CleanupFunc {
		order = append(order, "high")
		return nil
	}, WithPriority(90))
	h.On("stopped", func(any) CleanupFunc {
		order = append(order, "default")
		return nil
	})

	h.Emit("stopped", nil)

	want := []string{"high", "default", "low"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestOnceDisposesAfterFirstEmit(t *testing.T) {
	h := New()
	calls := 0
	cleaned := false

	h.On("x", func(any) CleanupFunc {
		calls++
		return func() { cleaned = true }
	}, Once())

	h.Emit("x", nil)
	h.Emit("x", nil)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if !cleaned {
		t.Fatal("expected cleanup to run after the once listener fired")
	}
}

func TestDisposeFuncRunsCleanup(t *testing.T) {
	h := New()
	cleaned := false

	dispose := h.On("x", func(any) CleanupFunc {
		return func() { cleaned = true }
	})

	h.Emit("x", nil)
	dispose()

	if !cleaned {
		t.Fatal("expected dispose to run the listener's cleanup")
	}

	h.Emit("x", nil)
}

func TestDestroyRunsEveryCleanupExactlyOnce(t *testing.T) {
	h := New()
	count := 0

	h.On("x", func(any) CleanupFunc {
		return func() { count++ }
	})
	h.On("x", func(any) CleanupFunc {
		return func() { count++ }
	}, NonPreemptible())

	h.Emit("x", nil) // listeners must fire once to register their cleanup closures
	h.Destroy()

	if count != 2 {
		t.Fatalf("expected 2 cleanups, got %d", count)
	}

	// destroyed Hookable is inert
	h.Emit("x", nil)
	if count != 2 {
		t.Fatalf("expected emit on destroyed hookable to be a no-op, got count=%d", count)
	}
}

func TestDestroyCascadesToChildrenFirst(t *testing.T) {
	parent := New()
	child := Create(parent)

	var order []string
	parent.On("x", func(any) CleanupFunc {
		return func() { order = append(order, "parent") }
	})
	child.On("x", func(any) CleanupFunc {
		return func() { order = append(order, "child") }
	})

	parent.Emit("x", nil)
	child.Emit("x", nil)
	parent.Destroy()

	if len(order) != 2 || order[0] != "child" || order[1] != "parent" {
		t.Fatalf("expected child to be destroyed before parent, got %v", order)
	}
	if !child.Destroyed() {
		t.Fatal("expected child to be destroyed along with parent")
	}
}

func TestNameDedupesRegistration(t *testing.T) {
	h := New()
	var firedSecond bool

	h.On("x", func(any) CleanupFunc { return nil }, WithName("dedup"))
	h.On("x", func(any) CleanupFunc {
		firedSecond = true
		return nil
	}, WithName("dedup"))

	h.Emit("x", nil)

	if !firedSecond {
		t.Fatal("expected the second registration under the same name to replace the first")
	}
}
