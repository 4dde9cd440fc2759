package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryOnce(t *testing.T) {
	c := NewMemory()
	calls := 0
	fn := func() error { calls++; return nil }
	for i := 0; i < 3; i++ {
		if err := c.Once(context.Background(), "k", time.Minute, fn); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("ожидали один вызов, получили %d", calls)
	}
}

func TestMemoryOnceReleasesOnError(t *testing.T) {
	c := NewMemory()
	boom := errors.New("boom")
	if err := c.Once(context.Background(), "k", time.Minute, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("ожидали boom, получили %v", err)
	}
	called := false
	_ = c.Once(context.Background(), "k", time.Minute, func() error { called = true; return nil })
	if !called {
		t.Fatal("после ошибки ключ должен освобождаться")
	}
}

func TestMemoryLockExpires(t *testing.T) {
	c := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	release, ok, err := c.Lock(context.Background(), "lease", time.Minute)
	if err != nil || !ok {
		t.Fatalf("ожидали захват, получили ok=%v err=%v", ok, err)
	}
	if _, ok, _ := c.Lock(context.Background(), "lease", time.Minute); ok {
		t.Fatal("повторный захват должен не удаваться, пока аренда держится")
	}
	release()
	if _, ok, _ := c.Lock(context.Background(), "lease", time.Minute); !ok {
		t.Fatal("после освобождения захват должен удаваться")
	}

	now = now.Add(2 * time.Minute)
	release2, ok, _ := c.Lock(context.Background(), "lease", time.Minute)
	if !ok {
		t.Fatal("после ttl захват должен удаваться")
	}
	release()
	if _, ok, _ := c.Lock(context.Background(), "lease", time.Minute); ok {
		t.Fatal("старое освобождение не должно снимать новую аренду")
	}
	release2()
}

func TestMemoryEvictsExpiredKeys(t *testing.T) {
	c := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	fn := func() error { return nil }

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("distribute:1:%d", i)
		if err := c.Once(context.Background(), key, 2*time.Minute, fn); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		now = now.Add(time.Minute)
	}
	if n := c.Len(); n > 3 {
		t.Fatalf("истёкшие ключи должны удаляться, в карте %d", n)
	}
}
