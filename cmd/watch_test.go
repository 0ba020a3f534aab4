package cmd

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerFiresOncePerQuietPath(t *testing.T) {
	var mu sync.Mutex
	fired := map[string]int{}
	done := make(chan struct{}, 4)

	d := newDebouncer(30*time.Millisecond, func(path string) {
		mu.Lock()
		fired[path]++
		mu.Unlock()
		done <- struct{}{}
	})

	for i := 0; i < 5; i++ {
		d.touch("a.xlsx")
		time.Sleep(5 * time.Millisecond)
	}
	d.touch("b.csv")

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("debouncer did not fire")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"a.xlsx": 1, "b.csv": 1}, fired)
}

func TestDebouncerStop(t *testing.T) {
	fired := make(chan string, 1)
	d := newDebouncer(20*time.Millisecond, func(path string) { fired <- path })

	d.touch("a.xlsx")
	d.stop()

	select {
	case p := <-fired:
		t.Fatalf("stopped debouncer fired for %s", p)
	case <-time.After(100 * time.Millisecond):
	}
}
