package safego

import (
	"sync"
	"testing"
)

func TestGo_RunsFunction(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	ran := false
	Go("test-task", func() {
		ran = true
		wg.Done()
	})
	wg.Wait()

	if !ran {
		t.Error("function was not executed")
	}
}

func TestGo_RecoversPanic(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	// Must not crash the test binary.
	Go("panicking-task", func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()
}
