package cli

import (
	"context"
	"testing"
	"time"
)

func TestSpinnerBasic(t *testing.T) {
	s := newSpinner("Testing...")
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	select {
	case <-s.stopped:
	default:
		t.Error("Stop returned before the animation goroutine exited")
	}
}

// waitStopped fails the test if the animation goroutine is still running.
func waitStopped(t *testing.T, s *Spinner) {
	t.Helper()
	select {
	case <-s.stopped:
	case <-time.After(time.Second):
		t.Error("spinner kept running after its context ended")
	}
}

func TestSpinnerWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := newSpinnerWithContext(ctx, "Testing with context...")
	s.Start()

	cancel()
	waitStopped(t, s)
}

func TestSpinnerWithTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s := newSpinnerWithContext(ctx, "Testing with timeout...")
	s.Start()

	waitStopped(t, s)
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	s := newSpinner("Testing idempotent stop...")
	s.Start()

	// Stop multiple times should not panic
	s.Stop()
	s.Stop()
	s.Stop()
}

func TestSpinnerStopWithSuccess(t *testing.T) {
	s := newSpinner("Testing success...")
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.StopWithSuccess("Done!")
}

func TestSpinnerStopWithError(t *testing.T) {
	s := newSpinner("Testing error...")
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.StopWithError("Failed!")
}

func TestNewSpinnerWithContextNilParent(t *testing.T) {
	s := newSpinnerWithContext(context.Background(), "Test")
	s.Start()
	s.Stop()
}

func TestSpinnerSetMessage(t *testing.T) {
	s := newSpinner("Starting export...")
	s.Start()
	s.SetMessage("Capturing frame 3/32")
	if got := s.Message(); got != "Capturing frame 3/32" {
		t.Errorf("Message() = %q", got)
	}
	s.SetMessage("Encoding...")
	s.Stop()

	if s.widest != len("Capturing frame 3/32") {
		t.Errorf("widest = %d, want the longest message length", s.widest)
	}
}
