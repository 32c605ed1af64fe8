package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// mockRunSweeper implements port.RunSweeper for testing
type mockRunSweeper struct {
	mu     sync.Mutex
	count  int
	err    error
	called int
}

func (m *mockRunSweeper) AbandonRuns() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	return m.count, m.err
}

// mockTempCleaner implements port.TempCleaner for testing
type mockTempCleaner struct {
	mu        sync.Mutex
	count     int
	err       error
	called    int
	olderThan time.Duration
}

func (m *mockTempCleaner) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	m.olderThan = olderThan
	return m.count, m.err
}

func TestService_New(t *testing.T) {
	fs := &mockTempCleaner{}

	// Test with nil config (should use defaults)
	s := New(nil, fs, nil, nil)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.config.TempFileMaxAge != time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", s.config.TempFileMaxAge, time.Hour)
	}

	// Test with custom config
	s = New(&Config{TempFileMaxAge: 6 * time.Hour}, fs, nil, zap.NewNop())
	if s.config.TempFileMaxAge != 6*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", s.config.TempFileMaxAge, 6*time.Hour)
	}
}

func TestService_Sweep(t *testing.T) {
	fs := &mockTempCleaner{count: 2}
	runs := &mockRunSweeper{count: 1}

	s := New(&Config{TempFileMaxAge: 30 * time.Minute}, fs, runs, zap.NewNop())
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if runs.called != 1 {
		t.Errorf("AbandonRuns called %d times, want 1", runs.called)
	}
	if fs.called != 1 {
		t.Errorf("CleanOldTempFiles called %d times, want 1", fs.called)
	}
	if fs.olderThan != 30*time.Minute {
		t.Errorf("CleanOldTempFiles olderThan = %v, want %v", fs.olderThan, 30*time.Minute)
	}
}

func TestService_SweepWithoutLedger(t *testing.T) {
	fs := &mockTempCleaner{}

	s := New(nil, fs, nil, zap.NewNop())
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if fs.called != 1 {
		t.Errorf("CleanOldTempFiles called %d times, want 1", fs.called)
	}
}

func TestService_SweepErrorsAreNotFatal(t *testing.T) {
	fs := &mockTempCleaner{err: errors.New("permission denied")}
	runs := &mockRunSweeper{err: errors.New("database is locked")}

	s := New(nil, fs, runs, zap.NewNop())
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v, want nil", err)
	}
	if runs.called != 1 || fs.called != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", runs.called, fs.called)
	}
}

func TestService_SweepCanceled(t *testing.T) {
	fs := &mockTempCleaner{}
	runs := &mockRunSweeper{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(nil, fs, runs, zap.NewNop())
	if err := s.Sweep(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sweep() error = %v, want %v", err, context.Canceled)
	}
	if runs.called != 0 || fs.called != 0 {
		t.Errorf("calls = (%d, %d), want (0, 0)", runs.called, fs.called)
	}
}
