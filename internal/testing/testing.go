// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/platforms"
)

// MockClient is a scriptable test double for [platforms.Client]. Unset
// function fields behave as successful no-ops.
type MockClient struct {
	Platform string

	AuthenticateFunc   func(ctx context.Context) error
	ListActivitiesFunc func(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error)
	FetchActivityFunc  func(ctx context.Context, ref models.ActivityRef, format string) ([]byte, error)
	PushActivityFunc   func(ctx context.Context, payload []byte, meta platforms.Metadata) (*platforms.UploadResult, error)

	AuthCalls  int
	ListCalls  int
	FetchCalls int
	PushCalls  int
}

func (m *MockClient) Name() string {
	if m.Platform == "" {
		return "mock"
	}
	return m.Platform
}

func (m *MockClient) Authenticate(ctx context.Context) error {
	m.AuthCalls++
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx)
	}
	return nil
}

func (m *MockClient) ListActivities(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error) {
	m.ListCalls++
	if m.ListActivitiesFunc != nil {
		return m.ListActivitiesFunc(ctx, rng, types)
	}
	return nil, nil
}

func (m *MockClient) FetchActivity(ctx context.Context, ref models.ActivityRef, format string) ([]byte, error) {
	m.FetchCalls++
	if m.FetchActivityFunc != nil {
		return m.FetchActivityFunc(ctx, ref, format)
	}
	return []byte("payload"), nil
}

func (m *MockClient) PushActivity(ctx context.Context, payload []byte, meta platforms.Metadata) (*platforms.UploadResult, error) {
	m.PushCalls++
	if m.PushActivityFunc != nil {
		return m.PushActivityFunc(ctx, payload, meta)
	}
	return &platforms.UploadResult{Status: platforms.UploadAccepted}, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
