// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/lbx/internal/models"
)

// ResolveCall records one [MockCatalog.Resolve] invocation.
type ResolveCall struct {
	Title string
	Year  int
}

// MockCatalog is a test double for [services.Catalog]
//
// Candidates and ResolveErrs are keyed by title, Providers by external id.
type MockCatalog struct {
	Candidates      map[string]*models.Candidate
	ResolveErrs     map[string]error
	Providers       map[int][]string
	ProvidersErr    error
	Regions         []models.Region
	RegionsErr      error
	RegionProviders map[string][]string

	mu           sync.Mutex
	resolveCalls []ResolveCall
}

func (m *MockCatalog) Resolve(ctx context.Context, title string, year int) (*models.Candidate, error) {
	m.mu.Lock()
	m.resolveCalls = append(m.resolveCalls, ResolveCall{Title: title, Year: year})
	m.mu.Unlock()

	if err := m.ResolveErrs[title]; err != nil {
		return nil, err
	}
	return m.Candidates[title], nil
}

func (m *MockCatalog) ProvidersFor(ctx context.Context, id int, region string) ([]string, error) {
	if m.ProvidersErr != nil {
		return nil, m.ProvidersErr
	}
	return m.Providers[id], nil
}

func (m *MockCatalog) AllRegions(ctx context.Context) ([]models.Region, error) {
	if m.RegionsErr != nil {
		return nil, m.RegionsErr
	}
	return m.Regions, nil
}

func (m *MockCatalog) ProvidersForRegion(ctx context.Context, region string) ([]string, error) {
	if m.RegionsErr != nil {
		return nil, m.RegionsErr
	}
	return m.RegionProviders[region], nil
}

// ResolveCalls returns the Resolve invocations seen so far.
func (m *MockCatalog) ResolveCalls() []ResolveCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ResolveCall(nil), m.resolveCalls...)
}

// MockAcquirer is a test double for the watchlist scraper that counts its calls
type MockAcquirer struct {
	Entries []models.WatchlistEntry

	mu    sync.Mutex
	calls int
}

func (m *MockAcquirer) Acquire(ctx context.Context, username string) []models.WatchlistEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return append([]models.WatchlistEntry{}, m.Entries...)
}

// Calls returns how many times Acquire ran.
func (m *MockAcquirer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
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

func NewLimitedWriter(maxWrites int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
