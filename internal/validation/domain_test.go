package validation

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errNXDomain  = &net.DNSError{Err: "no such host", Name: "nx", IsNotFound: true}
	errTemporary = &net.DNSError{Err: "server misbehaving", Name: "flaky", IsTemporary: true}
	errTimeout   = &net.DNSError{Err: "i/o timeout", Name: "slow", IsTimeout: true}
)

type mxAnswer struct {
	mx  []*net.MX
	err error
}

type hostAnswer struct {
	addrs []string
	err   error
}

// fakeResolver answers from fixed tables. A domain listed in failures fails
// that many MX lookups with errTemporary before answering.
type fakeResolver struct {
	mu       sync.Mutex
	mx       map[string]mxAnswer
	host     map[string]hostAnswer
	failures map[string]int
	calls    map[string]int
	gate     chan struct{}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		mx: map[string]mxAnswer{
			"x.com":       {mx: []*net.MX{{Host: "mx1.x.com.", Pref: 10}}},
			"y.org":       {mx: []*net.MX{{Host: "mail.y.org.", Pref: 5}}},
			"nullmx.com":  {mx: []*net.MX{{Host: ".", Pref: 0}}},
			"nx.invalid":  {err: errNXDomain},
			"hostonly.io": {err: errNXDomain},
			"flaky.net":   {mx: []*net.MX{{Host: "mx.flaky.net.", Pref: 1}}},
			"down.net":    {err: errTemporary},
			"slow.net":    {err: errTimeout},
		},
		host: map[string]hostAnswer{
			"nx.invalid":  {err: errNXDomain},
			"hostonly.io": {addrs: []string{"192.0.2.10"}},
		},
		failures: map[string]int{"flaky.net": 1},
		calls:    map[string]int{},
	}
}

func (f *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if f.failures[name] > 0 {
		f.failures[name]--
		return nil, errTemporary
	}
	a, ok := f.mx[name]
	if !ok {
		return nil, errNXDomain
	}
	return a.mx, a.err
}

func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.host[host]
	if !ok {
		return nil, errNXDomain
	}
	return a.addrs, a.err
}

func (f *fakeResolver) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type recordingMetrics struct {
	mu      sync.Mutex
	lookups map[string]int
	classes map[Classification]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{lookups: map[string]int{}, classes: map[Classification]int{}}
}

func (m *recordingMetrics) RecordDNSLookup(_ context.Context, _ time.Duration, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[result]++
}

func (m *recordingMetrics) RecordClassification(_ context.Context, class Classification, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[class] += n
}

func newTestChecker(r Resolver, metrics Metrics) *DomainChecker {
	c := NewDomainChecker(r, DomainCheckerConfig{
		Timeout: time.Second,
		Retry:   RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2},
	}, metrics, nil)
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func TestDomainChecker_Verdicts(t *testing.T) {
	tests := []struct {
		domain   string
		want     Classification
		attempts int
	}{
		{domain: "x.com", want: Valid, attempts: 1},
		{domain: "nullmx.com", want: InvalidDomain, attempts: 1},
		{domain: "nx.invalid", want: InvalidDomain, attempts: 1},
		{domain: "hostonly.io", want: Valid, attempts: 1},
		{domain: "flaky.net", want: Valid, attempts: 2},
		{domain: "down.net", want: Unknown, attempts: 3},
		{domain: "slow.net", want: Unknown, attempts: 3},
	}

	r := newFakeResolver()
	c := newTestChecker(r, nil)
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			v := c.Check(context.Background(), tt.domain)
			assert.Equal(t, tt.want, v.Classification)
			assert.Equal(t, tt.attempts, v.Attempts)
		})
	}

	assert.Equal(t, "lookup timed out", c.Check(context.Background(), "slow.net").Reason)
}

func TestDomainChecker_CachesConclusiveVerdicts(t *testing.T) {
	r := newFakeResolver()
	metrics := newRecordingMetrics()
	c := newTestChecker(r, metrics)

	for i := 0; i < 3; i++ {
		assert.Equal(t, Valid, c.Check(context.Background(), "X.com").Classification)
	}
	assert.Equal(t, 1, r.callCount("x.com"))
	assert.Equal(t, 1, metrics.lookups["valid"])

	for i := 0; i < 2; i++ {
		assert.Equal(t, Unknown, c.Check(context.Background(), "down.net").Classification)
	}
	assert.Equal(t, 6, r.callCount("down.net"))
}

func TestDomainChecker_ConcurrentChecksShareLookup(t *testing.T) {
	r := newFakeResolver()
	r.gate = make(chan struct{})
	c := newTestChecker(r, nil)

	var wg sync.WaitGroup
	results := make([]Classification, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Check(context.Background(), "y.org").Classification
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(r.gate)
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, Valid, got)
	}
	assert.Equal(t, 1, r.callCount("y.org"))
}

func TestDomainChecker_CancelledContext(t *testing.T) {
	c := newTestChecker(newFakeResolver(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := c.Check(ctx, "x.com")
	assert.Equal(t, Unknown, v.Classification)
	assert.Equal(t, "cancelled", v.Reason)
}

func TestTransientNetworkError(t *testing.T) {
	err := error(&TransientNetworkError{Domain: "down.net", Err: errTemporary})
	var dnsErr *net.DNSError
	require.True(t, errors.As(err, &dnsErr))
	assert.True(t, dnsErr.IsTemporary)
	assert.Contains(t, err.Error(), "down.net")
}
