package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Resolver is the subset of *net.Resolver used for domain checks.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// NewResolver returns a pure-Go resolver. A non-empty address pins every
// query to that DNS server.
func NewResolver(address string, dialTimeout time.Duration) *net.Resolver {
	if address == "" {
		return &net.Resolver{PreferGo: true}
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			dialer := net.Dialer{Timeout: dialTimeout}
			return dialer.DialContext(ctx, network, address)
		},
	}
}

// DomainVerdict is the result of checking one domain.
type DomainVerdict struct {
	Classification Classification
	Attempts       int
	Reason         string
}

// Checker checks the deliverability of a mail domain.
type Checker interface {
	Check(ctx context.Context, domain string) DomainVerdict
}

// DomainCheckerConfig configures a DomainChecker.
type DomainCheckerConfig struct {
	Timeout          time.Duration
	Retry            RetryConfig
	CacheTTL         time.Duration
	LookupsPerSecond float64
	Burst            int
}

// DomainChecker resolves MX records, falling back to address records when a
// domain publishes no MX. Conclusive verdicts are cached; concurrent checks
// of one domain share a single lookup.
type DomainChecker struct {
	resolver Resolver
	cfg      DomainCheckerConfig
	verdicts *cache.Cache
	group    singleflight.Group
	limiter  *rate.Limiter
	tracer   trace.Tracer
	metrics  Metrics
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDomainChecker returns a checker on resolver. metrics may be nil.
func NewDomainChecker(resolver Resolver, cfg DomainCheckerConfig, metrics Metrics, logger *slog.Logger) *DomainChecker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = NewRetryConfig()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	limit := rate.Inf
	if cfg.LookupsPerSecond > 0 {
		limit = rate.Limit(cfg.LookupsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DomainChecker{
		resolver: resolver,
		cfg:      cfg,
		verdicts: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		tracer:   otel.Tracer("csvmail/validation"),
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "domain_checker")),
		sleep:    sleepContext,
	}
}

// Check returns the verdict for domain. Transient failures are retried with
// exponential backoff and degrade to Unknown once the budget is spent.
func (c *DomainChecker) Check(ctx context.Context, domain string) DomainVerdict {
	key := strings.ToLower(domain)
	if v, ok := c.verdicts.Get(key); ok {
		return v.(DomainVerdict)
	}
	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		return c.checkWithRetry(ctx, key), nil
	})
	return v.(DomainVerdict)
}

func (c *DomainChecker) checkWithRetry(ctx context.Context, domain string) DomainVerdict {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		if err := c.sleep(ctx, c.cfg.Retry.delay(attempt)); err != nil {
			lastErr = err
			break
		}
		if err := c.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		lookupCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		class, err := c.lookup(lookupCtx, domain)
		cancel()
		if err == nil {
			v := DomainVerdict{Classification: class, Attempts: attempt}
			if class == InvalidDomain {
				v.Reason = "domain does not accept mail"
			}
			c.verdicts.Set(domain, v, cache.DefaultExpiration)
			return v
		}

		lastErr = err
		c.logger.DebugContext(ctx, "domain check failed",
			slog.String("domain", domain),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}

	return DomainVerdict{
		Classification: Unknown,
		Attempts:       c.cfg.Retry.MaxAttempts,
		Reason:         reasonFor(lastErr),
	}
}

// lookup returns Valid or InvalidDomain on a conclusive answer and a
// TransientNetworkError otherwise.
func (c *DomainChecker) lookup(ctx context.Context, domain string) (Classification, error) {
	ctx, span := c.tracer.Start(ctx, "dns.lookup",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "dns"),
			attribute.String("dns.question.name", domain),
			attribute.String("dns.question.type", "MX"),
		))
	defer span.End()

	start := time.Now()
	class, err := c.resolve(ctx, domain)
	result := string(class)
	if err != nil {
		result = "transient"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("dns.verdict", result))
	c.metrics.RecordDNSLookup(ctx, time.Since(start), result)
	return class, err
}

func (c *DomainChecker) resolve(ctx context.Context, domain string) (Classification, error) {
	mxs, err := c.resolver.LookupMX(ctx, domain)
	switch {
	case err == nil:
		// RFC 7505 null MX: a single "." record means no mail is accepted.
		if len(mxs) == 1 && strings.TrimSuffix(mxs[0].Host, ".") == "" {
			return InvalidDomain, nil
		}
		if len(mxs) > 0 {
			return Valid, nil
		}
	case !isNotFound(err):
		return "", &TransientNetworkError{Domain: domain, Err: err}
	}

	// No MX: RFC 5321 implicit MX on the address records.
	addrs, err := c.resolver.LookupHost(ctx, domain)
	switch {
	case err == nil && len(addrs) > 0:
		return Valid, nil
	case err == nil || isNotFound(err):
		return InvalidDomain, nil
	default:
		return "", &TransientNetworkError{Domain: domain, Err: err}
	}
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

func reasonFor(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return "lookup failed"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "lookup timed out"
	default:
		return fmt.Sprintf("lookup failed: %v", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
