package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	decreaseFactor = 0.8 // back off aggressively on failure
	increaseFactor = 0.2 // recover conservatively on success
	minLimit       = 1   // requests per second floor
)

// AdaptiveRateLimiter slows down when the remote system starts
// rejecting requests and creeps back up while things go well. The
// registration system has no published limits so this learns them.
type AdaptiveRateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	limiter     *rate.Limiter
	maxIncrease rate.Limit
}

func NewAdaptiveRateLimiter(startingLimit rate.Limit, startingBurst int, maxIncrease rate.Limit) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		limit:       startingLimit,
		limiter:     rate.NewLimiter(startingLimit, startingBurst),
		maxIncrease: maxIncrease,
	}
}

func (a *AdaptiveRateLimiter) Fail() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLimit(max(rate.Limit(float64(a.limit)*(1-decreaseFactor)), minLimit))
}

func (a *AdaptiveRateLimiter) Succeed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLimit(min(rate.Limit(float64(a.limit)*(1+increaseFactor)), a.limit+a.maxIncrease))
}

func (a *AdaptiveRateLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

func (a *AdaptiveRateLimiter) setLimit(newLimit rate.Limit) {
	a.limit = newLimit
	a.limiter.SetLimit(a.limit)
}

type RateLimiter interface {
	Succeed()
	Fail()
	Wait(context.Context) error
}

type rateLimitedRoundTripper struct {
	transport http.RoundTripper
	limiter   RateLimiter
}

func (rt *rateLimitedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := rt.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		rt.limiter.Fail()
	} else {
		rt.limiter.Succeed()
	}
	return resp, nil
}

// AddRateLimiter wraps the client's transport so every request waits
// on (and reports back to) the limiter.
func AddRateLimiter(client *http.Client, limiter RateLimiter) {
	rt := &rateLimitedRoundTripper{limiter: limiter}
	if client.Transport == nil {
		rt.transport = http.DefaultTransport
	} else {
		rt.transport = client.Transport
	}
	client.Transport = rt
}

// NewRetryClientWithLimiter builds the standard outgoing client:
// per-request retries from retryablehttp beneath the adaptive limiter,
// logging through logrus.
func NewRetryClientWithLimiter(logger *log.Entry, limiter RateLimiter) *http.Client {
	retryClient := retryablehttp.NewClient()
	var leveled retryablehttp.LeveledLogger = LogrusLogger{Entry: logger}
	retryClient.Logger = leveled
	retryClient.RetryMax = 1
	// only transport-level failures are safe to resend blindly: an HTTP
	// status means the server saw the request, and session-priming calls
	// must then be replayed by the caller as a whole sequence
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	retryClient.RequestLogHook = func(l retryablehttp.Logger, req *http.Request, retryCount int) {
		if retryCount == 0 {
			return
		}
		logger.Warnf("try %d for %s: %s", retryCount, req.Method, req.URL)
	}
	retryClient.ResponseLogHook = func(l retryablehttp.Logger, res *http.Response) {
		logger.Tracef("%s: %s", res.Status, res.Request.URL)
	}

	stdClient := retryClient.StandardClient()
	AddRateLimiter(stdClient, limiter)
	return stdClient
}

// shorthand to check if a response is within 200-299
func IsOk(r *http.Response) bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RespOrStatusErr returns an ErrTemporaryNetworkFailure wrapped error
// of either the respErr if not nil or the status code if non "Ok".
func RespOrStatusErr(r *http.Response, respErr error) error {
	if respErr != nil {
		return errors.Join(ErrTemporaryNetworkFailure, respErr)
	}
	if !IsOk(r) {
		return fmt.Errorf("%w got status code %d", ErrTemporaryNetworkFailure, r.StatusCode)
	}
	return nil
}

// LogrusLogger makes a logrus entry usable as a retryablehttp
// LeveledLogger.
type LogrusLogger struct {
	Entry *log.Entry
}

func (l LogrusLogger) Error(msg string, keysAndValues ...any) {
	l.Entry.Errorln(msg, keysAndValues)
}

func (l LogrusLogger) Info(msg string, keysAndValues ...any) {
	l.Entry.Infoln(msg, keysAndValues)
}

func (l LogrusLogger) Debug(msg string, keysAndValues ...any) {
	l.Entry.Debugln(msg, keysAndValues)
}

func (l LogrusLogger) Warn(msg string, keysAndValues ...any) {
	l.Entry.Warnln(msg, keysAndValues)
}
