// Package health answers liveness and readiness checks for the API.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tartampluch/go-haid/internal/config"
)

// Status represents the health status of the service or of one dependency.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one ping.
type CheckResult struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report is the body of both health endpoints. Checks is empty for liveness.
type Report struct {
	Status        Status                 `json:"status"`
	Version       string                 `json:"version,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Checks        map[string]CheckResult `json:"checks,omitempty"`
}

// Pinger is a dependency that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check names a dependency pinged on readiness.
type Check struct {
	Name   string
	Target Pinger
}

// Checker runs the readiness checks. All pings share one deadline and run
// concurrently, so a slow dependency does not delay the others.
type Checker struct {
	version string
	started time.Time
	checks  []Check
}

// NewChecker creates a checker. Checks with a nil Target are ignored.
func NewChecker(version string, checks ...Check) *Checker {
	c := &Checker{version: version, started: time.Now()}
	for _, ch := range checks {
		if ch.Target != nil {
			c.checks = append(c.checks, ch)
		}
	}
	return c
}

// Check pings every dependency and returns the overall status.
func (c *Checker) Check(ctx context.Context) *Report {
	checkCtx, cancel := context.WithTimeout(ctx, config.HealthTimeout)
	defer cancel()

	report := c.report()
	report.Checks = make(map[string]CheckResult, len(c.checks))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, ch := range c.checks {
		wg.Add(1)
		go func(ch Check) {
			defer wg.Done()
			res := ping(checkCtx, ch.Target)

			mu.Lock()
			defer mu.Unlock()
			report.Checks[ch.Name] = res
			if res.Status != StatusHealthy {
				report.Status = StatusUnhealthy
			}
		}(ch)
	}
	wg.Wait()

	return report
}

func ping(ctx context.Context, p Pinger) CheckResult {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
}

func (c *Checker) report() *Report {
	return &Report{
		Status:        StatusHealthy,
		Version:       c.version,
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
	}
}

// Live answers 200 while the process serves HTTP. It touches no dependency.
func (c *Checker) Live() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, c.report())
	}
}

// Ready answers 200 when every dependency responds and 503 otherwise.
func (c *Checker) Ready() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		report := c.Check(ctx.Request.Context())

		httpStatus := http.StatusOK
		if report.Status != StatusHealthy {
			httpStatus = http.StatusServiceUnavailable
		}
		ctx.JSON(httpStatus, report)
	}
}
