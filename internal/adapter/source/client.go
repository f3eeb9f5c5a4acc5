// Package source fetches daily report snapshots from the publisher and
// caches them on local disk.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/observability"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("covid-report-etl/source")

const userAgent = "covid-report-etl/1.0"

// StatusError is a response status worth retrying (5xx, 408, 429).
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source returned status %d", e.Code)
}

// Response is a completed HTTP exchange with the publisher.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client issues rate-limited GETs for dated report files through a circuit
// breaker.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond caps the request rate. Zero disables limiting.
	RequestsPerSecond float64
}

// NewClient creates a publisher client.
func NewClient(opts ClientOptions, logger *slog.Logger, metrics *observability.Metrics) *Client {
	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", userAgent)

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	c := &Client{
		http:    client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		metrics: metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "report-source",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen {
				metrics.BreakerOpen.Set(1)
			} else {
				metrics.BreakerOpen.Set(0)
			}
		},
	})
	return c
}

// Get requests the report file for date. Any response the publisher
// actually answered (2xx, 4xx) returns without error so the caller can
// classify it; retryable statuses come back as *StatusError.
func (c *Client) Get(ctx context.Context, date time.Time) (Response, error) {
	ctx, span := tracer.Start(ctx, "source.get")
	defer span.End()
	span.SetAttributes(attribute.String("report_date", domain.FormatDate(date)))

	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, date)
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return Response{StatusCode: se.Code}, err
		}
		return Response{}, err
	}
	return result.(Response), nil
}

func (c *Client) do(ctx context.Context, date time.Time) (Response, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/" + domain.FormatDate(date) + ".csv")
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		return Response{}, fmt.Errorf("get report %s: %w", domain.FormatDate(date), err)
	}

	code := resp.StatusCode()
	c.metrics.FetchRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	if retryable(code) {
		return Response{}, &StatusError{Code: code}
	}
	return Response{StatusCode: code, Body: resp.Body()}, nil
}

func retryable(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}
