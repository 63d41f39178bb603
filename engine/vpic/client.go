// Package vpic talks to the NHTSA vehicle API (vPIC): it decodes BMW VINs
// into vehicle records and lists the recall campaigns filed against a VIN.
package vpic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/vinsync/engine/record"
	"github.com/WessleyAI/vinsync/engine/vin"
	"github.com/WessleyAI/vinsync/pkg/fn"
	"github.com/WessleyAI/vinsync/pkg/resilience"
)

// DefaultBaseURL is the public vPIC vehicles API.
const DefaultBaseURL = "https://vpic.nhtsa.dot.gov/api/vehicles"

const userAgent = "vinsync/1.0 (BMW VIN decoder connector)"

var tracer = otel.Tracer("engine/vpic")

// Config controls the vPIC client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit is the request budget per second; 0 disables pacing.
	RateLimit float64
	// ValidateVINs rejects malformed or non-BMW VINs before any request.
	ValidateVINs bool
	// BreakerThreshold is the number of consecutive transport failures that
	// open the circuit; 0 disables the breaker.
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// Client is a vPIC API client. Calls are blocking and never retried.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	mapper  *record.Mapper
	log     *slog.Logger
}

// New creates a Client with the given config.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		mapper: record.NewMapper(),
		log:    logger.With("component", "vpic"),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	if cfg.BreakerThreshold > 0 {
		c.breaker = resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold: cfg.BreakerThreshold,
			Timeout:       cfg.BreakerTimeout,
			OnStateChange: func(from, to resilience.State) {
				c.log.Warn("vpic circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		})
	}
	return c
}

// Mapper returns the record mapper used by the client.
func (c *Client) Mapper() *record.Mapper { return c.mapper }

type decodeResponse struct {
	Count          int                `json:"Count"`
	Message        string             `json:"Message"`
	SearchCriteria string             `json:"SearchCriteria"`
	Results        []record.Attribute `json:"Results"`
}

type recallsResponse struct {
	Count   int                `json:"Count"`
	Message string             `json:"Message"`
	Results []record.RawRecall `json:"Results"`
}

// Decode fetches the decodevin attributes for v and maps them onto a
// VehicleRecord. Errors wrap vin.ErrInvalidLength, vin.ErrUnsupportedPrefix,
// vin.ErrNetwork, vin.ErrParse or vin.ErrConversion.
func (c *Client) Decode(ctx context.Context, v string) (record.VehicleRecord, error) {
	ctx, span := tracer.Start(ctx, "vpic.Decode")
	defer span.End()
	span.SetAttributes(attribute.String("vin", v))

	rec, err := c.decode(ctx, v)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Error("vin decode failed", "vin", v, "err", err)
		return record.VehicleRecord{}, err
	}
	return rec, nil
}

func (c *Client) decode(ctx context.Context, v string) (record.VehicleRecord, error) {
	if err := c.validate(v); err != nil {
		return record.VehicleRecord{}, err
	}
	url := fmt.Sprintf("%s/decodevin/%s?format=json", c.cfg.BaseURL, neturl.PathEscape(v))

	body := c.get(ctx, url)
	resp := fn.Bind(body, parse[decodeResponse])
	out := fn.Bind(resp, func(r decodeResponse) fn.Result[record.VehicleRecord] {
		if r.Results == nil {
			return fn.Errf[record.VehicleRecord]("%w: decodevin response has no Results", vin.ErrParse)
		}
		return fn.FromPair(c.mapper.Vehicle(v, record.Project(r.Results)))
	})
	return out.Unwrap()
}

// FetchRecalls returns the raw recall entries for v in API order. A response
// without Results yields an empty list.
func (c *Client) FetchRecalls(ctx context.Context, v string) ([]record.RawRecall, error) {
	ctx, span := tracer.Start(ctx, "vpic.FetchRecalls")
	defer span.End()
	span.SetAttributes(attribute.String("vin", v))

	recalls, err := c.fetchRecalls(ctx, v)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Error("recall fetch failed", "vin", v, "err", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("recalls", len(recalls)))
	return recalls, nil
}

func (c *Client) fetchRecalls(ctx context.Context, v string) ([]record.RawRecall, error) {
	if err := c.validate(v); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/recalls/vin/%s?format=json", c.cfg.BaseURL, neturl.PathEscape(v))

	resp := fn.Bind(c.get(ctx, url), parse[recallsResponse])
	return fn.MapResult(resp, func(r recallsResponse) []record.RawRecall {
		if r.Results == nil {
			return []record.RawRecall{}
		}
		return r.Results
	}).Unwrap()
}

func (c *Client) validate(v string) error {
	if !c.cfg.ValidateVINs {
		return nil
	}
	return vin.Validate(v)
}

// get performs one GET through the limiter and breaker and returns the body.
func (c *Client) get(ctx context.Context, url string) fn.Result[[]byte] {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fn.Errf[[]byte]("%w: rate limiter: %v", vin.ErrNetwork, err)
		}
	}
	if c.breaker == nil {
		return c.doGet(ctx, url)
	}
	r := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[[]byte] {
		return c.doGet(ctx, url)
	})
	if _, err := r.Unwrap(); errors.Is(err, resilience.ErrCircuitOpen) {
		return fn.Errf[[]byte]("%w: %v", vin.ErrNetwork, err)
	}
	return r
}

func (c *Client) doGet(ctx context.Context, url string) fn.Result[[]byte] {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fn.Errf[[]byte]("%w: build request: %v", vin.ErrNetwork, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fn.Errf[[]byte]("%w: %v", vin.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fn.Errf[[]byte]("%w: unexpected status %d from %s", vin.ErrNetwork, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fn.Errf[[]byte]("%w: read body: %v", vin.ErrNetwork, err)
	}
	return fn.Ok(body)
}

func parse[T any](body []byte) fn.Result[T] {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return fn.Errf[T]("%w: %v", vin.ErrParse, err)
	}
	return fn.Ok(v)
}
