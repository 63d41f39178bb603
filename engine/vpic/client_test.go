package vpic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WessleyAI/vinsync/engine/record"
	"github.com/WessleyAI/vinsync/engine/vin"
)

const testVIN = "WBA3A5C51CFC56651"

func decodeBody(pairs ...string) map[string]any {
	var results []map[string]any
	for i := 0; i+1 < len(pairs); i += 2 {
		results = append(results, map[string]any{"Variable": pairs[i], "Value": pairs[i+1]})
	}
	return map[string]any{"Count": len(results), "Message": "Results returned successfully", "Results": results}
}

func newTestServer(t *testing.T, hits *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDecodeSuccess(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/decodevin/"+testVIN {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("expected format=json, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected User-Agent header")
		}
		json.NewEncoder(w).Encode(decodeBody(
			"Model", "X5",
			"ModelYear", "2020",
			"BodyClass", "Sport Utility Vehicle (SUV)/Multi-Purpose Vehicle (MPV)",
			"EngineConfiguration", "In-Line",
			"TransmissionStyle", "0",
			"DriveType", "",
		))
	})

	c := New(Config{BaseURL: srv.URL}, nil)
	rec, err := c.Decode(context.Background(), testVIN)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.VIN != testVIN || rec.Series != vin.Series5 || rec.ModelYear != 2020 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Transmission != vin.Unknown || rec.DriveType != vin.Unknown {
		t.Errorf("empty and zero values must fall back to Unknown: %+v", rec)
	}
	if rec.ManufacturingPlant != "Munich, Germany" {
		t.Errorf("unexpected plant %q", rec.ManufacturingPlant)
	}
	if rec.ProductionDate != nil {
		t.Error("expected no production date")
	}
}

func TestDecodeNullValues(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Count":2,"Results":[{"Variable":"Model","Value":null},{"Variable":"ModelYear","Value":null}]}`))
	})
	rec, err := New(Config{BaseURL: srv.URL}, nil).Decode(context.Background(), testVIN)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.ModelName != vin.Unknown || rec.ModelYear != 0 {
		t.Fatalf("null values should fall back to defaults: %+v", rec)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(404) }, vin.ErrNetwork},
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }, vin.ErrNetwork},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(429) }, vin.ErrNetwork},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html>oops</html>")) }, vin.ErrParse},
		{"no results", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"Count":0}`)) }, vin.ErrParse},
		{"bad model year", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(decodeBody("ModelYear", "twenty"))
		}, vin.ErrConversion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil, tt.handler)
			_, err := New(Config{BaseURL: srv.URL}, nil).Decode(context.Background(), testVIN)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodeUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, nil)
	_, err := c.Decode(context.Background(), testVIN)
	if !errors.Is(err, vin.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestDecodeCancelledContext(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(decodeBody("Model", "X5"))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{BaseURL: srv.URL}, nil).Decode(ctx, testVIN)
	if !errors.Is(err, vin.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestDecodeValidationSkipsNetwork(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(decodeBody("Model", "X5"))
	})
	c := New(Config{BaseURL: srv.URL, ValidateVINs: true}, nil)

	for _, bad := range []string{"5UXCW2C09L9C15882", "1HGCM82633A004352", "JTDKB20U793456789"} {
		_, err := c.Decode(context.Background(), bad)
		if !errors.Is(err, vin.ErrUnsupportedPrefix) {
			t.Errorf("%s: expected ErrUnsupportedPrefix, got %v", bad, err)
		}
	}
	if _, err := c.Decode(context.Background(), "WBA123"); !errors.Is(err, vin.ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
	if _, err := c.FetchRecalls(context.Background(), "5UXCW2C09L9C15882"); !errors.Is(err, vin.ErrUnsupportedPrefix) {
		t.Errorf("expected recall validation, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}

	if _, err := c.Decode(context.Background(), testVIN); err != nil {
		t.Fatalf("valid VIN: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}
}

func TestDecodeValidationDisabledByDefault(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(decodeBody("Model", "X5"))
	})
	if _, err := New(Config{BaseURL: srv.URL}, nil).Decode(context.Background(), "5UXCW2C09L9C15882"); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatal("expected the request to be made")
	}
}

func TestDecodeIdempotent(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(decodeBody("Model", "M340i", "ModelYear", "2021", "DateProduced", "2020-10"))
	})
	c := New(Config{BaseURL: srv.URL}, nil)
	a, err := c.Decode(context.Background(), testVIN)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	b, err := c.Decode(context.Background(), testVIN)
	if err != nil {
		t.Fatal(err)
	}
	if a.DecodedDate == b.DecodedDate {
		t.Error("decoded_date should differ between decodes")
	}
	ra, rb := a.Record(), b.Record()
	delete(ra, "decoded_date")
	delete(rb, "decoded_date")
	for k, v := range ra {
		if rb[k] != v {
			t.Errorf("%s differs: %v vs %v", k, v, rb[k])
		}
	}
}

func TestFetchRecalls(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/recalls/vin/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"Count":2,"Results":[
			{"CampaignNumber":"21V001000","Component":"AIR BAGS","Summary":"s1"},
			{"CampaignNumber":"19V002000","Remedy":"Dealers will replace"}]}`))
	})
	recalls, err := New(Config{BaseURL: srv.URL}, nil).FetchRecalls(context.Background(), testVIN)
	if err != nil {
		t.Fatalf("FetchRecalls: %v", err)
	}
	if len(recalls) != 2 {
		t.Fatalf("expected 2 recalls, got %d", len(recalls))
	}
	if recalls[0][record.KeyCampaignNumber] != "21V001000" || recalls[1][record.KeyRemedy] != "Dealers will replace" {
		t.Fatalf("recalls not returned verbatim: %v", recalls)
	}
}

func TestFetchRecallsNoResults(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Count":0,"Message":"No results"}`))
	})
	recalls, err := New(Config{BaseURL: srv.URL}, nil).FetchRecalls(context.Background(), testVIN)
	if err != nil {
		t.Fatalf("FetchRecalls: %v", err)
	}
	if recalls == nil || len(recalls) != 0 {
		t.Fatalf("expected empty list, got %v", recalls)
	}
}

func TestFetchRecallsErrors(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(503) })
	if _, err := New(Config{BaseURL: srv.URL}, nil).FetchRecalls(context.Background(), testVIN); !errors.Is(err, vin.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	bad := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("{")) })
	if _, err := New(Config{BaseURL: bad.URL}, nil).FetchRecalls(context.Background(), testVIN); !errors.Is(err, vin.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(502) })
	c := New(Config{BaseURL: srv.URL, BreakerThreshold: 2, BreakerTimeout: time.Minute}, nil)

	for i := 0; i < 4; i++ {
		if _, err := c.Decode(context.Background(), testVIN); !errors.Is(err, vin.ErrNetwork) {
			t.Fatalf("call %d: expected ErrNetwork, got %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("expected breaker to stop requests after 2, got %d", n)
	}
}

func TestParseErrorsDoNotTripBreaker(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits, func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("nope")) })
	c := New(Config{BaseURL: srv.URL, BreakerThreshold: 1, BreakerTimeout: time.Minute}, nil)
	for i := 0; i < 3; i++ {
		c.Decode(context.Background(), testVIN)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected 3 requests, got %d", n)
	}
}

func TestRateLimitPacesRequests(t *testing.T) {
	srv := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(decodeBody("Model", "X5"))
	})
	c := New(Config{BaseURL: srv.URL, RateLimit: 20}, nil)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Decode(context.Background(), testVIN); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("expected pacing of ~50ms per request, took %v", elapsed)
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{BaseURL: "http://example.test/api/"}, nil)
	if c.cfg.BaseURL != "http://example.test/api" {
		t.Errorf("expected trailing slash trimmed, got %s", c.cfg.BaseURL)
	}
	if c.cfg.Timeout != 30*time.Second {
		t.Errorf("unexpected timeout %v", c.cfg.Timeout)
	}
	if c.limiter != nil || c.breaker != nil {
		t.Error("limiter and breaker should be off by default")
	}
	if New(Config{}, nil).cfg.BaseURL != DefaultBaseURL {
		t.Error("expected default base URL")
	}
}
