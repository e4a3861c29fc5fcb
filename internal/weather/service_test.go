package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/store"
)

type fakeProvider struct {
	mu sync.Mutex

	places   map[string]Place
	current  CurrentConditions
	forecast ForecastSeries
	err      error

	geocodeCalls  int
	currentCalls  int
	forecastCalls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Geocode(_ context.Context, city string) (Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geocodeCalls++
	if f.err != nil {
		return Place{}, f.err
	}
	p, ok := f.places[NormalizeCity(city)]
	if !ok {
		return Place{}, fmt.Errorf("%w: %q", ErrLocationNotFound, city)
	}
	return p, nil
}

func (f *fakeProvider) Current(context.Context, Coordinates) (CurrentConditions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentCalls++
	return f.current, f.err
}

func (f *fakeProvider) Forecast(context.Context, Coordinates) (ForecastSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forecastCalls++
	return f.forecast, f.err
}

var irkutsk = Place{
	Name:             "Irkutsk",
	Country:          "RU",
	Coordinates:      Coordinates{Latitude: 52.2978, Longitude: 104.2964},
	UTCOffsetSeconds: 8 * 3600,
}

// fiveDaySeries returns 40 3-hourly samples starting at start.
func fiveDaySeries(start time.Time, offset int) ForecastSeries {
	samples := make([]RawForecastSample, 40)
	for i := range samples {
		samples[i] = RawForecastSample{
			TimestampUTC: start.Unix() + int64(i)*3*3600,
			TemperatureC: float64(i % 8),
			HumidityPct:  60,
			WindSpeed:    2,
			Description:  "clear sky",
		}
	}
	return ForecastSeries{UTCOffsetSeconds: offset, Samples: samples}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, p Provider, opts ...Option) (*Service, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 6, 10, 1, 0, 0, 0, time.UTC)}
	cache := store.NewMemoryStoreWithClock(clk.Now)
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return NewService(p, cache, opts...), clk
}

func newFake() *fakeProvider {
	return &fakeProvider{
		places: map[string]Place{"irkutsk,ru": irkutsk, "irkutsk": irkutsk},
		current: CurrentConditions{
			Name: "Irkutsk", Country: "RU",
			TemperatureC: 21.04, HumidityPct: 40, WindSpeed: 4.26, Description: "few clouds",
		},
		forecast: fiveDaySeries(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), 8*3600),
	}
}

func TestService_Current(t *testing.T) {
	p := newFake()
	svc, _ := newTestService(t, p)

	got, err := svc.Current(context.Background(), "Irkutsk,ru")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	want := "Current weather in Irkutsk, RU: 21.0°C, few clouds, humidity 40%, wind 4.3 m/s."
	if got.String() != want {
		t.Errorf("String() = %q\nwant        %q", got.String(), want)
	}
	if got.TemperatureC != 21.04 {
		t.Errorf("temperature must keep full precision, got %v", got.TemperatureC)
	}
}

func TestService_CacheHitWithinTTL(t *testing.T) {
	p := newFake()
	svc, clk := newTestService(t, p, WithTTLs(TTLs{Geocode: time.Hour, Current: 10 * time.Minute}))
	ctx := context.Background()

	for n := 0; n < 3; n++ {
		if _, err := svc.Current(ctx, "Irkutsk,ru"); err != nil {
			t.Fatalf("Current: %v", err)
		}
		clk.Advance(time.Minute)
	}
	if p.geocodeCalls != 1 || p.currentCalls != 1 {
		t.Errorf("calls geocode=%d current=%d, want 1/1", p.geocodeCalls, p.currentCalls)
	}

	// Past the current TTL, but the geocode entry is still fresh.
	clk.Advance(10 * time.Minute)
	if _, err := svc.Current(ctx, "irkutsk,RU"); err != nil {
		t.Fatalf("Current: %v", err)
	}
	if p.geocodeCalls != 1 || p.currentCalls != 2 {
		t.Errorf("calls geocode=%d current=%d, want 1/2", p.geocodeCalls, p.currentCalls)
	}
}

func TestService_ExactTTLIsStale(t *testing.T) {
	p := newFake()
	svc, clk := newTestService(t, p, WithTTLs(TTLs{Geocode: time.Minute}))
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, "Irkutsk"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)
	if _, err := svc.Resolve(ctx, "Irkutsk"); err != nil {
		t.Fatal(err)
	}
	if p.geocodeCalls != 2 {
		t.Errorf("geocode calls = %d, want 2", p.geocodeCalls)
	}
}

type brokenStore struct {
	store.Store
	getErr, putErr error
}

func (b brokenStore) Get(ctx context.Context, key string) (*store.Entry, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.Store.Get(ctx, key)
}

func (b brokenStore) Put(ctx context.Context, key string, payload json.RawMessage) error {
	if b.putErr != nil {
		return b.putErr
	}
	return b.Store.Put(ctx, key, payload)
}

func TestService_CacheFailuresFallBackToLiveFetch(t *testing.T) {
	p := newFake()
	cache := brokenStore{
		Store:  store.NewMemoryStore(),
		getErr: errors.New("disk on fire"),
		putErr: errors.New("read-only file system"),
	}
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("test", reg)
	svc := NewService(p, cache, WithMetrics(m))

	for n := 0; n < 2; n++ {
		if _, err := svc.Current(context.Background(), "Irkutsk"); err != nil {
			t.Fatalf("Current: %v", err)
		}
	}
	if p.currentCalls != 2 {
		t.Errorf("current calls = %d, want 2", p.currentCalls)
	}
	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("current", "error")); got != 2 {
		t.Errorf("cache lookup errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheWriteErrorsTotal.WithLabelValues("geocode")); got != 2 {
		t.Errorf("cache write errors = %v, want 2", got)
	}
}

func TestService_UndecodableEntryIsRefetched(t *testing.T) {
	p := newFake()
	cache := store.NewMemoryStore()
	svc := NewService(p, cache)
	ctx := context.Background()

	if err := cache.Put(ctx, GeocodeKey("fake", "Irkutsk"), json.RawMessage(`"not a place"`)); err != nil {
		t.Fatal(err)
	}
	place, err := svc.Resolve(ctx, "Irkutsk")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if place.Name != "Irkutsk" || p.geocodeCalls != 1 {
		t.Errorf("place = %+v, geocode calls = %d", place, p.geocodeCalls)
	}
}

func TestService_ResolveErrors(t *testing.T) {
	p := newFake()
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	for _, city := range []string{"", "   "} {
		if _, err := svc.Resolve(ctx, city); !errors.Is(err, ErrLocationNotFound) {
			t.Errorf("Resolve(%q) err = %v, want ErrLocationNotFound", city, err)
		}
	}
	if p.geocodeCalls != 0 {
		t.Errorf("empty names must not reach the provider, got %d calls", p.geocodeCalls)
	}

	if _, err := svc.ResolveLocation(ctx, "Atlantis"); !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("err = %v, want ErrLocationNotFound", err)
	}

	coords, err := svc.ResolveLocation(ctx, " irkutsk ")
	if err != nil {
		t.Fatalf("ResolveLocation: %v", err)
	}
	if coords != irkutsk.Coordinates {
		t.Errorf("coords = %+v", coords)
	}
}

func TestService_UpstreamErrorsPropagate(t *testing.T) {
	for _, sentinel := range []error{ErrNetworkTransient, ErrNetworkClient} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			p := newFake()
			p.err = fmt.Errorf("%w: upstream said no", sentinel)
			svc, _ := newTestService(t, p)

			_, err := svc.Current(context.Background(), "Irkutsk")
			if !errors.Is(err, sentinel) {
				t.Fatalf("err = %v, want %v", err, sentinel)
			}

			// Failures are not cached.
			p.err = nil
			if _, err := svc.Current(context.Background(), "Irkutsk"); err != nil {
				t.Fatalf("Current after recovery: %v", err)
			}
		})
	}
}

func TestService_DailyForecast(t *testing.T) {
	p := newFake()
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	// Now is 2024-06-10 09:00 in Irkutsk.
	tests := []struct {
		offset int
		date   string
	}{
		{0, "2024-06-10"},
		{1, "2024-06-11"},
		{4, "2024-06-14"},
	}
	for _, tt := range tests {
		got, err := svc.DailyForecast(ctx, "Irkutsk,ru", tt.offset)
		if err != nil {
			t.Fatalf("DailyForecast(%d): %v", tt.offset, err)
		}
		if got.DateString() != tt.date {
			t.Errorf("DailyForecast(%d) date = %s, want %s", tt.offset, got.DateString(), tt.date)
		}
		if got.TempAvg < got.TempMin || got.TempAvg > got.TempMax {
			t.Errorf("avg %v outside [%v, %v]", got.TempAvg, got.TempMin, got.TempMax)
		}
	}
	if p.forecastCalls != 1 {
		t.Errorf("forecast calls = %d, want 1", p.forecastCalls)
	}
}

func TestService_DailyForecastBeyondHorizon(t *testing.T) {
	p := newFake()
	svc, _ := newTestService(t, p)
	ctx := context.Background()

	_, err := svc.DailyForecast(ctx, "Irkutsk", 10)
	if !errors.Is(err, ErrForecastHorizonExceeded) {
		t.Fatalf("err = %v, want ErrForecastHorizonExceeded", err)
	}
	if !strings.Contains(err.Error(), "2024-06-20") {
		t.Errorf("error should name the requested date: %v", err)
	}

	forecastCalls := p.forecastCalls
	if _, err := svc.DailyForecast(ctx, "Irkutsk", -1); !errors.Is(err, ErrForecastHorizonExceeded) {
		t.Errorf("err = %v, want ErrForecastHorizonExceeded", err)
	}
	if p.forecastCalls != forecastCalls {
		t.Error("negative offsets must not reach the provider")
	}
}

func TestService_DailyForecastEmptySeries(t *testing.T) {
	p := newFake()
	p.forecast = ForecastSeries{UTCOffsetSeconds: 0}
	svc, _ := newTestService(t, p)

	days, err := svc.DailyForecastAll(context.Background(), "Irkutsk")
	if err != nil || len(days) != 0 {
		t.Errorf("DailyForecastAll = %v, %v; want empty, nil", days, err)
	}
	if _, err := svc.DailyForecast(context.Background(), "Irkutsk", 0); !errors.Is(err, ErrForecastHorizonExceeded) {
		t.Errorf("err = %v, want ErrForecastHorizonExceeded", err)
	}
}

func TestService_DailyForecastAll(t *testing.T) {
	p := newFake()
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("test", reg)
	svc, _ := newTestService(t, p, WithMetrics(m))

	days, err := svc.DailyForecastAll(context.Background(), "Irkutsk")
	if err != nil {
		t.Fatalf("DailyForecastAll: %v", err)
	}
	// 40 samples from 08:00 local on the 10th reach 05:00 local on the 15th.
	if len(days) != 6 {
		t.Fatalf("got %d days, want 6", len(days))
	}
	total := 0
	for i, d := range days {
		total += d.Samples
		if i > 0 && !days[i-1].Date.Before(d.Date) {
			t.Errorf("days out of order at %d", i)
		}
	}
	if total != 40 {
		t.Errorf("samples = %d, want 40", total)
	}
	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("forecast", "miss")); got != 1 {
		t.Errorf("forecast misses = %v, want 1", got)
	}
}

func TestCacheKeys(t *testing.T) {
	if GeocodeKey("openweather", "  Irkutsk,RU ") != GeocodeKey("openweather", "irkutsk,ru") {
		t.Error("geocode keys should ignore case and surrounding whitespace")
	}
	if got := GeocodeKey("openweather", "New   York"); got != "openweather:geocode:new york" {
		t.Errorf("GeocodeKey = %q", got)
	}
	if got := CurrentKey("openweather", Coordinates{Latitude: 52.2978, Longitude: 104.2964}); got != "openweather:current:52.30,104.30" {
		t.Errorf("CurrentKey = %q", got)
	}
	if got := ForecastKey("openmeteo", Coordinates{Latitude: -0.001, Longitude: 0.001}); got != "openmeteo:forecast:0.00,0.00" {
		t.Errorf("ForecastKey = %q", got)
	}
	if GeocodeKey("a", "x") == GeocodeKey("b", "x") {
		t.Error("providers must not share keys")
	}
}

func TestCoordinatesValidate(t *testing.T) {
	tests := []struct {
		c       Coordinates
		wantErr bool
	}{
		{Coordinates{52.3, 104.3}, false},
		{Coordinates{-90, 180}, false},
		{Coordinates{90.1, 0}, true},
		{Coordinates{0, -180.5}, true},
	}
	for _, tt := range tests {
		if err := tt.c.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) = %v, wantErr %v", tt.c, err, tt.wantErr)
		}
	}
}

func TestService_ForecastUsesSeriesOffset(t *testing.T) {
	p := newFake()
	p.places["london"] = Place{
		Name:             "London",
		Country:          "GB",
		Coordinates:      Coordinates{Latitude: 51.5085, Longitude: -0.1257},
		UTCOffsetSeconds: 3600,
	}
	// UTC+0 is a real offset and must not be replaced by the cached place's.
	p.forecast = ForecastSeries{
		UTCOffsetSeconds: 0,
		Samples: []RawForecastSample{{
			TimestampUTC: time.Date(2024, 6, 10, 23, 30, 0, 0, time.UTC).Unix(),
			TemperatureC: 14,
			HumidityPct:  70,
			WindSpeed:    3,
			Description:  "mist",
		}},
	}
	svc, _ := newTestService(t, p)

	days, err := svc.DailyForecastAll(context.Background(), "London")
	if err != nil {
		t.Fatalf("DailyForecastAll: %v", err)
	}
	if len(days) != 1 || days[0].Date.Format("2006-01-02") != "2024-06-10" {
		t.Fatalf("days = %+v, want a single 2024-06-10", days)
	}

	today, err := svc.DailyForecast(context.Background(), "London", 0)
	if err != nil {
		t.Fatalf("DailyForecast: %v", err)
	}
	if today.Description != "mist" {
		t.Errorf("today = %+v", today)
	}
}
