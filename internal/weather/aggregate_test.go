package weather

import (
	"testing"
	"time"
)

func sample(ts int64, temp float64, desc string) RawForecastSample {
	return RawForecastSample{TimestampUTC: ts, TemperatureC: temp, HumidityPct: 70, WindSpeed: 2, Description: desc}
}

func TestLocalDayNumber(t *testing.T) {
	tests := []struct {
		name   string
		ts     int64
		offset int
		want   int64
	}{
		{"epoch", 0, 0, 0},
		{"last second of day", 86399, 0, 0},
		{"east pushes forward", 86400 - 3600, 3600, 1},
		{"west pulls back", 3600, -7200, -1},
		{"negative timestamp", -1, 0, -1},
		{"exact negative day", -86400, 0, -1},
		{"half hour offset", 86400 - 1800, 19800, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LocalDayNumber(tt.ts, tt.offset); got != tt.want {
				t.Errorf("LocalDayNumber(%d, %d) = %d, want %d", tt.ts, tt.offset, got, tt.want)
			}
		})
	}
}

func TestLocalDate(t *testing.T) {
	// 2024-06-10 20:00 UTC is 04:00 on 2024-06-11 in UTC+8.
	ts := time.Date(2024, 6, 10, 20, 0, 0, 0, time.UTC).Unix()
	if got := LocalDate(ts, 8*3600).Format(time.DateOnly); got != "2024-06-11" {
		t.Errorf("LocalDate = %s, want 2024-06-11", got)
	}
	if got := LocalDate(ts, -5*3600).Format(time.DateOnly); got != "2024-06-10" {
		t.Errorf("LocalDate = %s, want 2024-06-10", got)
	}
}

func TestAggregateDaily_GroupsByLocalDate(t *testing.T) {
	const offset = 8 * 3600
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC).Unix()

	// Nine 3-hourly samples covering T..T+24h.
	var samples []RawForecastSample
	for i := 0; i <= 8; i++ {
		samples = append(samples, sample(start+int64(i)*3*3600, float64(10+i), "clear sky"))
	}

	days := AggregateDaily(samples, offset)

	total := 0
	for _, d := range days {
		total += d.Samples
	}
	if total != len(samples) {
		t.Errorf("grouped %d samples, want %d", total, len(samples))
	}

	want := map[string]int{}
	for _, s := range samples {
		want[LocalDate(s.TimestampUTC, offset).Format(time.DateOnly)]++
	}
	if len(days) != len(want) {
		t.Fatalf("got %d days, want %d", len(days), len(want))
	}
	for _, d := range days {
		if d.Samples != want[d.DateString()] {
			t.Errorf("%s: %d samples, want %d", d.DateString(), d.Samples, want[d.DateString()])
		}
	}

	// 00:00..15:00 UTC fall on the 10th locally, 16:00 onwards on the 11th.
	if days[0].DateString() != "2024-06-10" || days[0].Samples != 6 {
		t.Errorf("first day = %s with %d samples", days[0].DateString(), days[0].Samples)
	}
	if days[1].DateString() != "2024-06-11" || days[1].Samples != 3 {
		t.Errorf("second day = %s with %d samples", days[1].DateString(), days[1].Samples)
	}
}

func TestAggregateDaily_Statistics(t *testing.T) {
	base := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC).Unix()
	samples := []RawForecastSample{
		{TimestampUTC: base, TemperatureC: -3.5, HumidityPct: 80, WindSpeed: 1, Description: "snow"},
		{TimestampUTC: base + 3*3600, TemperatureC: 0.5, HumidityPct: 70, WindSpeed: 3, Description: "overcast clouds"},
		{TimestampUTC: base + 6*3600, TemperatureC: 4, HumidityPct: 60, WindSpeed: 5, Description: "snow"},
	}

	days := AggregateDaily(samples, 0)
	if len(days) != 1 {
		t.Fatalf("got %d days, want 1", len(days))
	}
	d := days[0]
	if d.TempMin != -3.5 || d.TempMax != 4 {
		t.Errorf("min/max = %v/%v", d.TempMin, d.TempMax)
	}
	if d.TempAvg != 1.0/3.0 {
		t.Errorf("avg = %v", d.TempAvg)
	}
	if d.HumidityAvg != 70 || d.WindAvg != 3 {
		t.Errorf("humidity/wind = %v/%v", d.HumidityAvg, d.WindAvg)
	}
	if d.Description != "snow" {
		t.Errorf("description = %q", d.Description)
	}
	if !d.Date.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", d.Date)
	}
}

func TestAggregateDaily_AverageWithinRange(t *testing.T) {
	base := int64(1_700_000_000)
	temps := []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	var samples []RawForecastSample
	for i, temp := range temps {
		samples = append(samples, sample(base+int64(i)*60, temp, "mist"))
	}

	for _, d := range AggregateDaily(samples, 0) {
		if d.TempAvg < d.TempMin || d.TempAvg > d.TempMax {
			t.Errorf("avg %v outside [%v, %v]", d.TempAvg, d.TempMin, d.TempMax)
		}
	}
}

func TestAggregateDaily_DescriptionTieBreak(t *testing.T) {
	tests := []struct {
		name  string
		descs []string
		want  string
	}{
		{"majority", []string{"clear", "clouds", "clear"}, "clear"},
		{"tie goes to first seen", []string{"clear", "clouds"}, "clear"},
		{"tie in reverse order", []string{"clouds", "clear"}, "clouds"},
		{"late majority", []string{"rain", "clear", "clear"}, "clear"},
		{"single", []string{"fog"}, "fog"},
	}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var samples []RawForecastSample
			for i, desc := range tt.descs {
				samples = append(samples, sample(base+int64(i)*3*3600, 1, desc))
			}
			days := AggregateDaily(samples, 0)
			if len(days) != 1 {
				t.Fatalf("got %d days", len(days))
			}
			if days[0].Description != tt.want {
				t.Errorf("description = %q, want %q", days[0].Description, tt.want)
			}
		})
	}
}

func TestAggregateDaily_OrderAndPartialDays(t *testing.T) {
	base := time.Date(2024, 6, 10, 21, 0, 0, 0, time.UTC).Unix()
	// Out of order input, one sample on the first day and two on the second.
	samples := []RawForecastSample{
		sample(base+6*3600, 5, "rain"),
		sample(base, 7, "rain"),
		sample(base+3*3600, 6, "rain"),
	}

	days := AggregateDaily(samples, 0)
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2", len(days))
	}
	if !days[0].Date.Before(days[1].Date) {
		t.Error("days not in ascending order")
	}
	if days[0].Samples != 1 || days[1].Samples != 2 {
		t.Errorf("sample counts = %d, %d", days[0].Samples, days[1].Samples)
	}
}

func TestAggregateDaily_Empty(t *testing.T) {
	if days := AggregateDaily(nil, 3600); len(days) != 0 {
		t.Errorf("got %d days from no samples", len(days))
	}
}

func TestAggregateDaily_NegativeOffsetMovesSamplesBack(t *testing.T) {
	// 02:00 UTC on the 10th is still the 9th in UTC-5.
	ts := time.Date(2024, 6, 10, 2, 0, 0, 0, time.UTC).Unix()
	days := AggregateDaily([]RawForecastSample{sample(ts, 12, "clear sky")}, -5*3600)
	if len(days) != 1 || days[0].DateString() != "2024-06-09" {
		t.Errorf("days = %+v", days)
	}
}

func TestDailySummary_Describe(t *testing.T) {
	d := DailySummary{
		Date:        time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC),
		TempMin:     2,
		TempMax:     9.46,
		HumidityAvg: 70.6,
		WindAvg:     3.25,
		Description: "light rain",
	}
	want := "Forecast for Irkutsk, RU tomorrow (2024-06-11): light rain, 2.0°C to 9.5°C, humidity 71%, wind 3.2 m/s."
	if got := d.Describe("Irkutsk, RU", 1); got != want {
		t.Errorf("Describe() = %q\nwant         %q", got, want)
	}
}

func TestDayLabel(t *testing.T) {
	for offset, want := range map[int]string{0: "today", 1: "tomorrow", 3: "in 3 days"} {
		if got := DayLabel(offset); got != want {
			t.Errorf("DayLabel(%d) = %q, want %q", offset, got, want)
		}
	}
}
