package weather

import (
	"sort"
	"time"
)

const secondsPerDay = 86400

// LocalDayNumber returns floor((ts + offset) / 86400): the number of days since
// the epoch of the sample's city-local calendar date.
func LocalDayNumber(timestampUTC int64, utcOffsetSeconds int) int64 {
	shifted := timestampUTC + int64(utcOffsetSeconds)
	day := shifted / secondsPerDay
	if shifted%secondsPerDay < 0 {
		day--
	}
	return day
}

// LocalDate shifts a UTC timestamp by the city offset and truncates to the UTC
// calendar date. Half-hour offsets are not special-cased.
func LocalDate(timestampUTC int64, utcOffsetSeconds int) time.Time {
	return time.Unix(LocalDayNumber(timestampUTC, utcOffsetSeconds)*secondsPerDay, 0).UTC()
}

type dayAccumulator struct {
	day      int64
	n        int
	tempMin  float64
	tempMax  float64
	tempSum  float64
	humSum   float64
	windSum  float64
	counts   map[string]int
	seenList []string
}

func (a *dayAccumulator) add(s RawForecastSample) {
	if a.n == 0 || s.TemperatureC < a.tempMin {
		a.tempMin = s.TemperatureC
	}
	if a.n == 0 || s.TemperatureC > a.tempMax {
		a.tempMax = s.TemperatureC
	}
	a.n++
	a.tempSum += s.TemperatureC
	a.humSum += float64(s.HumidityPct)
	a.windSum += s.WindSpeed

	if _, ok := a.counts[s.Description]; !ok {
		a.seenList = append(a.seenList, s.Description)
	}
	a.counts[s.Description]++
}

func (a *dayAccumulator) summary() DailySummary {
	n := float64(a.n)
	avg := a.tempSum / n
	// Summation error must not push the mean outside the observed range.
	avg = min(max(avg, a.tempMin), a.tempMax)

	return DailySummary{
		Date:        time.Unix(a.day*secondsPerDay, 0).UTC(),
		TempMin:     a.tempMin,
		TempMax:     a.tempMax,
		TempAvg:     avg,
		HumidityAvg: a.humSum / n,
		WindAvg:     a.windSum / n,
		Description: mostFrequent(a.seenList, a.counts),
		Samples:     a.n,
	}
}

// AggregateDaily groups samples by city-local calendar date and summarizes each
// day. The result is ordered by date ascending; days without samples are absent.
func AggregateDaily(samples []RawForecastSample, utcOffsetSeconds int) []DailySummary {
	byDay := make(map[int64]*dayAccumulator)
	for _, s := range samples {
		day := LocalDayNumber(s.TimestampUTC, utcOffsetSeconds)
		acc, ok := byDay[day]
		if !ok {
			acc = &dayAccumulator{day: day, counts: make(map[string]int)}
			byDay[day] = acc
		}
		acc.add(s)
	}

	days := make([]int64, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	out := make([]DailySummary, 0, len(days))
	for _, d := range days {
		out = append(out, byDay[d].summary())
	}
	return out
}

// mostFrequent picks the value with the highest count; ties go to the value
// seen first.
func mostFrequent(order []string, counts map[string]int) string {
	best, bestCount := "", 0
	for _, v := range order {
		if c := counts[v]; c > bestCount {
			best, bestCount = v, c
		}
	}
	return best
}
