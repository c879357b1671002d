package us

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/polygon-io/client-go/rest/models"
)

func TestTimeFrameFor(t *testing.T) {
	tests := []struct {
		period string
		want   marketdata.TimeFrame
	}{
		{"daily", marketdata.OneDay},
		{"", marketdata.OneDay},
		{"Weekly", marketdata.NewTimeFrame(1, marketdata.Week)},
		{"monthly", marketdata.NewTimeFrame(1, marketdata.Month)},
	}
	for _, tt := range tests {
		got, err := TimeFrameFor(tt.period)
		if err != nil || got != tt.want {
			t.Errorf("TimeFrameFor(%q) = %v, %v; want %v", tt.period, got, err, tt.want)
		}
	}
	if _, err := TimeFrameFor("hourly"); err == nil {
		t.Error("TimeFrameFor(hourly) should fail")
	}
}

func TestAdjustmentFor(t *testing.T) {
	for _, in := range []string{"raw", "split", "dividend", "all", "ALL"} {
		if _, err := AdjustmentFor(in); err != nil {
			t.Errorf("AdjustmentFor(%q): %v", in, err)
		}
	}
	if got, _ := AdjustmentFor(""); got != marketdata.Adjustment("all") {
		t.Errorf("default adjustment = %q, want all", got)
	}
	if _, err := AdjustmentFor("qfq"); err == nil {
		t.Error("AdjustmentFor(qfq) should fail")
	}
}

func TestTimespanFor(t *testing.T) {
	if ts, err := TimespanFor("daily"); err != nil || ts != models.Day {
		t.Errorf("TimespanFor(daily) = %v, %v", ts, err)
	}
	if ts, err := TimespanFor("monthly"); err != nil || ts != models.Month {
		t.Errorf("TimespanFor(monthly) = %v, %v", ts, err)
	}
	if _, err := TimespanFor("yearly"); err == nil {
		t.Error("TimespanFor(yearly) should fail")
	}
}

func TestParseCalendarDays(t *testing.T) {
	days, err := parseCalendarDays([]alpaca.CalendarDay{{Date: "2024-01-12"}, {Date: "2024-01-10"}, {Date: "2024-01-11"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 3 || !days[2].Equal(time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("days = %v", days)
	}
	if _, err := parseCalendarDays([]alpaca.CalendarDay{{Date: "12/01/2024"}}); err == nil {
		t.Error("expected a parse error")
	}
}

func TestChunk(t *testing.T) {
	items := []string{"A", "B", "C", "D", "E"}
	got := chunk(items, 2)
	if len(got) != 3 || len(got[2]) != 1 || got[2][0] != "E" {
		t.Errorf("chunk = %v", got)
	}
	if got := chunk(nil, 2); len(got) != 0 {
		t.Errorf("chunk(nil) = %v", got)
	}
}

func TestInRange(t *testing.T) {
	start := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	if !inRange(end, start, end) || !inRange(start, start, end) {
		t.Error("bounds should be inclusive")
	}
	if inRange(end.AddDate(0, 0, 1), start, end) || inRange(start.AddDate(0, 0, -1), start, end) {
		t.Error("dates outside the range were accepted")
	}
}

func TestWithContextReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	_, err := withContext(ctx, func() (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestWithContextPassesResult(t *testing.T) {
	got, err := withContext(context.Background(), func() (string, error) { return "ok", nil })
	if err != nil || got != "ok" {
		t.Errorf("got %q, %v", got, err)
	}
}
