package model

import (
	"errors"
	"testing"
)

func TestParseTimeframe_Aliases(t *testing.T) {
	cases := map[string]Timeframe{
		"":        TF1h,
		"1m":      TF1m,
		"M1":      TF1m,
		"05m":     TF5m,
		"15":      TF15m,
		"h1":      TF1h,
		"240m":    TF4h,
		"Daily":   TF1d,
		"weekly":  TF1w,
		"1M":      TF1M,
		"monthly": TF1M,
	}
	for in, want := range cases {
		got, err := ParseTimeframe(in)
		if err != nil {
			t.Fatalf("ParseTimeframe(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseTimeframe(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseTimeframe_Unknown(t *testing.T) {
	_, err := ParseTimeframe("7m")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTimeframe_Seconds(t *testing.T) {
	want := []int64{60, 300, 900, 1800, 3600, 14400, 86400, 604800, 2592000}
	for i, tf := range Timeframes() {
		if tf.Seconds() != want[i] {
			t.Errorf("%s: got %d, want %d", tf, tf.Seconds(), want[i])
		}
	}
	if TF4h.IsIntraday() != true || TF1d.IsIntraday() != false {
		t.Error("IsIntraday boundary wrong")
	}
}

func TestBucketStart(t *testing.T) {
	if got := BucketStart(3599, 3600); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	if got := BucketStart(7200, 3600); got != 7200 {
		t.Errorf("got %d, want 7200", got)
	}
	if got := BucketStart(-1, 60); got != -60 {
		t.Errorf("got %d, want -60", got)
	}
}

func TestBar_Valid(t *testing.T) {
	ok := Bar{Time: 1, Open: 1, High: 2, Low: 0.5, Close: 1.5}
	if !ok.Valid() {
		t.Error("expected valid bar")
	}
	bad := []Bar{
		{Time: 1, Open: 1, High: 1.2, Low: 0.5, Close: 1.5}, // high < close
		{Time: 1, Open: 1, High: 2, Low: 1.2, Close: 1.5},   // low > open
		{Time: 1, Open: 0, High: 2, Low: 0.5, Close: 1.5},   // zero price
		{Time: 1, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: -1},
	}
	for i, b := range bad {
		if b.Valid() {
			t.Errorf("case %d: expected invalid", i)
		}
	}
}
