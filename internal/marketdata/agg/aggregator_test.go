package agg

import (
	"testing"

	"marketlens/internal/model"
)

func seedSeries() *Series {
	return NewSeries(60, []model.Bar{
		{Time: 0, Open: 100, High: 101, Low: 99, Close: 100.5},
		{Time: 60, Open: 100.5, High: 102, Low: 100, Close: 101},
	})
}

func TestSeries_SameBucketUpdatesTail(t *testing.T) {
	s := seedSeries()

	if got := s.MergeTick(103, 95); got != Updated {
		t.Fatalf("expected Updated, got %s", got)
	}
	if got := s.MergeTick(99.5, 119); got != Updated {
		t.Fatalf("expected Updated, got %s", got)
	}

	tail, _ := s.Tail()
	want := model.Bar{Time: 60, Open: 100.5, High: 103, Low: 99.5, Close: 99.5}
	if tail != want {
		t.Errorf("got %+v, want %+v", tail, want)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 bars, got %d", s.Len())
	}
}

func TestSeries_LaterBucketAppends(t *testing.T) {
	s := seedSeries()

	if got := s.MergeTick(104, 185); got != Appended {
		t.Fatalf("expected Appended, got %s", got)
	}
	tail, _ := s.Tail()
	want := model.Bar{Time: 180, Open: 104, High: 104, Low: 104, Close: 104}
	if tail != want {
		t.Errorf("got %+v, want %+v", tail, want)
	}
}

func TestSeries_OlderTickUpdatesTailWithoutRegressing(t *testing.T) {
	s := seedSeries()

	s.MergeTick(100.2, 10) // bucket 0, behind the tail
	tail, _ := s.Tail()
	if tail.Time != 60 || tail.Close != 100.2 {
		t.Errorf("expected tail at 60 with close 100.2, got %+v", tail)
	}
}

func TestSeries_MergeCandle(t *testing.T) {
	s := seedSeries()

	got := s.MergeCandle(model.Bar{Time: 130, Open: 101, High: 105, Low: 100.8, Close: 104, Volume: 9})
	if got != Appended {
		t.Fatalf("expected Appended, got %s", got)
	}
	tail, _ := s.Tail()
	if tail.Time != 120 || tail.Volume != 9 {
		t.Errorf("candle not bucket-aligned: %+v", tail)
	}

	got = s.MergeCandle(model.Bar{Time: 150, Open: 104, High: 106, Low: 103, Close: 105.5})
	if got != Updated {
		t.Fatalf("expected Updated, got %s", got)
	}
	tail, _ = s.Tail()
	if tail.Open != 101 || tail.High != 106 || tail.Low != 100.8 || tail.Close != 105.5 {
		t.Errorf("tail merge wrong: %+v", tail)
	}
}

func TestSeries_PriceDeviationGuard(t *testing.T) {
	s := seedSeries()
	dropped := 0
	s.OnDroppedTick = func() { dropped++ }

	if got := s.MergePrice(120, 200); got != Rejected {
		t.Errorf("expected 120 vs 101 to be rejected, got %s", got)
	}
	if got := s.MergePrice(0, 200); got != Rejected {
		t.Errorf("expected zero price to be rejected, got %s", got)
	}
	if got := s.MergePrice(105, 200); got != Appended {
		t.Errorf("expected 105 vs 101 to be accepted, got %s", got)
	}
	if dropped != 2 {
		t.Errorf("expected 2 drops, got %d", dropped)
	}
}

func TestSeries_EmptyAppends(t *testing.T) {
	s := NewSeries(300, nil)
	if got := s.MergeTick(10, 301); got != Appended {
		t.Fatalf("expected Appended, got %s", got)
	}
	tail, _ := s.Tail()
	if tail.Time != 300 {
		t.Errorf("expected bucket 300, got %d", tail.Time)
	}
}

func TestSeries_BarsIsCopy(t *testing.T) {
	s := seedSeries()
	snap := s.Bars()
	s.MergeTick(200, 65)
	if snap[1].Close == 200 {
		t.Error("snapshot aliased the live series")
	}
}
