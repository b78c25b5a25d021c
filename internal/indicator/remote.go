package indicator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"marketlens/internal/marketdata/normalize"
	"marketlens/internal/model"

	"github.com/tidwall/gjson"
)

// TechnicalSource returns a pre-computed indicator payload.
type TechnicalSource interface {
	Technical(ctx context.Context, symbol string, q model.TechnicalQuery) (gjson.Result, error)
}

// PartialError reports remote indicators that failed. The accompanying
// set has those fields nil and every other field populated.
type PartialError struct {
	Failed []string
	Errs   []error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial indicator failure: %s", strings.Join(e.Failed, ", "))
}

// Unwrap exposes the underlying failures to errors.Is.
func (e *PartialError) Unwrap() []error { return e.Errs }

// Remote fetches the indicator set from a TechnicalSource, one
// independent request per indicator.
type Remote struct {
	src TechnicalSource
}

// NewRemote creates a remote engine.
func NewRemote(src TechnicalSource) *Remote {
	return &Remote{src: src}
}

type remoteJob struct {
	name  string
	query model.TechnicalQuery
	key   string
}

func remoteJobs(from, to time.Time) []remoteJob {
	return []remoteJob{
		{"rsi", model.TechnicalQuery{Function: "rsi", Period: RSIPeriod, Filter: "last_rsi", From: from, To: to}, "rsi"},
		{"sma20", model.TechnicalQuery{Function: "sma", Period: SMAFast, Filter: "last_sma", From: from, To: to}, "sma"},
		{"sma50", model.TechnicalQuery{Function: "sma", Period: SMASlow, Filter: "last_sma", From: from, To: to}, "sma"},
		{"ema20", model.TechnicalQuery{Function: "ema", Period: EMAPeriod, Filter: "last_ema", From: from, To: to}, "ema"},
		{"macd", model.TechnicalQuery{Function: "macd", Fast: MACDFast, Slow: MACDSlow, Signal: MACDSignal, From: from, To: to}, "macd"},
	}
}

// Compute runs all indicator requests concurrently. A failed request
// leaves its field nil and is listed in the returned *PartialError.
func (r *Remote) Compute(ctx context.Context, w Window) (model.IndicatorSet, error) {
	jobs := remoteJobs(time.Unix(w.From, 0).UTC(), time.Unix(w.To, 0).UTC())

	type outcome struct {
		rec gjson.Result
		err error
	}
	results := make([]outcome, len(jobs))

	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j remoteJob) {
			defer wg.Done()
			res, err := r.src.Technical(ctx, w.Symbol, j.query)
			if err != nil {
				results[i] = outcome{err: err}
				return
			}
			rec, ok := Latest(res)
			if !ok {
				results[i] = outcome{err: fmt.Errorf("%w: empty %s series", model.ErrNoData, j.name)}
				return
			}
			results[i] = outcome{rec: rec}
		}(i, j)
	}
	wg.Wait()

	var (
		set     model.IndicatorSet
		partial PartialError
	)
	for i, j := range jobs {
		o := results[i]
		if o.err == nil {
			if j.name == "macd" {
				set.MACD = macdValue(o.rec)
				if set.MACD == nil {
					o.err = fmt.Errorf("%w: macd value missing", model.ErrNoData)
				}
			} else {
				v := scalarValue(o.rec, j.key)
				if v == nil {
					o.err = fmt.Errorf("%w: %s value missing", model.ErrNoData, j.name)
				}
				switch j.name {
				case "rsi":
					set.RSI = v
				case "sma20":
					set.SMA20 = v
				case "sma50":
					set.SMA50 = v
				case "ema20":
					set.EMA20 = v
				}
			}
		}
		if o.err != nil {
			partial.Failed = append(partial.Failed, j.name)
			partial.Errs = append(partial.Errs, o.err)
		}
	}

	if len(partial.Failed) > 0 {
		return set, &partial
	}
	return set, nil
}

// Latest picks the most recent record of a technical payload. It accepts
// a bare number, a single object, an array (latest "date" wins, else the
// last element) or an object wrapping the array under "technical".
func Latest(res gjson.Result) (gjson.Result, bool) {
	if res.IsObject() {
		if inner := res.Get("technical"); inner.Exists() {
			res = inner
		}
	}
	switch {
	case res.IsArray():
		arr := res.Array()
		if len(arr) == 0 {
			return gjson.Result{}, false
		}
		if arr[0].Get("date").Exists() {
			sort.SliceStable(arr, func(i, j int) bool {
				return arr[i].Get("date").String() < arr[j].Get("date").String()
			})
		}
		return arr[len(arr)-1], true
	case res.IsObject(), res.Type == gjson.Number, res.Type == gjson.String:
		return res, true
	default:
		return gjson.Result{}, false
	}
}

// scalarValue reads key from rec, or rec itself when it is a bare number.
func scalarValue(rec gjson.Result, key string) *float64 {
	if rec.Type == gjson.Number || rec.Type == gjson.String {
		v := normalize.Number(gjson.Parse(`{"v":`+rec.Raw+`}`), []string{"v"})
		return finite(v)
	}
	return finite(normalize.Number(rec, []string{key, "value"}))
}

var histogramFields = []string{"histogram", "divergence", "hist"}

func macdValue(rec gjson.Result) *model.MACD {
	m := finite(normalize.Number(rec, []string{"macd"}))
	s := finite(normalize.Number(rec, []string{"signal"}))
	h := finite(normalize.Number(rec, histogramFields))
	if h == nil && m != nil && s != nil {
		h = model.Float(*m - *s)
	}
	if m == nil && s == nil && h == nil {
		return nil
	}
	return &model.MACD{MACD: m, Signal: s, Histogram: h}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
