package symbol

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"sync"

	"marketlens/internal/model"
)

// Hit is one symbol-search result.
type Hit struct {
	Code      string `json:"Code"`
	Exchange  string `json:"Exchange"`
	Name      string `json:"Name"`
	Type      string `json:"Type"`
	IsPrimary bool   `json:"isPrimary"`
}

// Searcher queries the provider's symbol search.
type Searcher interface {
	Search(ctx context.Context, query, assetType, exchange string) ([]Hit, error)
}

// Cache stores resolved symbols across sessions (optional).
type Cache interface {
	GetSymbol(ctx context.Context, query string) (string, bool, error)
	SetSymbol(ctx context.Context, query, canonical string) error
}

var (
	sixLetters = regexp.MustCompile(`^[A-Z]{6}$`)
	indexCodes = regexp.MustCompile(`^(GSPC|NDX|DJI|GDAXI|FTSE|N225|DXY)$`)
)

var usExchanges = map[string]bool{
	"NYSE": true, "NASDAQ": true, "BATS": true, "OTCQB": true, "OTCQX": true,
	"PINK": true, "OTCMKTS": true, "NMFQS": true, "NYSE MKT": true, "US": true,
}

// Resolver turns user tickers into canonical symbols. Results are memoized
// per process and, when a Cache is configured, shared through it.
type Resolver struct {
	search Searcher
	cache  Cache

	mu   sync.RWMutex
	memo map[string]string
}

// NewResolver creates a resolver. Both arguments may be nil; a nil Searcher
// means only the local mapping is used.
func NewResolver(search Searcher, cache Cache) *Resolver {
	return &Resolver{search: search, cache: cache, memo: make(map[string]string)}
}

// Hints returns the asset-type and exchange filters used for a search.
func Hints(s string) (assetType, exchange string) {
	switch {
	case sixLetters.MatchString(s):
		return "all", "FOREX"
	case indexCodes.MatchString(s):
		return "index", ""
	case strings.HasSuffix(s, "-USD"):
		return "crypto", ""
	default:
		return "stock", ""
	}
}

// Best picks the exact code match, else the primary listing, else the first hit.
func Best(query string, hits []Hit) (Hit, bool) {
	if len(hits) == 0 {
		return Hit{}, false
	}
	for _, h := range hits {
		if strings.EqualFold(h.Code, query) {
			return h, true
		}
	}
	for _, h := range hits {
		if h.IsPrimary {
			return h, true
		}
	}
	return hits[0], true
}

// Canonical formats a hit as CODE.EXCHANGE, collapsing US venues to "US"
// for stock searches.
func Canonical(h Hit, assetType string) string {
	ex := strings.ToUpper(strings.TrimSpace(h.Exchange))
	if assetType == "stock" && usExchanges[ex] {
		ex = "US"
	}
	return strings.ToUpper(strings.TrimSpace(h.Code)) + "." + ex
}

// Resolve returns the canonical symbol for raw. Only validation errors are
// returned; search and cache failures fall back to the local mapping.
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	local, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	if strings.Contains(local, ".") {
		return local, nil
	}

	r.mu.RLock()
	hit, ok := r.memo[local]
	r.mu.RUnlock()
	if ok {
		return hit, nil
	}

	if r.cache != nil {
		if v, ok, err := r.cache.GetSymbol(ctx, local); err != nil {
			log.Printf("[symbol] cache get %s: %v", local, err)
		} else if ok {
			r.remember(local, v)
			return v, nil
		}
	}

	resolved := local
	if r.search != nil {
		if v, err := r.lookup(ctx, local); err != nil {
			log.Printf("[symbol] resolve %s failed, using %s: %v", local, local, err)
		} else {
			resolved = v
		}
	}

	r.remember(local, resolved)
	if r.cache != nil && resolved != local {
		if err := r.cache.SetSymbol(ctx, local, resolved); err != nil {
			log.Printf("[symbol] cache set %s: %v", local, err)
		}
	}
	return resolved, nil
}

func (r *Resolver) lookup(ctx context.Context, s string) (string, error) {
	assetType, exchange := Hints(s)
	hits, err := r.search.Search(ctx, s, assetType, exchange)
	if err != nil {
		return "", err
	}
	best, ok := Best(s, hits)
	if !ok || best.Code == "" || best.Exchange == "" {
		return "", errors.Join(model.ErrNoData, errors.New("no usable search hit"))
	}
	return Canonical(best, assetType), nil
}

func (r *Resolver) remember(query, canonical string) {
	r.mu.Lock()
	r.memo[query] = canonical
	r.mu.Unlock()
}
