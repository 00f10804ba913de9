package market

import (
	"errors"
	"sort"

	"cct/internal/money"
)

// ErrNoPath is returned when no conversion path connects two currencies
// over the given market set.
var ErrNoPath = errors.New("market: no conversion path found")

// FindPath finds the shortest path between from and to over markets, used
// as an undirected graph keyed on currency (spec.md §4.C): primary key is
// path length, secondary key favors paths that avoid synthetic
// fiat-conversion markets. When allowSynthetic is false, synthetic markets
// are excluded from the graph entirely (ConversionPathMode's Strict vs.
// AllowFiatStableCoinBridge).
//
// Shared by every PublicMarketView implementation that needs it
// (internal/adapter/hmacexchange); internal/adapter/simulated predates this
// helper and keeps its own inline BFS rather than being retrofitted onto it
// (see DESIGN.md).
func FindPath(markets []Market, from, to money.CurrencyCode, allowSynthetic bool) ([]Market, error) {
	if from.Equal(to) {
		return nil, ErrNoPath
	}

	type edge struct {
		mkt  Market
		next money.CurrencyCode
	}
	adj := make(map[money.CurrencyCode][]edge)
	for _, m := range markets {
		if m.IsSynthetic() && !allowSynthetic {
			continue
		}
		adj[m.Base()] = append(adj[m.Base()], edge{mkt: m, next: m.Quote()})
		adj[m.Quote()] = append(adj[m.Quote()], edge{mkt: m, next: m.Base()})
	}

	type candidate struct {
		path      []Market
		synthetic int
	}
	best := map[money.CurrencyCode]candidate{from: {}}
	frontier := []money.CurrencyCode{from}

	for len(frontier) > 0 {
		proposals := make(map[money.CurrencyCode]candidate)
		for _, cur := range frontier {
			head := best[cur]
			for _, e := range adj[cur] {
				if _, done := best[e.next]; done {
					continue
				}
				path := make([]Market, len(head.path)+1)
				copy(path, head.path)
				path[len(head.path)] = e.mkt
				syn := head.synthetic
				if e.mkt.IsSynthetic() {
					syn++
				}
				cand := candidate{path: path, synthetic: syn}
				if existing, ok := proposals[e.next]; !ok || cand.synthetic < existing.synthetic {
					proposals[e.next] = cand
				}
			}
		}
		if len(proposals) == 0 {
			break
		}

		next := make([]money.CurrencyCode, 0, len(proposals))
		for cur, cand := range proposals {
			best[cur] = cand
			next = append(next, cur)
		}
		sort.Slice(next, func(i, j int) bool { return next[i].String() < next[j].String() })

		if final, ok := best[to]; ok {
			return final.path, nil
		}
		frontier = next
	}
	return nil, ErrNoPath
}
