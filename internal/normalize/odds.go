package normalize

import "github.com/alanyoungcy/livefeed/internal/domain"

// sideKeys names the two roles of each known market, in pair order.
var sideKeys = map[string][2]string{
	domain.MarketSpread:    {"home", "away"},
	domain.MarketTotal:     {"over", "under"},
	domain.MarketMoneyline: {"home", "away"},
}

// linePrefix is prepended to a formatted total when a line is present.
var linePrefix = map[string][2]string{
	domain.MarketTotal: {"O", "U"},
}

var marketNames = map[string]string{
	domain.MarketSpread:    "Point Spread",
	domain.MarketTotal:     "Total Points",
	domain.MarketMoneyline: "Moneyline",
}

var selectionNames = map[string][2]string{
	domain.MarketSpread:    {"Home", "Away"},
	domain.MarketTotal:     {"Over", "Under"},
	domain.MarketMoneyline: {"Home", "Away"},
}

// extractOdds picks the first candidate container that is a non-empty object
// and converts each known market it holds. Unknown keys are ignored.
func extractOdds(fields map[string]any, containers []string) domain.Odds {
	odds := domain.Odds{}
	for _, path := range containers {
		v, ok := lookup(fields, path)
		if !ok {
			continue
		}
		obj, ok := v.(map[string]any)
		if !ok || len(obj) == 0 {
			continue
		}
		for _, market := range domain.KnownMarkets {
			if pair, ok := marketPair(market, obj[market]); ok {
				odds[market] = pair
			}
		}
		break
	}
	return odds
}

// marketPair converts one market value in any of the accepted encodings:
// an ordered list, an object of nested {line, odds} per side, or an object of
// scalar prices per side. A market with either side unresolved is omitted.
func marketPair(market string, v any) (domain.OddsPair, bool) {
	var pair domain.OddsPair
	switch t := v.(type) {
	case []any:
		if len(t) < 2 {
			return pair, false
		}
		pair = domain.OddsPair{stringify(t[0]), stringify(t[1])}
	case map[string]any:
		keys := sideKeys[market]
		for i, key := range keys {
			pair[i] = sideValue(market, i, t[key])
		}
	default:
		return pair, false
	}
	if pair[0] == "" || pair[1] == "" {
		return domain.OddsPair{}, false
	}
	return pair, true
}

func sideValue(market string, side int, v any) string {
	nested, ok := v.(map[string]any)
	if !ok {
		return stringify(v)
	}
	price := stringify(nested["odds"])
	line := stringify(nested["line"])
	if price == "" {
		return ""
	}
	if line == "" {
		return price
	}
	prefix := ""
	if p, ok := linePrefix[market]; ok {
		prefix = p[side]
	}
	return joinNonEmpty(prefix, line, price)
}

// marketViews renders formatted odds as display markets in canonical order.
func marketViews(odds domain.Odds) []domain.MarketView {
	views := []domain.MarketView{}
	for _, market := range domain.KnownMarkets {
		pair, ok := odds[market]
		if !ok {
			continue
		}
		names := selectionNames[market]
		views = append(views, domain.MarketView{
			Name: marketNames[market],
			Selections: []domain.Selection{
				{Name: names[0], Odds: pair[0]},
				{Name: names[1], Odds: pair[1]},
			},
		})
	}
	return views
}
