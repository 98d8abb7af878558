package models

import (
	"encoding/json"
)

// MarketKind tags one of the known odds market shapes.
type MarketKind string

const (
	MarketMatchResult  MarketKind = "match_result"
	MarketTotals       MarketKind = "totals"
	MarketBTTS         MarketKind = "both_teams_to_score"
	MarketDoubleChance MarketKind = "double_chance"
	MarketHandicap     MarketKind = "handicap"
	MarketUnknown      MarketKind = "unknown"
)

// MatchResultOdds is the 1X2 market.
type MatchResultOdds struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// TotalsOdds is an over/under market at one goal line.
type TotalsOdds struct {
	Line  float64 `json:"line"`
	Over  float64 `json:"over"`
	Under float64 `json:"under"`
}

// BTTSOdds is the both-teams-to-score market.
type BTTSOdds struct {
	Yes float64 `json:"yes"`
	No  float64 `json:"no"`
}

// DoubleChanceOdds covers the three double-chance outcomes.
type DoubleChanceOdds struct {
	HomeDraw float64 `json:"home_draw"`
	HomeAway float64 `json:"home_away"`
	AwayDraw float64 `json:"away_draw"`
}

// HandicapOdds is an Asian-style handicap market at one line.
type HandicapOdds struct {
	Line float64 `json:"line"`
	Home float64 `json:"home"`
	Away float64 `json:"away"`
}

// OddsMarket is a tagged variant over the known market shapes. Exactly one
// of the pointer fields matching Kind is set; unknown markets keep their raw
// payload so nothing is lost on re-serialization.
type OddsMarket struct {
	Kind         MarketKind        `json:"kind"`
	MatchResult  *MatchResultOdds  `json:"match_result,omitempty"`
	Totals       *TotalsOdds       `json:"totals,omitempty"`
	BTTS         *BTTSOdds         `json:"btts,omitempty"`
	DoubleChance *DoubleChanceOdds `json:"double_chance,omitempty"`
	Handicap     *HandicapOdds     `json:"handicap,omitempty"`
	RawKey       string            `json:"raw_key,omitempty"`
	Raw          json.RawMessage   `json:"raw,omitempty"`
}

// ParseOddsBlob converts the loosely-typed odds payload attached to a match
// into typed market variants. It is total: malformed or unrecognized entries
// become MarketUnknown, absent markets are simply not emitted, and a nil or
// empty blob yields no markets. It never returns an error.
func ParseOddsBlob(blob []byte) []OddsMarket {
	if len(blob) == 0 {
		return nil
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(blob, &root); err != nil {
		return []OddsMarket{{Kind: MarketUnknown, Raw: append(json.RawMessage(nil), blob...)}}
	}

	var markets []OddsMarket

	if raw, ok := root["match_result"]; ok {
		var mr MatchResultOdds
		if err := json.Unmarshal(raw, &mr); err == nil && (mr.Home > 0 || mr.Draw > 0 || mr.Away > 0) {
			markets = append(markets, OddsMarket{Kind: MarketMatchResult, MatchResult: &mr})
		} else {
			markets = append(markets, OddsMarket{Kind: MarketUnknown, RawKey: "match_result", Raw: raw})
		}
	}

	if raw, ok := root["totals"]; ok {
		var lines []TotalsOdds
		if err := json.Unmarshal(raw, &lines); err == nil {
			for i := range lines {
				if lines[i].Over > 0 || lines[i].Under > 0 {
					line := lines[i]
					markets = append(markets, OddsMarket{Kind: MarketTotals, Totals: &line})
				}
			}
		} else {
			// Some feeds deliver a single totals object rather than a list.
			var single TotalsOdds
			if err := json.Unmarshal(raw, &single); err == nil && (single.Over > 0 || single.Under > 0) {
				markets = append(markets, OddsMarket{Kind: MarketTotals, Totals: &single})
			} else {
				markets = append(markets, OddsMarket{Kind: MarketUnknown, RawKey: "totals", Raw: raw})
			}
		}
	}

	if raw, ok := root["btts"]; ok {
		var btts BTTSOdds
		if err := json.Unmarshal(raw, &btts); err == nil && (btts.Yes > 0 || btts.No > 0) {
			markets = append(markets, OddsMarket{Kind: MarketBTTS, BTTS: &btts})
		} else {
			markets = append(markets, OddsMarket{Kind: MarketUnknown, RawKey: "btts", Raw: raw})
		}
	}

	if raw, ok := root["double_chance"]; ok {
		var dc DoubleChanceOdds
		if err := json.Unmarshal(raw, &dc); err == nil && (dc.HomeDraw > 0 || dc.HomeAway > 0 || dc.AwayDraw > 0) {
			markets = append(markets, OddsMarket{Kind: MarketDoubleChance, DoubleChance: &dc})
		} else {
			markets = append(markets, OddsMarket{Kind: MarketUnknown, RawKey: "double_chance", Raw: raw})
		}
	}

	if raw, ok := root["handicap"]; ok {
		var lines []HandicapOdds
		if err := json.Unmarshal(raw, &lines); err == nil {
			for i := range lines {
				if lines[i].Home > 0 || lines[i].Away > 0 {
					line := lines[i]
					markets = append(markets, OddsMarket{Kind: MarketHandicap, Handicap: &line})
				}
			}
		} else {
			markets = append(markets, OddsMarket{Kind: MarketUnknown, RawKey: "handicap", Raw: raw})
		}
	}

	for key, raw := range root {
		switch key {
		case "match_result", "totals", "btts", "double_chance", "handicap":
		default:
			markets = append(markets, OddsMarket{Kind: MarketUnknown, RawKey: key, Raw: raw})
		}
	}

	return markets
}
