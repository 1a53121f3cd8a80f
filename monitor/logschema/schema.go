package logschema

import (
	"fmt"
	"sort"
	"strings"
)

const (
	EventReferenceQuote   = "reference_quote"
	EventTargetPrices     = "target_prices"
	EventLendingBounds    = "lending_bounds"
	EventWithdrawEstimate = "withdraw_estimate"
	EventRangeAdjust      = "range_adjust"
	EventQuoteDecision    = "quote_decision"
	EventPricesSubmitted  = "prices_submitted"

	// EventBoundContradiction 借贷推导的最高买价不低于最低买价
	EventBoundContradiction = "bound_contradiction"
)

// Schema 事件必需字段。Prices 中的字段必须是十进制字符串，
// 审计日志里的价格不能经过 float 转换。
type Schema struct {
	Required []string
	Prices   []string
}

var schemas = map[string]Schema{
	EventReferenceQuote: {
		Required: []string{"arm", "source"},
		Prices:   []string{"mid"},
	},
	EventTargetPrices: {
		Required: []string{"arm", "strategy"},
		Prices:   []string{"buy", "sell"},
	},
	EventLendingBounds: {
		Required: []string{"arm", "apr", "apy", "holdingDays"},
		Prices:   []string{"minBuy", "maxBuy"},
	},
	EventWithdrawEstimate: {
		Required: []string{"needed", "covered", "shortfall", "days"},
	},
	EventRangeAdjust: {
		Required: []string{"arm", "side", "reason"},
		Prices:   []string{"from", "to"},
	},
	EventQuoteDecision: {
		Required: []string{"arm", "diffBuyBps", "diffSellBps", "toleranceBps", "submit", "dryRun"},
		Prices:   []string{"targetBuy", "targetSell", "currentBuy", "currentSell"},
	},
	EventPricesSubmitted: {
		Required: []string{"arm", "tx"},
		Prices:   []string{"buy", "sell"},
	},
	EventBoundContradiction: {
		Required: []string{"arm"},
		Prices:   []string{"minBuy", "maxBuy", "mid"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate 未登记的事件不校验。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing, notString []string
	for _, key := range s.Required {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	for _, key := range s.Prices {
		v, ok := fields[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		if _, isString := v.(string); !isString {
			notString = append(notString, key)
		}
	}
	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing fields: "+strings.Join(missing, ","))
	}
	if len(notString) > 0 {
		problems = append(problems, "prices must be decimal strings: "+strings.Join(notString, ","))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %s", event, strings.Join(problems, "; "))
	}
	return nil
}
