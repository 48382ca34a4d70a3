package priority

import (
	"regexp"
)

// temporalRule maps a family of relative-time expressions to a decay boost.
type temporalRule struct {
	boost   float64
	pattern *regexp.Regexp
}

// Narrower windows boost harder so recent nodes dominate.
var temporalRules = []temporalRule{
	{5, regexp.MustCompile(`(?i)\b(today|tonight|yesterday|this (morning|afternoon|evening)|last night|just now|earlier today)\b|今天|今早|今晚|昨天|昨晚|前天|刚才`)},
	{3, regexp.MustCompile(`(?i)\b(this week|last week|past week|few days ago|(last|past) few days|\d+ days ago)\b|这周|本周|上周|这几天|前几天|几天前`)},
	{2, regexp.MustCompile(`(?i)\b(this month|last month|past month|this year|last year|past year|\d+ (weeks|months) ago)\b|这个月|本月|上个月|今年|去年|几个月前`)},
}

// Boost returns the decay multiplier for a query. Text with no recognized
// relative-time expression gets 1.
func Boost(text string) float64 {
	if text == "" {
		return 1
	}
	for _, r := range temporalRules {
		if r.pattern.MatchString(text) {
			return r.boost
		}
	}
	return 1
}
