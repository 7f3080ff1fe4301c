package memory

import (
	"regexp"
	"strings"
)

// TopicRule maps a topic category to the patterns that trigger it.
type TopicRule struct {
	Category string
	Patterns []*regexp.Regexp
}

type TopicTable []TopicRule

func keywords(words ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(words))
	for _, word := range words {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(word)+`\b`))
	}
	return patterns
}

// DefaultTopicTable covers the everyday themes a language learner talks about.
var DefaultTopicTable = TopicTable{
	{Category: "food", Patterns: keywords("food", "eat", "eating", "pizza", "pasta", "restaurant", "cook", "cooking", "dinner", "lunch", "breakfast", "coffee")},
	{Category: "travel", Patterns: keywords("travel", "trip", "flight", "hotel", "vacation", "holiday", "airport", "visit", "tourist", "passport")},
	{Category: "work", Patterns: keywords("work", "job", "office", "boss", "meeting", "career", "colleague", "interview")},
	{Category: "family", Patterns: keywords("family", "mother", "father", "mom", "dad", "sister", "brother", "wife", "husband", "kids", "children")},
	{Category: "hobbies", Patterns: keywords("hobby", "hobbies", "music", "guitar", "painting", "reading", "games", "movie", "movies")},
	{Category: "sports", Patterns: keywords("sport", "sports", "football", "soccer", "tennis", "running", "gym", "swimming", "basketball")},
	{Category: "weather", Patterns: keywords("weather", "rain", "sunny", "snow", "cold", "hot", "temperature")},
	{Category: "shopping", Patterns: keywords("shopping", "shop", "buy", "store", "market", "price", "clothes")},
	{Category: "health", Patterns: keywords("health", "doctor", "sick", "hospital", "medicine", "headache")},
	{Category: "education", Patterns: keywords("school", "university", "study", "studying", "class", "exam", "teacher", "learn", "learning")},
}

// Match returns every category whose patterns match text, in table order.
func (t TopicTable) Match(text string) []string {
	var matched []string
	for _, rule := range t {
		for _, pattern := range rule.Patterns {
			if pattern.MatchString(text) {
				matched = append(matched, rule.Category)
				break
			}
		}
	}
	return matched
}

// FactRule extracts a single fact from user text. The first capture group is
// the value.
type FactRule struct {
	Key     string
	Pattern *regexp.Regexp
}

type FactTable []FactRule

const (
	FactName        = "name"
	FactDestination = "destination"
	FactHometown    = "hometown"
	FactOccupation  = "occupation"
)

var DefaultFactTable = FactTable{
	{Key: FactName, Pattern: regexp.MustCompile(`(?i)\b(?:my name is|call me|i am called|i'm called)\s+([A-Za-zÀ-ÿ][A-Za-zÀ-ÿ'-]*)`)},
	{Key: FactDestination, Pattern: regexp.MustCompile(`\b(?i:travel|travelling|traveling|going|fly|flying|trip|move|moving)\s+(?i:to)\s+([A-Z][A-Za-zÀ-ÿ'-]*(?:\s+[A-Z][A-Za-zÀ-ÿ'-]*)*)`)},
	{Key: FactHometown, Pattern: regexp.MustCompile(`\b(?i:i am|i'm) (?i:from)\s+([A-Z][A-Za-zÀ-ÿ'-]*(?:\s+[A-Z][A-Za-zÀ-ÿ'-]*)*)`)},
	{Key: FactOccupation, Pattern: regexp.MustCompile(`(?i)\bi work as an?\s+([a-z]+)`)},
}

// Extract returns the facts found in text keyed by rule key. Later rules do
// not override earlier ones with the same key.
func (t FactTable) Extract(text string) map[string]string {
	facts := map[string]string{}
	for _, rule := range t {
		if _, ok := facts[rule.Key]; ok {
			continue
		}
		match := rule.Pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		value := strings.TrimSpace(strings.TrimRight(match[1], ".,!?;:"))
		if value != "" {
			facts[rule.Key] = value
		}
	}
	return facts
}
