// Package classify annotates article text with a label for display.
package classify

import (
	"strconv"
	"strings"
	"unicode"
)

// Label is the result of classifying one text.
type Label struct {
	Category string
	Display  string
}

// String renders "<category> <display>", or "Unknown" for the zero Label.
func (l Label) String() string {
	if l.Category == "" {
		return "Unknown"
	}
	if l.Display == "" {
		return l.Category
	}
	return l.Category + " " + l.Display
}

// Classifier labels a text. Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(text string) Label
}

// Func adapts a function to the Classifier interface.
type Func func(text string) Label

// Classify calls f.
func (f Func) Classify(text string) Label { return f(text) }

// Sentiment categories returned by Lexicon.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

var positiveWords = []string{
	"win", "wins", "won", "success", "breakthrough", "record", "growth", "gain",
	"gains", "boost", "best", "celebrate", "love", "hope", "improve", "improves",
	"recovery", "rescue", "award", "beautiful", "launch", "surge", "thrive",
	"safe", "peace", "agreement", "approve", "approved", "discover", "free",
}

var negativeWords = []string{
	"crash", "dead", "death", "dies", "killed", "war", "attack", "crisis", "fail",
	"fails", "failure", "loss", "losses", "lawsuit", "fraud", "scandal", "fire",
	"flood", "storm", "decline", "fall", "falls", "cut", "cuts", "layoffs", "ban",
	"warning", "threat", "collapse", "delay", "delays", "outage", "hack", "breach",
}

// Lexicon is a keyword sentiment classifier. Each positive word scores +1
// and each negative word -1; the sign of the total picks the category and
// Display carries the signed score.
type Lexicon struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

// NewLexicon builds a Lexicon from the built-in word lists.
func NewLexicon() *Lexicon {
	return NewLexiconWords(positiveWords, negativeWords)
}

// NewLexiconWords builds a Lexicon from custom word lists.
func NewLexiconWords(positive, negative []string) *Lexicon {
	l := &Lexicon{
		positive: make(map[string]struct{}, len(positive)),
		negative: make(map[string]struct{}, len(negative)),
	}
	for _, w := range positive {
		l.positive[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range negative {
		l.negative[strings.ToLower(w)] = struct{}{}
	}
	return l
}

// Classify scores text. Text with no words yields the zero Label.
func (l *Lexicon) Classify(text string) Label {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Label{}
	}

	score := 0
	for _, t := range tokens {
		if _, ok := l.positive[t]; ok {
			score++
		}
		if _, ok := l.negative[t]; ok {
			score--
		}
	}

	switch {
	case score > 0:
		return Label{Category: Positive, Display: "+" + strconv.Itoa(score)}
	case score < 0:
		return Label{Category: Negative, Display: strconv.Itoa(score)}
	default:
		return Label{Category: Neutral, Display: "0"}
	}
}

func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if word != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}
