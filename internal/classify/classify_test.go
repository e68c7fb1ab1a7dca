package classify

import "testing"

func TestLabelString(t *testing.T) {
	tests := []struct {
		l    Label
		want string
	}{
		{Label{}, "Unknown"},
		{Label{Category: "positive"}, "positive"},
		{Label{Category: "negative", Display: "-2"}, "negative -2"},
	}
	for _, tt := range tests {
		if got := tt.l.String(); got != tt.want {
			t.Errorf("%+v: got %q, want %q", tt.l, got, tt.want)
		}
	}
}

func TestLexiconClassify(t *testing.T) {
	lex := NewLexicon()
	tests := []struct {
		text string
		want Label
	}{
		{"Local team wins record award", Label{Positive, "+3"}},
		{"Storm causes outage, flights face delays", Label{Negative, "-3"}},
		{"City council meets on Tuesday", Label{Neutral, "0"}},
		{"Breakthrough after crash", Label{Neutral, "0"}},
		{"CRASH!", Label{Negative, "-1"}},
		{"", Label{}},
		{"  ...  ", Label{}},
	}
	for _, tt := range tests {
		if got := lex.Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %+v, want %+v", tt.text, got, tt.want)
		}
	}
}

func TestLexiconCustomWords(t *testing.T) {
	lex := NewLexiconWords([]string{"Sunny"}, []string{"rain"})
	if got := lex.Classify("sunny sunny rain"); got.Category != Positive || got.Display != "+1" {
		t.Errorf("unexpected %+v", got)
	}
}

func TestFuncAdapter(t *testing.T) {
	var c Classifier = Func(func(text string) Label { return Label{Category: text} })
	if got := c.Classify("x"); got.Category != "x" {
		t.Errorf("unexpected %+v", got)
	}
}
