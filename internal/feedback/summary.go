package feedback

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	strengthsLabel   = regexp.MustCompile(`(?i)St(?:ä|ae)rken\s*\**\s*:`)
	developmentLabel = regexp.MustCompile(`(?i)Entwicklungsbereiche\s*\**\s*:`)
)

// SummarySections holds the text found under the explicit summary labels.
type SummarySections struct {
	Strengths   string `json:"strengths"`
	Development string `json:"development"`
}

// ParseSummaryMarkers extracts the text following the "Stärken:" and
// "Entwicklungsbereiche:" labels. ok is false when neither label occurs.
func ParseSummaryMarkers(summary string) (sections SummarySections, ok bool) {
	s := strengthsLabel.FindStringIndex(summary)
	d := developmentLabel.FindStringIndex(summary)
	if s == nil && d == nil {
		return SummarySections{}, false
	}
	if s != nil {
		end := len(summary)
		if d != nil && d[0] > s[1] {
			end = d[0]
		}
		sections.Strengths = trimSection(summary[s[1]:end])
	}
	if d != nil {
		end := len(summary)
		if s != nil && s[0] > d[1] {
			end = s[0]
		}
		sections.Development = trimSection(summary[d[1]:end])
	}
	return sections, true
}

func trimSection(s string) string {
	return strings.Trim(s, " \t\r\n*")
}

// Heuristic is the sentence-classification result used when a summary has
// no explicit labels.
type Heuristic struct {
	Strengths []string `json:"strengths"`
	NextSteps []string `json:"next_steps"`
}

// SummaryPolicy is the keyword and rewriting table behind the heuristic
// classifier. It is tuned to German model output.
type SummaryPolicy struct {
	StrengthKeywords    []string
	ImprovementKeywords []string
	// Rewrites is a flat old/new list for strings.NewReplacer.
	Rewrites        []string
	DefaultStrength string
	DefaultNextStep string
	MinSentenceLen  int
	MaxPerBucket    int
}

// DefaultPolicy is the classifier table used by ClassifySummary.
var DefaultPolicy = SummaryPolicy{
	StrengthKeywords: []string{
		"zeigt", "zeigst", "korrekt", "richtig", "verstanden", "gut", "sicher",
		"gelungen", "beherrscht", "überzeugend", "vollständig", "souverän", "stark",
	},
	ImprovementKeywords: []string{
		"sollte", "solltest", "fehlt", "fehlen", "schwäche", "verbesser", "unvollständig",
		"ungenau", "fehler", "mangel", "achten", "üben", "noch nicht", "könnte",
	},
	Rewrites: []string{
		"Du solltest", "Es sollte",
		"du solltest", "es sollte",
		"Sie sollten", "Es sollte",
		"Du hast", "Die Arbeit hat",
		"du hast", "die Arbeit hat",
		"Sie haben", "Die Arbeit hat",
		"Du zeigst", "Die Arbeit zeigt",
		"du zeigst", "die Arbeit zeigt",
		"Du musst", "Es muss",
		"du musst", "es muss",
		"Deine ", "Die ",
		"deine ", "die ",
		"Dein ", "Das ",
		"dein ", "das ",
	},
	DefaultStrength: "Die Arbeit zeigt erste Ansätze zur Bearbeitung der Aufgaben.",
	DefaultNextStep: "Es sollte an der Vertiefung der Inhalte weitergearbeitet werden.",
	MinSentenceLen:  10,
	MaxPerBucket:    5,
}

// ClassifySummary applies DefaultPolicy.
func ClassifySummary(summary string) Heuristic {
	return DefaultPolicy.Classify(summary)
}

// Classify splits summary into sentences and sorts them into strengths and
// next steps by keyword. An improvement keyword wins over a strength
// keyword. If either bucket ends up empty the usable sentences are split
// positionally instead, and if there are no usable sentences at all each
// bucket receives its default sentence. Both buckets are capped at
// MaxPerBucket.
func (p SummaryPolicy) Classify(summary string) Heuristic {
	var sentences []string
	for _, s := range strings.Split(summary, ". ") {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) < p.MinSentenceLen {
			continue
		}
		sentences = append(sentences, s)
	}

	if len(sentences) == 0 {
		return Heuristic{
			Strengths: []string{p.DefaultStrength},
			NextSteps: []string{p.DefaultNextStep},
		}
	}

	rewrite := strings.NewReplacer(p.Rewrites...)
	finish := func(s string) string {
		return strings.TrimRight(rewrite.Replace(s), ".") + "."
	}

	var out Heuristic
	for _, s := range sentences {
		lower := strings.ToLower(s)
		switch {
		case containsAny(lower, p.ImprovementKeywords):
			out.NextSteps = append(out.NextSteps, finish(s))
		case containsAny(lower, p.StrengthKeywords):
			out.Strengths = append(out.Strengths, finish(s))
		}
	}

	if len(out.Strengths) == 0 || len(out.NextSteps) == 0 {
		half := (len(sentences) + 1) / 2
		out = Heuristic{}
		for i, s := range sentences {
			if i < half {
				out.Strengths = append(out.Strengths, finish(s))
			} else {
				out.NextSteps = append(out.NextSteps, finish(s))
			}
		}
	}

	out.Strengths = capAt(out.Strengths, p.MaxPerBucket)
	out.NextSteps = capAt(out.NextSteps, p.MaxPerBucket)
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func capAt(items []string, n int) []string {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
