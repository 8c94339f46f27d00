package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSummaryMarkers(t *testing.T) {
	t.Run("both labels", func(t *testing.T) {
		got, ok := ParseSummaryMarkers("Stärken: Saubere Rechnung.\nEntwicklungsbereiche: Einheiten beachten.")
		assert.True(t, ok)
		assert.Equal(t, "Saubere Rechnung.", got.Strengths)
		assert.Equal(t, "Einheiten beachten.", got.Development)
	})

	t.Run("markdown and transliteration", func(t *testing.T) {
		got, ok := ParseSummaryMarkers("**Staerken:** A\n\n**Entwicklungsbereiche:** B")
		assert.True(t, ok)
		assert.Equal(t, "A", got.Strengths)
		assert.Equal(t, "B", got.Development)
	})

	t.Run("reversed order", func(t *testing.T) {
		got, ok := ParseSummaryMarkers("Entwicklungsbereiche: B Stärken: A")
		assert.True(t, ok)
		assert.Equal(t, "A", got.Strengths)
		assert.Equal(t, "B", got.Development)
	})

	t.Run("no labels", func(t *testing.T) {
		_, ok := ParseSummaryMarkers("Insgesamt eine ordentliche Arbeit.")
		assert.False(t, ok)
	})
}

func TestClassifySummary(t *testing.T) {
	summary := "Du zeigst ein sicheres Verständnis der Bruchrechnung. " +
		"Du solltest die Einheiten konsequenter angeben. " +
		"Die Rechenwege sind korrekt und gut nachvollziehbar. " +
		"Bei Aufgabe 3 fehlt die Begründung."

	got := ClassifySummary(summary)
	assert.Equal(t, []string{
		"Die Arbeit zeigt ein sicheres Verständnis der Bruchrechnung.",
		"Die Rechenwege sind korrekt und gut nachvollziehbar.",
	}, got.Strengths)
	assert.Equal(t, []string{
		"Es sollte die Einheiten konsequenter angeben.",
		"Bei Aufgabe 3 fehlt die Begründung.",
	}, got.NextSteps)
}

func TestClassifySummaryImprovementWins(t *testing.T) {
	got := ClassifySummary("Die Lösung ist richtig, aber die Skizze fehlt. Die Begründung ist gut gelungen")
	assert.Equal(t, []string{"Die Lösung ist richtig, aber die Skizze fehlt."}, got.NextSteps)
	assert.Equal(t, []string{"Die Begründung ist gut gelungen."}, got.Strengths)
}

func TestClassifySummaryPositionalFallback(t *testing.T) {
	got := ClassifySummary("Erster neutraler Satz hier. Zweiter neutraler Satz hier. Dritter neutraler Satz hier")
	assert.Equal(t, []string{"Erster neutraler Satz hier.", "Zweiter neutraler Satz hier."}, got.Strengths)
	assert.Equal(t, []string{"Dritter neutraler Satz hier."}, got.NextSteps)
}

func TestClassifySummaryDefaults(t *testing.T) {
	got := ClassifySummary("Gut. Ok.")
	assert.Equal(t, []string{DefaultPolicy.DefaultStrength}, got.Strengths)
	assert.Equal(t, []string{DefaultPolicy.DefaultNextStep}, got.NextSteps)
}

func TestClassifySummaryTotals(t *testing.T) {
	inputs := []string{
		"x",
		"Ein einziger langer Satz ohne Schlüsselwort",
		"Das ist richtig gelöst. Das ist richtig gelöst. Das ist richtig gelöst. Das ist richtig gelöst. " +
			"Das ist richtig gelöst. Das ist richtig gelöst. Das sollte geübt werden. Das sollte geübt werden. " +
			"Das sollte geübt werden. Das sollte geübt werden. Das sollte geübt werden. Das sollte geübt werden",
		"Du hast alles verstanden",
	}
	for _, in := range inputs {
		got := ClassifySummary(in)
		total := len(got.Strengths) + len(got.NextSteps)
		assert.GreaterOrEqual(t, total, 1, "input %q", in)
		assert.LessOrEqual(t, len(got.Strengths), 5, "input %q", in)
		assert.LessOrEqual(t, len(got.NextSteps), 5, "input %q", in)
	}
}
