// Package feedback parses the free-text comment and summary blocks that the
// grading model writes into typed sections.
package feedback

import (
	"regexp"
	"strings"
)

const (
	markerCorrect    = "DAS WAR RICHTIG:"
	markerDeductions = "HIER GAB ES ABZÜGE:"
	markerTip        = "VERBESSERUNGSTIPP:"
)

type commentField int

const (
	fieldCorrect commentField = iota
	fieldDeductions
	fieldTip
)

// Markers are matched case-insensitively at the start of a section. Both the
// umlaut and the transliterated spelling of "Abzüge" are accepted, as is the
// single-P "Verbesserungstip".
var commentMarkers = []struct {
	field commentField
	re    *regexp.Regexp
}{
	{fieldCorrect, regexp.MustCompile(`(?i)^DAS WAR RICHTIG:`)},
	{fieldDeductions, regexp.MustCompile(`(?i)^HIER GAB ES ABZ(?:Ü|UE)GE:`)},
	{fieldTip, regexp.MustCompile(`(?i)^VERBESSERUNGSTIPP?:`)},
}

var (
	blankLineRe  = regexp.MustCompile(`\n[ \t]*\n`)
	bulletPrefix = regexp.MustCompile(`^(?:[-*•–]\s+|\d+[.)]\s+)`)
)

// TaskComment is a task comment split into its labeled sections. When the
// comment carried no recognized marker all three text fields are empty and
// the caller is expected to fall back to the raw comment.
type TaskComment struct {
	Correct     string   `json:"correct"`
	Deductions  string   `json:"deductions"`
	Tip         string   `json:"tip"`
	Corrections []string `json:"corrections"`
}

// Empty reports whether no section text was recognized.
func (c TaskComment) Empty() bool {
	return c.Correct == "" && c.Deductions == "" && c.Tip == ""
}

// Format renders the comment back into marker form.
func (c TaskComment) Format() string {
	return markerCorrect + " " + c.Correct + "\n\n" +
		markerDeductions + " " + c.Deductions + "\n\n" +
		markerTip + " " + c.Tip
}

// ParseComment splits comment on blank lines and assigns every section that
// starts with a known marker to its field. Sections without a marker are
// dropped. corrections is passed through untouched.
func ParseComment(comment string, corrections []string) TaskComment {
	out := TaskComment{Corrections: corrections}
	comment = strings.ReplaceAll(comment, "\r\n", "\n")

	for _, section := range blankLineRe.Split(comment, -1) {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		for _, m := range commentMarkers {
			loc := m.re.FindStringIndex(section)
			if loc == nil {
				continue
			}
			text := strings.TrimSpace(section[loc[1]:])
			switch m.field {
			case fieldCorrect:
				out.Correct = joinSection(out.Correct, text)
			case fieldDeductions:
				out.Deductions = joinSection(out.Deductions, text)
			case fieldTip:
				out.Tip = joinSection(out.Tip, text)
			}
			break
		}
	}
	return out
}

func joinSection(prev, text string) string {
	switch {
	case text == "":
		return prev
	case prev == "":
		return text
	default:
		return prev + "\n" + text
	}
}

// Items splits a section into list entries, one per non-empty line, with
// leading bullet or enumeration markers removed.
func Items(text string) []string {
	items := []string{}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}
