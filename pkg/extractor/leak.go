package extractor

import (
	"regexp"
	"strings"
)

// Leak is excluded content found in an extracted field.
type Leak struct {
	Field  string
	Marker string
}

// answerMarkerRe finds option labels such as "A.", "B)" or "(C)" at the start
// of a line or element.
var answerMarkerRe = regexp.MustCompile(`(?:^|>|\n)\s*(\([A-E]\)|[A-E][.)])\s`)

var explanationPhrases = []string{
	"correct answer",
	"explanation:",
	"rationale",
	"educational objective",
	"key point",
	"peer answered",
}

// Leaks reports answer choices or explanation text that made it into a
// minimal question. It only flags; the caller decides what to do.
func Leaks(q MinimalQuestion) []Leak {
	var leaks []Leak
	for _, f := range []struct{ name, value string }{
		{"question_context_html", q.ContextHTML},
		{"question_stem_html", q.StemHTML},
	} {
		if m := answerMarkerRe.FindStringSubmatch(f.value); m != nil {
			leaks = append(leaks, Leak{Field: f.name, Marker: m[1]})
		}
		lower := strings.ToLower(f.value)
		for _, phrase := range explanationPhrases {
			if strings.Contains(lower, phrase) {
				leaks = append(leaks, Leak{Field: f.name, Marker: phrase})
			}
		}
	}
	return leaks
}
