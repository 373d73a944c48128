package source

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/qbank/pkg/cleaner"
)

// parseGeneric renders the whole body as the question with no answers.
func parseGeneric(doc *goquery.Document, w *cleaner.Whitelist) Question {
	return Question{
		QuestionHTML: render(w, doc.Find("body").First(), NoContent),
		Answers:      []Answer{},
	}
}
