package source

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/qbank/pkg/cleaner"
)

func matchACEP(doc *goquery.Document) bool {
	return doc.Find("div.questionStem").Length() > 0
}

func parseACEP(doc *goquery.Document, w *cleaner.Whitelist) Question {
	q := Question{
		QuestionHTML: render(w, doc.Find("div.questionStem").First(), QuestionNotFound),
	}

	doc.Find("div.choices").First().Find("li.paper-shadow").Each(func(_ int, li *goquery.Selection) {
		text := li.Find("label").First()
		if text.Length() == 0 {
			text = li
		}
		a := Answer{
			Text:      normalizeText(text.Text()),
			IsCorrect: li.HasClass("correct"),
		}
		if peer := li.Find(".peer-percent").First(); peer.Length() > 0 {
			a.PeerPercentage = ParsePercent(peer.Text())
		}
		q.Answers = append(q.Answers, a)
	})

	q.ExplanationHTML = render(w, doc.Find("div.exam-reasoning, div.reasoning").First(), ExplanationNotFound)
	return q
}
