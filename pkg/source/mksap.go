package source

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/qbank/pkg/cleaner"
)

var correctAnswerRe = regexp.MustCompile(`Correct Answer:\s*([A-Z])`)

func matchMKSAP(doc *goquery.Document) bool {
	return doc.Find("section.q_info, section.q_mcq").Length() > 0
}

func parseMKSAP(doc *goquery.Document, w *cleaner.Whitelist) Question {
	var q Question

	// The stem block can embed the answer block; clean a detached copy
	// without it so the document itself stays intact for the answer lookup.
	if stem := doc.Find("section.q_info, div.question-content").First(); stem.Length() > 0 {
		stem = stem.Clone()
		stem.Find("section.q_mcq, div.choices").Remove()
		q.QuestionHTML = w.Render(cleaner.FromHTML(stem.Get(0)))
	} else {
		q.QuestionHTML = QuestionNotFound
	}

	doc.Find("section.q_mcq").First().Find("div.option").Each(func(_ int, opt *goquery.Selection) {
		text := opt.Find("span.answer-text, span.text").First()
		if text.Length() == 0 {
			text = opt
		}
		a := Answer{
			Text:      normalizeText(text.Text()),
			IsCorrect: opt.HasClass("r_a"),
		}
		if letter := opt.Find("div.bubble, span.letter").First(); letter.Length() > 0 {
			a.Letter = strings.TrimSpace(letter.Text())
		}
		if stats := opt.Find("div.stats, div.peer").First(); stats.Length() > 0 {
			a.PeerPercentage = ParsePercent(stats.Text())
		}
		q.Answers = append(q.Answers, a)
	})

	explanation := doc.Find("section.answer, div.exposition").First()
	q.ExplanationHTML = render(w, explanation, ExplanationNotFound)

	if explanation.Length() > 0 && !anyCorrect(q.Answers) {
		if m := correctAnswerRe.FindStringSubmatch(explanation.Text()); m != nil {
			for i := range q.Answers {
				if q.Answers[i].Letter == m[1] {
					q.Answers[i].IsCorrect = true
				}
			}
		}
	}
	return q
}

func anyCorrect(answers []Answer) bool {
	for _, a := range answers {
		if a.IsCorrect {
			return true
		}
	}
	return false
}
