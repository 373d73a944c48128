// Package source recognises the question banks a captured page came from and
// turns each page into cleaned question, answer and explanation blocks.
package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/qbank/pkg/cleaner"
)

// Kind names a question bank layout.
type Kind string

const (
	KindACEP    Kind = "acep"
	KindMKSAP   Kind = "mksap"
	KindGeneric Kind = "generic"
)

// Placeholders emitted when a block cannot be located.
const (
	QuestionNotFound    = "<i>Question not found.</i>"
	ExplanationNotFound = "<i>Explanation not found.</i>"
	NoContent           = "<i>No content available.</i>"
	NoExplanation       = "<i>No explanation available.</i>"
)

// Answer is one answer choice.
type Answer struct {
	Text           string   `json:"text" yaml:"text"`
	IsCorrect      bool     `json:"is_correct" yaml:"is_correct"`
	PeerPercentage *float64 `json:"peer_percentage" yaml:"peer_percentage"`
	Letter         string   `json:"letter,omitempty" yaml:"letter,omitempty"`
}

// Question is the structured result of parsing one captured page.
type Question struct {
	Kind            Kind     `json:"kind" yaml:"kind"`
	QuestionHTML    string   `json:"question_html" yaml:"question_html"`
	Answers         []Answer `json:"answers" yaml:"answers"`
	ExplanationHTML string   `json:"explanation_html" yaml:"explanation_html"`
	Images          []string `json:"images" yaml:"images"`
}

// Rule pairs a layout fingerprint with the parser for it.
type Rule struct {
	Kind  Kind
	Match func(doc *goquery.Document) bool
	Parse func(doc *goquery.Document, w *cleaner.Whitelist) Question
}

// Rules are tried in order; the first match wins.
var Rules = []Rule{
	{Kind: KindACEP, Match: matchACEP, Parse: parseACEP},
	{Kind: KindMKSAP, Match: matchMKSAP, Parse: parseMKSAP},
}

var genericRule = Rule{Kind: KindGeneric, Match: func(*goquery.Document) bool { return true }, Parse: parseGeneric}

// Detect returns the first rule matching doc, falling back to the generic rule.
func Detect(doc *goquery.Document) Rule {
	for _, r := range Rules {
		if r.Match(doc) {
			return r
		}
	}
	return genericRule
}

// Parse parses a captured page. Image sources are resolved against baseURL.
func Parse(rawHTML, baseURL string) (*Question, error) {
	if rawHTML == "" {
		return &Question{
			Kind:            KindGeneric,
			QuestionHTML:    NoContent,
			Answers:         []Answer{},
			ExplanationHTML: NoExplanation,
			Images:          []string{},
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	doc.Find(cleaner.StripSelector).Remove()

	w := cleaner.New(baseURL)
	rule := Detect(doc)
	q := rule.Parse(doc, w)
	q.Kind = rule.Kind
	q.Images = w.Images()
	if q.Answers == nil {
		q.Answers = []Answer{}
	}
	return &q, nil
}

// ParseWithMetadata parses a page using the "url" field of its capture
// metadata as the base URL.
func ParseWithMetadata(rawHTML string, metadata map[string]any) (*Question, error) {
	base, _ := metadata["url"].(string)
	return Parse(rawHTML, base)
}

// render cleans the first node of sel, or returns fallback when sel is empty.
func render(w *cleaner.Whitelist, sel *goquery.Selection, fallback string) string {
	if sel.Length() == 0 {
		return fallback
	}
	return w.Render(cleaner.FromHTML(sel.Get(0)))
}

// ParsePercent reads values such as "45%" or " 12.5 % ". Anything that is
// not a finite number yields nil.
func ParsePercent(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// normalizeText trims text and collapses internal whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
