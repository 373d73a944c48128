package extractor

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MinimalQuestion is the clean-slate extraction of one question: the shared
// clinical vignette and the question being asked, nothing else.
type MinimalQuestion struct {
	ContextHTML string `json:"question_context_html" yaml:"question_context_html"`
	StemHTML    string `json:"question_stem_html" yaml:"question_stem_html"`
}

// Batch is the container the model answers with.
type Batch struct {
	Questions []MinimalQuestion `json:"questions" yaml:"questions"`
}

// First returns the first question of the batch.
func (b Batch) First() (MinimalQuestion, bool) {
	if len(b.Questions) == 0 {
		return MinimalQuestion{}, false
	}
	return b.Questions[0], true
}

// optionalString records whether a JSON field was present and whether it was
// an explicit null, which a plain string cannot tell apart from "".
type optionalString struct {
	set   bool
	null  bool
	value string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.set = true
	if string(data) == "null" {
		o.null = true
		return nil
	}
	return json.Unmarshal(data, &o.value)
}

type rawQuestion struct {
	Context optionalString `json:"question_context_html"`
	Stem    optionalString `json:"question_stem_html"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		q := sl.Current().Interface().(rawQuestion)
		if !q.Stem.set || q.Stem.null {
			sl.ReportError(q.Stem.value, "question_stem_html", "Stem", "required", "")
		}
		if q.Context.null {
			sl.ReportError(q.Context.value, "question_context_html", "Context", "notnull", "")
		}
	}, rawQuestion{})
	return v
}

// ParseBatch strictly decodes a model response into a Batch.
//
// Bytes that are not JSON yield a *DecodeError. Well-formed JSON of the wrong
// shape (no questions array, a missing or null stem, a null context) yields a
// *ValidationError. A missing context defaults to "" and unknown keys are
// ignored.
func ParseBatch(data []byte) (Batch, error) {
	if !json.Valid(data) {
		return Batch{}, &DecodeError{Content: truncateForError(string(data))}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Batch{}, &ValidationError{Problems: []FieldError{{Field: "$", Message: "must be an object"}}}
	}
	rawList, ok := top["questions"]
	if !ok || string(rawList) == "null" {
		return Batch{}, &ValidationError{Problems: []FieldError{{Field: "questions", Message: "is required"}}}
	}

	var raws []rawQuestion
	if err := json.Unmarshal(rawList, &raws); err != nil {
		return Batch{}, &ValidationError{Problems: []FieldError{{Field: "questions", Message: typeMessage(err)}}}
	}

	var problems []FieldError
	batch := Batch{Questions: make([]MinimalQuestion, 0, len(raws))}
	for i, raw := range raws {
		if err := validate.Struct(raw); err != nil {
			verrs, ok := err.(validator.ValidationErrors)
			if !ok {
				return Batch{}, err
			}
			for _, e := range verrs {
				problems = append(problems, FieldError{
					Field:   fmt.Sprintf("questions[%d].%s", i, e.Field()),
					Message: formatFieldError(e),
				})
			}
			continue
		}
		batch.Questions = append(batch.Questions, MinimalQuestion{
			ContextHTML: raw.Context.value,
			StemHTML:    raw.Stem.value,
		})
	}
	if len(problems) > 0 {
		return Batch{}, &ValidationError{Problems: problems}
	}
	return batch, nil
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "notnull":
		return "must not be null"
	default:
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}

func typeMessage(err error) string {
	if te, ok := err.(*json.UnmarshalTypeError); ok {
		return fmt.Sprintf("expected %s, got %s", te.Type, te.Value)
	}
	return err.Error()
}
