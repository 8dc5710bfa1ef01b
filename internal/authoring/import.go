package authoring

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
)

//go:embed definition.schema.json
var definitionSchema []byte

const definitionSchemaURL = "schema://quiz-definition.json"

var printer = message.NewPrinter(language.English)

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(definitionSchema))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(definitionSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}

	return c.Compile(definitionSchemaURL)
})

// ParseDefinition decodes a quiz definition document, checks it against the document schema and then against
// the authoring rules. Missing ids are filled with draft ids, missing points default to 1 and missing orders
// follow the document order.
func ParseDefinition(data []byte, opts ...Option) (domain.Definition, error) {
	schema, err := compileSchema()
	if err != nil {
		return domain.Definition{}, errors.Internal(fmt.Errorf("compile definition schema: %w", err))
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return domain.Definition{}, errors.Validation(errors.Violation{Field: "document", Message: fmt.Sprintf("invalid JSON: %s", err)})
	}

	if err := schema.Validate(doc); err != nil {
		return domain.Definition{}, errors.Validation(schemaViolations(err)...)
	}

	var def domain.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return domain.Definition{}, errors.Validation(errors.Violation{Field: "document", Message: err.Error()})
	}

	fillDefaults(&def)
	return FromDefinition(def, opts...).Definition()
}

func fillDefaults(def *domain.Definition) {
	if def.Quiz.QuizID == "" {
		def.Quiz.QuizID = newID()
	}

	for i := range def.Questions {
		q := &def.Questions[i]
		if q.QuestionID == "" {
			q.QuestionID = newID()
		}
		if q.Points == 0 {
			q.Points = 1
		}
		if q.Order == 0 {
			q.Order = i + 1
		}
		q.QuizID = def.Quiz.QuizID

		for j := range q.Options {
			o := &q.Options[j]
			if o.OptionID == "" {
				o.OptionID = newID()
			}
			if o.Order == 0 {
				o.Order = j + 1
			}
			o.QuestionID = q.QuestionID
		}
	}
}

func schemaViolations(err error) []errors.Violation {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []errors.Violation{{Field: "document", Message: err.Error()}}
	}

	var vs []errors.Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			vs = append(vs, errors.Violation{
				Field:   "/" + strings.Join(e.InstanceLocation, "/"),
				Message: e.ErrorKind.LocalizedString(printer),
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)

	return vs
}

