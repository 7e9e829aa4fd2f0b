package questionnaire

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"
)

const (
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeScale          = "scale"
	TypeText           = "text"
	TypeBoolean        = "boolean"
)

//go:embed questions.yaml
var questionsYAML []byte

var (
	loadDefaultOnce sync.Once
	defaultCatalog  *Catalog
	defaultErr      error
)

type Question struct {
	ID       string   `yaml:"id" json:"id"`
	Category string   `yaml:"category" json:"category"`
	Text     string   `yaml:"text" json:"question"`
	Type     string   `yaml:"type" json:"type"`
	Options  []string `yaml:"options" json:"options,omitempty"`
	Required bool     `yaml:"required" json:"required"`
	Order    int      `yaml:"order" json:"order"`
}

// Catalog is an immutable, ordered question set.
type Catalog struct {
	questions  []Question
	byID       map[string]int
	categories []string
}

type catalogDocument struct {
	Questions []Question `yaml:"questions"`
}

// Parse decodes a YAML question document and checks it for consistency.
func Parse(data []byte) (*Catalog, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("question catalog is empty")
	}

	qs := append([]Question(nil), doc.Questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })

	c := &Catalog{questions: qs, byID: make(map[string]int, len(qs))}
	seenCategory := map[string]bool{}
	for i, q := range qs {
		if q.ID == "" {
			return nil, fmt.Errorf("question %d has no id", i)
		}
		if _, dup := c.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		switch q.Type {
		case TypeSingleChoice, TypeMultipleChoice, TypeScale:
			if len(q.Options) == 0 {
				return nil, fmt.Errorf("question %q of type %s needs options", q.ID, q.Type)
			}
		case TypeText, TypeBoolean:
		default:
			return nil, fmt.Errorf("question %q has unknown type %q", q.ID, q.Type)
		}
		if q.Type == TypeScale && len(q.Options) < 2 {
			return nil, fmt.Errorf("scale question %q needs at least two options", q.ID)
		}
		c.byID[q.ID] = i
		if !seenCategory[q.Category] {
			seenCategory[q.Category] = true
			c.categories = append(c.categories, q.Category)
		}
	}
	return c, nil
}

// Default returns the embedded catalog. It is parsed once.
func Default() (*Catalog, error) {
	loadDefaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(questionsYAML)
	})
	return defaultCatalog, defaultErr
}

// MustDefault panics if the embedded catalog is malformed.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Questions returns a copy of the questions in display order.
func (c *Catalog) Questions() []Question {
	return append([]Question(nil), c.questions...)
}

func (c *Catalog) Len() int { return len(c.questions) }

func (c *Catalog) Get(id string) (Question, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Question{}, false
	}
	return c.questions[i], true
}

// Categories returns category names in order of first appearance.
func (c *Catalog) Categories() []string {
	return append([]string(nil), c.categories...)
}

// ValidationIssue describes one problem with a submitted answer set.
type ValidationIssue struct {
	QuestionID string
	Rule       string
	Message    string
}

// ValidateComplete checks that every required question has an answer and
// every choice answer is one of the question's options. Unknown question
// ids are tolerated.
func (c *Catalog) ValidateComplete(answers map[string]any) []ValidationIssue {
	var issues []ValidationIssue
	for _, q := range c.questions {
		v, ok := answers[q.ID]
		if !ok || !answered(v) {
			if q.Required {
				issues = append(issues, ValidationIssue{q.ID, "required", fmt.Sprintf("%q must be answered", q.Text)})
			}
			continue
		}
		if msg := c.checkAnswer(q, v); msg != "" {
			issues = append(issues, ValidationIssue{q.ID, "option", msg})
		}
	}
	return issues
}

func (c *Catalog) checkAnswer(q Question, v any) string {
	switch q.Type {
	case TypeSingleChoice:
		s, ok := v.(string)
		if !ok || !contains(q.Options, s) {
			return fmt.Sprintf("answer for %s is not one of the listed options", q.ID)
		}
	case TypeMultipleChoice:
		list, ok := stringList(v)
		if !ok {
			return fmt.Sprintf("answer for %s must be a list of options", q.ID)
		}
		for _, s := range list {
			if !contains(q.Options, s) {
				return fmt.Sprintf("answer %q for %s is not one of the listed options", s, q.ID)
			}
		}
	case TypeScale:
		n, ok := scaleIndex(q, v)
		if !ok || n < 0 || n >= len(q.Options) {
			return fmt.Sprintf("answer for %s must be a scale position between 0 and %d", q.ID, len(q.Options)-1)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("answer for %s must be true or false", q.ID)
		}
	}
	return ""
}

// answered mirrors how the quiz treats blanks: nil, "" and empty lists
// are unanswered. Arrays read back from Mongo arrive as bson.A.
func answered(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case bson.A:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	return true
}

func stringList(v any) ([]string, bool) {
	if a, ok := v.(bson.A); ok {
		v = []any(a)
	}
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// scaleIndex reads a scale answer. The quiz stores the selected position
// as a number or a numeric string; an option label is accepted too.
func scaleIndex(q Question, v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, true
		}
		for i, opt := range q.Options {
			if opt == t {
				return i, true
			}
		}
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
