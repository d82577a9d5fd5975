// Package content resolves the question manifests that drive the
// dynamically-rendered multi-page forms. Manifests are YAML definitions
// embedded in the binary and parsed once at startup into a typed schema:
// manifest -> ordered sections -> ordered question descriptors.
package content

import (
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
)

//go:embed manifests
var manifestFS embed.FS

// ErrNotFound is returned when a framework, manifest or section is not
// defined in the embedded content.
var ErrNotFound = fmt.Errorf("content not found")

// QuestionType enumerates the supported form widget types
type QuestionType string

const (
	QuestionText        QuestionType = "text"
	QuestionTextarea    QuestionType = "textarea"
	QuestionBoolean     QuestionType = "boolean"
	QuestionBooleanList QuestionType = "boolean_list"
	QuestionList        QuestionType = "list"
	QuestionRadios      QuestionType = "radios"
)

// Question describes a single form field: its id doubles as the declaration
// key and the form input name.
type Question struct {
	ID       string            `yaml:"id"`
	Label    string            `yaml:"label"`
	Type     QuestionType      `yaml:"type"`
	Optional bool              `yaml:"optional"`
	Hint     string            `yaml:"hint,omitempty"`
	Options  []string          `yaml:"options,omitempty"`
	Errors   map[string]string `yaml:"errors,omitempty"`
}

// Section is an ordered group of questions edited on one page
type Section struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Editable  bool       `yaml:"editable"`
	Prefill   bool       `yaml:"prefill"`
	Lots      []string   `yaml:"lots,omitempty"`
	Questions []Question `yaml:"questions"`
}

// Manifest is a named, ordered collection of sections for one framework
type Manifest struct {
	Name     string    `yaml:"name"`
	Sections []Section `yaml:"sections"`
}

// Loader serves parsed manifests keyed by framework slug and manifest name.
type Loader struct {
	manifests map[string]*Manifest
}

// NewLoader parses every embedded manifest. Malformed YAML fails startup
// rather than a request.
func NewLoader() (*Loader, error) {
	loader := &Loader{manifests: map[string]*Manifest{}}

	err := fs.WalkDir(manifestFS, "manifests", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".yml") {
			return nil
		}

		raw, err := manifestFS.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		var m Manifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("parsing %s: %w", p, err)
		}

		framework := path.Base(path.Dir(p))
		name := strings.TrimSuffix(path.Base(p), ".yml")
		loader.manifests[framework+"/"+name] = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loader, nil
}

// Manifest returns the named manifest for a framework.
func (l *Loader) Manifest(frameworkSlug, name string) (*Manifest, error) {
	m, ok := l.manifests[frameworkSlug+"/"+name]
	if !ok {
		return nil, fmt.Errorf("manifest %q for framework %q: %w", name, frameworkSlug, ErrNotFound)
	}
	return m, nil
}

// Frameworks lists the framework slugs content is defined for, sorted.
func (l *Loader) Frameworks() []string {
	seen := map[string]bool{}
	for key := range l.manifests {
		seen[strings.SplitN(key, "/", 2)[0]] = true
	}
	slugs := make([]string, 0, len(seen))
	for slug := range seen {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Filter returns a copy of the manifest containing only sections applicable
// to the given lot. Sections with no lot restriction always apply.
func (m *Manifest) Filter(lotSlug string) *Manifest {
	filtered := &Manifest{Name: m.Name}
	for _, section := range m.Sections {
		if len(section.Lots) == 0 {
			filtered.Sections = append(filtered.Sections, section)
			continue
		}
		for _, lot := range section.Lots {
			if lot == lotSlug {
				filtered.Sections = append(filtered.Sections, section)
				break
			}
		}
	}
	return filtered
}

// Section returns the section with the given id.
func (m *Manifest) Section(id string) (*Section, error) {
	for i := range m.Sections {
		if m.Sections[i].ID == id {
			return &m.Sections[i], nil
		}
	}
	return nil, fmt.Errorf("section %q: %w", id, ErrNotFound)
}

// FirstEditableSection returns the first section marked editable.
func (m *Manifest) FirstEditableSection() (*Section, error) {
	for i := range m.Sections {
		if m.Sections[i].Editable {
			return &m.Sections[i], nil
		}
	}
	return nil, fmt.Errorf("no editable section: %w", ErrNotFound)
}

// FieldNames returns the question ids a section submits.
func (s *Section) FieldNames() []string {
	names := make([]string, len(s.Questions))
	for i, q := range s.Questions {
		names[i] = q.ID
	}
	return names
}

// GetData extracts this section's typed answers from submitted form values.
// Absent optional fields are omitted; absent required fields are included as
// empty values so the API's validation sees them.
func (s *Section) GetData(form url.Values) map[string]interface{} {
	data := map[string]interface{}{}
	for _, q := range s.Questions {
		values, present := form[q.ID]
		switch q.Type {
		case QuestionBoolean:
			if !present || values[0] == "" {
				if !q.Optional {
					data[q.ID] = nil
				}
				continue
			}
			data[q.ID] = values[0] == "true" || values[0] == "True"
		case QuestionBooleanList:
			if !present {
				if !q.Optional {
					data[q.ID] = []bool{}
				}
				continue
			}
			bools := make([]bool, len(values))
			for i, v := range values {
				bools[i] = v == "true" || v == "True"
			}
			data[q.ID] = bools
		case QuestionList:
			if !present {
				if !q.Optional {
					data[q.ID] = []string{}
				}
				continue
			}
			items := make([]string, 0, len(values))
			for _, v := range values {
				if v = strings.TrimSpace(v); v != "" {
					items = append(items, v)
				}
			}
			data[q.ID] = items
		default:
			if !present {
				if !q.Optional {
					data[q.ID] = ""
				}
				continue
			}
			data[q.ID] = strings.TrimSpace(values[0])
		}
	}
	return data
}

// Answered reports whether a declaration holds a usable answer for the
// question.
func (q *Question) Answered(declaration models.Declaration) bool {
	if declaration == nil {
		return false
	}
	value, ok := declaration[q.ID]
	if !ok || value == nil {
		return false
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case []interface{}:
		return len(v) > 0
	case []bool:
		return len(v) > 0
	case []string:
		return len(v) > 0
	default:
		return true
	}
}

// Complete reports whether every required question in the section is
// answered in the declaration.
func (s *Section) Complete(declaration models.Declaration) bool {
	for i := range s.Questions {
		q := &s.Questions[i]
		if q.Optional {
			continue
		}
		if !q.Answered(declaration) {
			return false
		}
	}
	return true
}

// ErrorMessages translates API field error codes into the section's
// human-readable messages, keyed by question id. Codes without a manifest
// message fall back to a generic one.
func (s *Section) ErrorMessages(fieldErrors map[string]string) map[string]string {
	if len(fieldErrors) == 0 {
		return nil
	}
	messages := map[string]string{}
	for i := range s.Questions {
		q := &s.Questions[i]
		code, ok := fieldErrors[q.ID]
		if !ok {
			continue
		}
		if msg, ok := q.Errors[code]; ok {
			messages[q.ID] = msg
		} else {
			messages[q.ID] = "There was a problem with the answer to this question"
		}
	}
	return messages
}

// DeclarationStatus derives the declaration's status from the manifest:
// complete when every section's required questions are answered, otherwise
// started.
func (m *Manifest) DeclarationStatus(declaration models.Declaration) models.DeclarationStatus {
	for i := range m.Sections {
		if !m.Sections[i].Complete(declaration) {
			return models.DeclarationStarted
		}
	}
	return models.DeclarationComplete
}
