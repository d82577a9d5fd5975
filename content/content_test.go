package content

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
)

func newLoader(t *testing.T) *Loader {
	t.Helper()
	loader, err := NewLoader()
	require.NoError(t, err)
	return loader
}

func TestLoaderParsesEmbeddedManifests(t *testing.T) {
	loader := newLoader(t)

	m, err := loader.Manifest("g-cloud-7", "declaration")
	require.NoError(t, err)
	assert.Equal(t, "Supplier declaration", m.Name)
	require.NotEmpty(t, m.Sections)
	assert.Equal(t, "essential-information", m.Sections[0].ID)
	assert.False(t, m.Sections[0].Prefill)
	assert.True(t, m.Sections[1].Prefill)

	assert.Contains(t, loader.Frameworks(), "g-cloud-8")
}

func TestLoaderUnknownManifest(t *testing.T) {
	loader := newLoader(t)

	_, err := loader.Manifest("g-cloud-7", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = loader.Manifest("g-cloud-99", "declaration")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManifestSectionLookup(t *testing.T) {
	loader := newLoader(t)
	m, err := loader.Manifest("g-cloud-7", "declaration")
	require.NoError(t, err)

	section, err := m.Section("grounds-for-mandatory-exclusion")
	require.NoError(t, err)
	assert.Equal(t, "Grounds for mandatory exclusion", section.Name)

	_, err = m.Section("missing-section")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilterByLot(t *testing.T) {
	m := &Manifest{
		Sections: []Section{
			{ID: "everyone"},
			{ID: "specialists-only", Lots: []string{"digital-specialists"}},
			{ID: "outcomes-only", Lots: []string{"digital-outcomes"}},
		},
	}

	filtered := m.Filter("digital-specialists")
	require.Len(t, filtered.Sections, 2)
	assert.Equal(t, "everyone", filtered.Sections[0].ID)
	assert.Equal(t, "specialists-only", filtered.Sections[1].ID)
}

func TestSectionGetData(t *testing.T) {
	section := Section{
		Questions: []Question{
			{ID: "availability", Type: QuestionText},
			{ID: "skills", Type: QuestionBooleanList},
			{ID: "confirmed", Type: QuestionBoolean},
			{ID: "extras", Type: QuestionList, Optional: true},
		},
	}

	form := url.Values{
		"availability": {"  two weeks  "},
		"skills":       {"true", "false", "true"},
		"confirmed":    {"true"},
	}
	data := section.GetData(form)

	assert.Equal(t, "two weeks", data["availability"])
	assert.Equal(t, []bool{true, false, true}, data["skills"])
	assert.Equal(t, true, data["confirmed"])
	assert.NotContains(t, data, "extras")
}

func TestSectionGetDataMissingRequiredFields(t *testing.T) {
	section := Section{
		Questions: []Question{
			{ID: "availability", Type: QuestionText},
			{ID: "skills", Type: QuestionBooleanList},
		},
	}

	data := section.GetData(url.Values{})

	assert.Equal(t, "", data["availability"])
	assert.Equal(t, []bool{}, data["skills"])
}

func TestSectionComplete(t *testing.T) {
	section := Section{
		Questions: []Question{
			{ID: "name", Type: QuestionText},
			{ID: "agreed", Type: QuestionBoolean},
			{ID: "notes", Type: QuestionText, Optional: true},
		},
	}

	assert.False(t, section.Complete(nil))
	assert.False(t, section.Complete(models.Declaration{"name": "ACME"}))
	assert.False(t, section.Complete(models.Declaration{"name": "  ", "agreed": true}))
	assert.True(t, section.Complete(models.Declaration{"name": "ACME", "agreed": false}))
}

func TestSectionErrorMessages(t *testing.T) {
	section := Section{
		Questions: []Question{
			{ID: "primaryContactEmail", Errors: map[string]string{
				"answer_required": "You need to answer this question.",
				"invalid_format":  "You must provide a valid email address.",
			}},
			{ID: "nameOfOrganisation", Errors: map[string]string{
				"answer_required": "You need to answer this question.",
			}},
		},
	}

	messages := section.ErrorMessages(map[string]string{
		"primaryContactEmail": "invalid_format",
		"nameOfOrganisation":  "some_unknown_code",
		"unlistedField":       "answer_required",
	})

	assert.Equal(t, "You must provide a valid email address.", messages["primaryContactEmail"])
	assert.Equal(t, "There was a problem with the answer to this question", messages["nameOfOrganisation"])
	assert.NotContains(t, messages, "unlistedField")

	assert.Nil(t, section.ErrorMessages(nil))
}

func TestDeclarationStatus(t *testing.T) {
	m := &Manifest{
		Sections: []Section{
			{Questions: []Question{{ID: "a", Type: QuestionText}}},
			{Questions: []Question{{ID: "b", Type: QuestionBoolean}}},
		},
	}

	assert.Equal(t, models.DeclarationStarted, m.DeclarationStatus(models.Declaration{"a": "yes"}))
	assert.Equal(t, models.DeclarationComplete, m.DeclarationStatus(models.Declaration{"a": "yes", "b": false}))
}

func TestFirstEditableSection(t *testing.T) {
	loader := newLoader(t)
	m, err := loader.Manifest("digital-outcomes-and-specialists", "edit_brief_response")
	require.NoError(t, err)

	section, err := m.FirstEditableSection()
	require.NoError(t, err)
	assert.Equal(t, "apply", section.ID)
	assert.Contains(t, section.FieldNames(), "essentialRequirements")
}
