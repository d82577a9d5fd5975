package models

import "time"

// FrameworkStatus represents a framework's lifecycle stage
type FrameworkStatus string

const (
	FrameworkComing     FrameworkStatus = "coming"
	FrameworkOpen       FrameworkStatus = "open"
	FrameworkPending    FrameworkStatus = "pending"
	FrameworkStandstill FrameworkStatus = "standstill"
	FrameworkLive       FrameworkStatus = "live"
	FrameworkExpired    FrameworkStatus = "expired"
)

// Framework represents a procurement round suppliers apply to join
type Framework struct {
	Slug                       string               `json:"slug"`
	Name                       string               `json:"name"`
	Family                     string               `json:"framework"`
	Status                     FrameworkStatus      `json:"status"`
	Lots                       []Lot                `json:"lots"`
	FrameworkAgreementVersion  string               `json:"frameworkAgreementVersion,omitempty"`
	ClarificationQuestionsOpen bool                 `json:"clarificationQuestionsOpen"`
	AllowDeclarationReuse      bool                 `json:"allowDeclarationReuse"`
	ApplicationCloseDate       time.Time            `json:"applicationCloseDate,omitempty"`
	Variations                 map[string]Variation `json:"variations"`
}

// Lot represents a category of service within a framework
type Lot struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	OneLine bool   `json:"oneServiceLimit"`
}

// Variation represents an amendment to a framework agreement requiring fresh
// supplier acceptance
type Variation struct {
	CreatedAt         time.Time `json:"createdAt"`
	CountersignedAt   time.Time `json:"countersignedAt,omitempty"`
	CountersignerName string    `json:"countersignerName,omitempty"`
	CountersignerRole string    `json:"countersignerRole,omitempty"`
}

// Countersigned reports whether the buyer side has countersigned the variation.
func (v Variation) Countersigned() bool {
	return !v.CountersignedAt.IsZero()
}

// SigningAllowed reports whether agreement-signing actions are permitted for
// the framework's current lifecycle status. Suppliers can only sign during
// standstill and live.
func (f *Framework) SigningAllowed() bool {
	return f.Status == FrameworkStandstill || f.Status == FrameworkLive
}

// Lot returns the lot with the given slug, or nil if the framework has no
// such lot.
func (f *Framework) Lot(slug string) *Lot {
	for i := range f.Lots {
		if f.Lots[i].Slug == slug {
			return &f.Lots[i]
		}
	}
	return nil
}
