package models

// BriefStatus represents the lifecycle status of a buyer-posted opportunity
type BriefStatus string

const (
	BriefDraft  BriefStatus = "draft"
	BriefLive   BriefStatus = "live"
	BriefClosed BriefStatus = "closed"
)

// Brief represents an opportunity posted by a buyer
type Brief struct {
	ID                              int         `json:"id"`
	Title                           string      `json:"title"`
	FrameworkSlug                   string      `json:"frameworkSlug"`
	FrameworkName                   string      `json:"frameworkName"`
	FrameworkFamily                 string      `json:"frameworkFramework"`
	LotSlug                         string      `json:"lotSlug"`
	SpecialistRole                  string      `json:"specialistRole,omitempty"`
	Status                          BriefStatus `json:"status"`
	ClarificationQuestionsAreClosed bool        `json:"clarificationQuestionsAreClosed"`
	QuestionAndAnswerSessionDetails string      `json:"questionAndAnswerSessionDetails,omitempty"`
	EssentialRequirements           []string    `json:"essentialRequirements,omitempty"`
	NiceToHaveRequirements          []string    `json:"niceToHaveRequirements,omitempty"`
	Users                           []User      `json:"users,omitempty"`
}

// BuyerEmailAddresses returns the email addresses of the buyer users
// attached to the brief.
func (b *Brief) BuyerEmailAddresses() []string {
	addresses := make([]string, 0, len(b.Users))
	for _, u := range b.Users {
		if u.Active && u.EmailAddress != "" {
			addresses = append(addresses, u.EmailAddress)
		}
	}
	return addresses
}

// BriefResponseStatus represents the status of a supplier's application to a
// brief
type BriefResponseStatus string

const (
	BriefResponseDraft     BriefResponseStatus = "draft"
	BriefResponseSubmitted BriefResponseStatus = "submitted"
)

// BriefResponse represents a supplier's application to a brief
type BriefResponse struct {
	ID                    int                 `json:"id"`
	BriefID               int                 `json:"briefId"`
	SupplierID            int                 `json:"supplierId"`
	Status                BriefResponseStatus `json:"status"`
	EssentialRequirements []bool              `json:"essentialRequirements"`
}

// MeetsAllEssentialRequirements reports whether the response affirms every
// essential requirement. An empty requirement list is treated as not meeting
// them: the upstream completeness check never produces an essential-free
// submitted response, so vacuous success would mask a bad payload.
func (br *BriefResponse) MeetsAllEssentialRequirements() bool {
	if len(br.EssentialRequirements) == 0 {
		return false
	}
	for _, met := range br.EssentialRequirements {
		if !met {
			return false
		}
	}
	return true
}

// User represents an authenticated marketplace user attached to a supplier
// or buyer account
type User struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	EmailAddress string `json:"emailAddress"`
	Role         string `json:"role"`
	Active       bool   `json:"active"`
}
