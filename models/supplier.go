package models

import "time"

// DeclarationStatus represents how much of a supplier declaration has been
// answered
type DeclarationStatus string

const (
	DeclarationNotStarted DeclarationStatus = "not-started"
	DeclarationStarted    DeclarationStatus = "started"
	DeclarationComplete   DeclarationStatus = "complete"
)

// Declaration is a supplier's structured eligibility questionnaire for a
// framework: a mapping from question key to answer plus a status field.
type Declaration map[string]interface{}

// Status returns the declaration's status field, defaulting to not-started.
func (d Declaration) Status() DeclarationStatus {
	if d == nil {
		return DeclarationNotStarted
	}
	if s, ok := d["status"].(string); ok && s != "" {
		return DeclarationStatus(s)
	}
	return DeclarationNotStarted
}

// String returns the string answer stored under key, or "" if absent or not
// a string.
func (d Declaration) String(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

// SupplierFramework represents the relationship between a supplier and a
// framework
type SupplierFramework struct {
	SupplierID                         int                       `json:"supplierId"`
	FrameworkSlug                      string                    `json:"frameworkSlug"`
	OnFramework                        bool                      `json:"onFramework"`
	Declaration                        Declaration               `json:"declaration"`
	AgreementReturned                  bool                      `json:"agreementReturned"`
	AgreementReturnedAt                time.Time                 `json:"agreementReturnedAt,omitempty"`
	AgreementPath                      string                    `json:"agreementPath,omitempty"`
	AgreementDetails                   *AgreementDetails         `json:"agreementDetails,omitempty"`
	Countersigned                      bool                      `json:"countersigned"`
	CountersignedPath                  string                    `json:"countersignedPath,omitempty"`
	AgreedVariations                   map[string]AgreedVariation `json:"agreedVariations"`
	PrefillDeclarationFromFrameworkSlug string                   `json:"prefillDeclarationFromFrameworkSlug,omitempty"`
}

// AgreedVariation records a supplier's acceptance of a contract variation
type AgreedVariation struct {
	AgreedAt        time.Time `json:"agreedAt"`
	AgreedUserID    int       `json:"agreedUserId"`
	AgreedUserEmail string    `json:"agreedUserEmail"`
	AgreedUserName  string    `json:"agreedUserName"`
}

// AgreementDetails carries signer metadata recorded against a returned
// agreement
type AgreementDetails struct {
	SignerName     string `json:"signerName,omitempty"`
	SignerRole     string `json:"signerRole,omitempty"`
	UploaderUserID int    `json:"uploaderUserId,omitempty"`
	FrameworkAgreementVersion string `json:"frameworkAgreementVersion,omitempty"`
}

// PrimaryContactEmail returns the declaration's primary contact email, or ""
// when no declaration has been made.
func (sf *SupplierFramework) PrimaryContactEmail() string {
	return sf.Declaration.String("primaryContactEmail")
}

// OrganisationName returns the organisation name given in the declaration.
func (sf *SupplierFramework) OrganisationName() string {
	return sf.Declaration.String("nameOfOrganisation")
}
