package models

// FrameworkAgreement represents a per-supplier signing record for a framework
type FrameworkAgreement struct {
	ID                      int               `json:"id"`
	SupplierID              int               `json:"supplierId"`
	FrameworkSlug           string            `json:"frameworkSlug"`
	SignedAgreementDetails  *AgreementDetails `json:"signedAgreementDetails,omitempty"`
	SignedAgreementPath     string            `json:"signedAgreementPath,omitempty"`
	SignedAgreementReturnedAt string          `json:"signedAgreementReturnedAt,omitempty"`
}

// SignerName returns the recorded signer name, or "" if signer details have
// not been provided yet.
func (a *FrameworkAgreement) SignerName() string {
	if a.SignedAgreementDetails == nil {
		return ""
	}
	return a.SignedAgreementDetails.SignerName
}

// SignerRole returns the recorded signer role, or "" if signer details have
// not been provided yet.
func (a *FrameworkAgreement) SignerRole() string {
	if a.SignedAgreementDetails == nil {
		return ""
	}
	return a.SignedAgreementDetails.SignerRole
}
