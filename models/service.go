package models

// Service represents a published service offered by a supplier on a framework
type Service struct {
	ID            string `json:"id"`
	SupplierID    int    `json:"supplierId"`
	FrameworkSlug string `json:"frameworkSlug"`
	LotSlug       string `json:"lot"`
	ServiceName   string `json:"serviceName"`
	Status        string `json:"status"`
}

// DraftServiceStatus represents the submission state of a draft service
type DraftServiceStatus string

const (
	DraftNotSubmitted DraftServiceStatus = "not-submitted"
	DraftSubmitted    DraftServiceStatus = "submitted"
	DraftFailed       DraftServiceStatus = "failed"
)

// DraftService represents a supplier's in-progress or submitted response to
// a lot
type DraftService struct {
	ID            int                `json:"id"`
	SupplierID    int                `json:"supplierId"`
	FrameworkSlug string             `json:"frameworkSlug"`
	LotSlug       string             `json:"lot"`
	ServiceName   string             `json:"serviceName"`
	Status        DraftServiceStatus `json:"status"`
}
