package domain

// VisitOccurred is published once a new Visit has been stored without a location.
type VisitOccurred struct {
	VisitID string `json:"visit_id"`
}
