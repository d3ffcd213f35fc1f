package domain

// Contact sources.
const (
	SourceSavedRelation  = "saved_relation"
	SourceGoogleContacts = "google_contacts"
)

// Contact is one entry of a merged contact search.
type Contact struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Source string `json:"source,omitempty"`
}

// Relation records that owner has written to Email under a relation label.
type Relation struct {
	Owner    string
	Relation string
	Email    string
}
