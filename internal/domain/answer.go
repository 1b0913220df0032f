package domain

// RetrievedReference is a section returned by hybrid retrieval.
type RetrievedReference struct {
	SectionID     string  `json:"section_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title,omitempty"`
	PageNumber    int     `json:"page_number"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	Rank          int     `json:"rank"`
	Marker        string  `json:"marker,omitempty"`
}

// Answer is generated text plus the subset of references it actually cites.
type Answer struct {
	Text              string
	CitedReferenceIDs []string
	Grounded          bool
	Refused           bool
}
