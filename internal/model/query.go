package model

type QueryStatus string

const (
	QueryStatusAnswered      QueryStatus = "answered"
	QueryStatusRetrievedOnly QueryStatus = "retrieved_only"
	QueryStatusNotFound      QueryStatus = "not_found"
	QueryStatusRejected      QueryStatus = "rejected"
)

type QueryRequest struct {
	QueryText        string
	CollectionID     string
	InvokeGeneration bool
	// NumberOfResults is nil when the caller did not ask for a specific count.
	NumberOfResults *int
	Conversational  bool
	Generation      GenerationParams
}

type Citation struct {
	Source string `json:"source"`
	Page   *int   `json:"page"`
}

type Passage struct {
	Source string  `json:"source"`
	Page   *int    `json:"page,omitempty"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

type QueryResponse struct {
	Status           QueryStatus `json:"status"`
	Answer           string      `json:"answer,omitempty"`
	Citations        []Citation  `json:"sourceDocumentsContent"`
	Passages         []Passage   `json:"passages,omitempty"`
	GenerationFailed bool        `json:"generationFailed,omitempty"`
	Cached           bool        `json:"cached,omitempty"`
	// Message explains a not_found or rejected outcome.
	Message string `json:"message,omitempty"`
}
