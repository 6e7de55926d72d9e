package model

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// CollectionDocument is one ingested source document of a collection.
type CollectionDocument struct {
	ID     string         `json:"id"`
	File   string         `json:"file,omitempty"`
	Status DocumentStatus `json:"status"`
	Chunks int            `json:"chunks"`
	Mtime  int64          `json:"mtime"`
}

// CollectionManifest lists the documents of a collection. Only completed
// documents are searchable.
type CollectionManifest struct {
	ID        string               `json:"id"`
	Dimension int                  `json:"dimension"`
	Documents []CollectionDocument `json:"documents"`
}
