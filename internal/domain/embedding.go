package domain

// EmbeddingTask tells the embedding adapter whether inputs are stored
// passages or search queries.
type EmbeddingTask string

const (
	EmbeddingTaskDocument EmbeddingTask = "document"
	EmbeddingTaskQuery    EmbeddingTask = "query"
)

// Prompt is a generation request split into its instruction and content parts.
type Prompt struct {
	System string
	User   string
}
