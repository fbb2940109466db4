package domain

// Chunk is a group of consecutive source lines used as one unit of retrieval.
// Index is the chunk's position in the ordered chunk sequence and equals the
// row of its embedding in the vector index.
type Chunk struct {
	Index int
	Text  string
}

// Match is a single nearest-neighbor hit: the index row and its squared
// Euclidean distance to the query.
type Match struct {
	Row      int
	Distance float32
}

// Status describes the lifecycle of a retrieval index.
type Status int

const (
	// StatusUninitialized means no build has completed yet.
	StatusUninitialized Status = iota
	// StatusEmpty means the last build found no indexable content.
	StatusEmpty
	// StatusReady means the last build produced a searchable index.
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Chunker splits cleaned lines into ordered chunks.
type Chunker interface {
	Chunk(lines []string) []Chunk
}

// SearchResult pairs a retrieved chunk with its distance to the query.
type SearchResult struct {
	Chunk    Chunk
	Distance float32
}
