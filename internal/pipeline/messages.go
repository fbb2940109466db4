package pipeline

import (
	"docqa/internal/domain"
	"docqa/internal/interactionlog"
)

// Participants of the pipeline, used as message senders and receivers.
const (
	AgentUI          = "UI"
	AgentIngestion   = "IngestionAgent"
	AgentRetrieval   = "RetrievalAgent"
	AgentLLM         = "LLMResponseAgent"
	AgentLogging     = "LoggingAgent"
	AgentCoordinator = "Coordinator"
)

// Kind names a message variant.
type Kind string

const (
	KindDocumentUpload  Kind = "DOCUMENT_UPLOAD"
	KindBuildRequest    Kind = "BUILD_REQUEST"
	KindBuildResult     Kind = "BUILD_RESULT"
	KindRetrieveRequest Kind = "RETRIEVE_REQUEST"
	KindRetrieveResult  Kind = "RETRIEVE_RESULT"
	KindAnswerResponse  Kind = "ANSWER_RESPONSE"
	KindLogRequest      Kind = "LOGGING_REQUEST"
)

// Envelope carries routing data common to every message.
type Envelope struct {
	Sender   string
	Receiver string
	TraceID  string
}

// Route returns the envelope itself. It is promoted to every variant.
func (e Envelope) Route() Envelope { return e }

// Message is one hop between pipeline stages. The set of variants is
// closed: DocumentUpload, BuildRequest, BuildResult, RetrieveRequest,
// RetrieveResult, AnswerResponse and LogRequest.
type Message interface {
	Kind() Kind
	Route() Envelope
	sealed()
}

// DocumentUpload asks ingestion to extract text from FilePath.
type DocumentUpload struct {
	Envelope
	FilePath     string
	DocumentType string
}

// BuildRequest asks retrieval to index the extracted text at TextPath.
type BuildRequest struct {
	Envelope
	TextPath string
}

// BuildResult reports the index state after a build.
type BuildResult struct {
	Envelope
	Status domain.Status
	Chunks int
}

// RetrieveRequest asks for the K chunks nearest to Query.
type RetrieveRequest struct {
	Envelope
	Query string
	K     int
}

// RetrieveResult carries the retrieved chunks, nearest first.
type RetrieveResult struct {
	Envelope
	Query   string
	Results []domain.SearchResult
}

// Texts returns the chunk texts of r in rank order.
func (r RetrieveResult) Texts() []string {
	out := make([]string, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Chunk.Text
	}
	return out
}

// AnswerResponse is the final answer with the chunks it was built from.
type AnswerResponse struct {
	Envelope
	Question string
	Answer   string
	Sources  []string
	Timings  Timings
}

// LogRequest asks the interaction log to persist Record.
type LogRequest struct {
	Envelope
	Record interactionlog.Record
}

func (DocumentUpload) Kind() Kind  { return KindDocumentUpload }
func (BuildRequest) Kind() Kind    { return KindBuildRequest }
func (BuildResult) Kind() Kind     { return KindBuildResult }
func (RetrieveRequest) Kind() Kind { return KindRetrieveRequest }
func (RetrieveResult) Kind() Kind  { return KindRetrieveResult }
func (AnswerResponse) Kind() Kind  { return KindAnswerResponse }
func (LogRequest) Kind() Kind      { return KindLogRequest }

func (DocumentUpload) sealed()  {}
func (BuildRequest) sealed()    {}
func (BuildResult) sealed()     {}
func (RetrieveRequest) sealed() {}
func (RetrieveResult) sealed()  {}
func (AnswerResponse) sealed()  {}
func (LogRequest) sealed()      {}
