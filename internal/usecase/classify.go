package usecase

import "strings"

// ProcessingPath is the latency path chosen for an inbound request.
type ProcessingPath string

const (
	PathSync  ProcessingPath = "sync"
	PathAsync ProcessingPath = "async"
)

// Keyword sets for the sync/async heuristic. Schema and metadata questions
// are answered from the fast catalog API and simple chat needs no job at
// all, so both stay synchronous; only genuine data-processing requests pay
// the async path. Ties go to sync: misclassification costs latency, not
// correctness.
var dataProcessingKeywords = []string{
	"record count", "count(*)", "count records", "how many records", "total records",
	"count of", "number of records", "row count", "total rows",
	"select * from", "select count", "run query", "execute query", "analyze data",
	"query the data", "data analysis", "aggregate", "sum", "average", "min", "max",
}

var schemaKeywords = []string{
	"schema", "describe table", "show tables", "table structure", "columns",
	"what tables", "list tables", "table info", "database", "catalog", "metadata",
}

var simpleChatKeywords = []string{
	"hello", "hi", "help", "what can you do", "how are you", "test",
}

// statusKeywords mark follow-up "is it done" style queries that should
// consult the result cache before anything else.
var statusKeywords = []string{
	"status", "done", "complete", "finished", "result", "update",
}

// Classify picks the processing path for a request. This is a heuristic,
// not a guarantee; a wrong pick degrades latency only.
func Classify(text string) ProcessingPath {
	lower := strings.ToLower(text)

	if containsAny(lower, schemaKeywords) || containsAny(lower, simpleChatKeywords) {
		return PathSync
	}
	if containsAny(lower, dataProcessingKeywords) {
		return PathAsync
	}
	return PathSync
}

// IsStatusQuery reports whether the text looks like a completion check.
func IsStatusQuery(text string) bool {
	return containsAny(strings.ToLower(text), statusKeywords)
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
