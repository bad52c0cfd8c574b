package core

import (
	"time"

	"github.com/google/uuid"
)

// Status describes how an instrumented call ended.
type Status string

const (
	// StatusSuccess means the wrapped function returned normally.
	StatusSuccess Status = "SUCCESS"

	// StatusError means the wrapped function returned an error.
	StatusError Status = "ERROR"

	// StatusCacheHit means the call was answered from the semantic cache
	// without executing the wrapped function.
	StatusCacheHit Status = "CACHE_HIT"
)

// ExecutionRecord is one row per logged call.
//
// Records are created by the instrumentation wrapper (or synthesized by the
// cache engine on a hit) and handed to the batch logger. The storage gateway
// assigns ID at append time.
type ExecutionRecord struct {
	ID                  string
	FunctionName        string
	FunctionFingerprint string

	// TraceID is constant across all records sharing a root invocation.
	// SpanID is unique per record. ParentSpanID is the caller's span, empty
	// for a root record.
	TraceID      string
	SpanID       string
	ParentSpanID string

	// Timestamp is capture time in UTC.
	Timestamp time.Time

	// DurationMS is the wall-clock cost of the call. Always 0 for cache hits.
	DurationMS float64

	Status Status

	// Inputs maps parameter name to value, restricted to the parameters the
	// target function actually declares. Sensitive keys are removed before
	// the record is built.
	Inputs map[string]any

	// ReturnValue is the produced value in its canonical text form. A plain
	// string is stored verbatim, everything else as canonical JSON.
	ReturnValue string

	// ErrorMessage holds the error text when Status is StatusError.
	ErrorMessage string

	// Embedding is the vector for the call's semantic content: the input
	// text, plus the error text for failed calls.
	Embedding []float32

	// Tags carries operator-supplied key/value pairs: the global tags of the
	// run plus allow-listed call arguments promoted per record.
	Tags map[string]string
}

// fingerprintNamespace seeds deterministic function fingerprints, so the
// same qualified name always maps to the same fingerprint across processes.
var fingerprintNamespace = uuid.MustParse("2f4ef6f1-8db5-4b32-9f63-5a4f2f8a1c77")

// Fingerprint derives the stable identifier for a qualified function name.
func Fingerprint(functionName string) string {
	return uuid.NewSHA1(fingerprintNamespace, []byte(functionName)).String()
}

// NewRecordID allocates a storage identifier for a record.
func NewRecordID() string {
	return uuid.New().String()
}
