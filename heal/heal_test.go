package heal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vectorwave/vectorwave-go/core"
)

func TestBuildPrompt_WithReferenceSuccess(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	failure := &core.ExecutionRecord{
		FunctionName: "pay.charge",
		Status:       core.StatusError,
		Inputs:       map[string]any{"amount": 10},
		ErrorMessage: "card declined",
		Timestamp:    at,
	}
	success := core.ExecutionRecord{
		FunctionName: "pay.charge",
		Status:       core.StatusSuccess,
		Inputs:       map[string]any{"amount": 5},
		ReturnValue:  `{"charge_id":"c1"}`,
		Timestamp:    at.Add(-time.Hour),
	}

	prompt := buildPrompt("pay.charge", failure, []core.ExecutionRecord{success})

	assert.Contains(t, prompt, "Function: pay.charge")
	assert.Contains(t, prompt, "card declined")
	assert.Contains(t, prompt, `{"amount":10}`)
	assert.Contains(t, prompt, "REFERENCE SUCCESSFUL CALL")
	assert.Contains(t, prompt, `{"charge_id":"c1"}`)
}

func TestBuildPrompt_NoSuccessOnRecord(t *testing.T) {
	failure := &core.ExecutionRecord{
		FunctionName: "pay.charge",
		ErrorMessage: "boom",
		Timestamp:    time.Now().UTC(),
	}

	prompt := buildPrompt("pay.charge", failure, nil)
	assert.Contains(t, prompt, "No successful call is on record")
}
