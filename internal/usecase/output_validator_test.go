package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/usecase"
)

func validatorHits(ids ...int64) []domain.ScoredChunk {
	hits := make([]domain.ScoredChunk, len(ids))
	for i, id := range ids {
		hits[i] = domain.ScoredChunk{Chunk: domain.ProtocolChunk{ID: id}}
	}
	return hits
}

func TestOutputValidator_Validate_JSON(t *testing.T) {
	validator := usecase.NewOutputValidator()

	result, err := validator.Validate(`{
		"answer": "Give midazolam 0.2 mg/kg IN. [4] Repeat once after 5 minutes. [4, 7]",
		"citations": [{"chunk_id":"7"}, {"chunk_id":4}],
		"fallback": false,
		"reason": ""
	}`, validatorHits(4, 7))

	require.NoError(t, err)
	assert.Equal(t, "Give midazolam 0.2 mg/kg IN. Repeat once after 5 minutes.", result.Answer)
	assert.Equal(t, []int64{7, 4}, result.CitedChunkIDs)
	assert.Empty(t, result.UnknownCitations)
	assert.False(t, result.Fallback)
}

func TestOutputValidator_Validate_UnknownCitationsAreDropped(t *testing.T) {
	validator := usecase.NewOutputValidator()

	result, err := validator.Validate(`{"answer":"Give aspirin 324 mg PO. [99]","citations":[{"chunk_id":"abc"}]}`, validatorHits(1))

	require.NoError(t, err)
	assert.Empty(t, result.CitedChunkIDs)
	assert.ElementsMatch(t, []string{"abc", "99"}, result.UnknownCitations)
	assert.Equal(t, "Give aspirin 324 mg PO.", result.Answer)
}

func TestOutputValidator_Validate_PlainTextWithMarkers(t *testing.T) {
	validator := usecase.NewOutputValidator()

	result, err := validator.Validate("Administer epinephrine 1 mg IV [3] every 3-5 minutes.", validatorHits(3))

	require.NoError(t, err)
	assert.Equal(t, "Administer epinephrine 1 mg IV every 3-5 minutes.", result.Answer)
	assert.Equal(t, []int64{3}, result.CitedChunkIDs)
}

func TestOutputValidator_Validate_CodeFence(t *testing.T) {
	validator := usecase.NewOutputValidator()

	result, err := validator.Validate("```json\n{\"answer\":\"Check glucose. [2]\",\"citations\":[]}\n```", validatorHits(2))

	require.NoError(t, err)
	assert.Equal(t, "Check glucose.", result.Answer)
	assert.Equal(t, []int64{2}, result.CitedChunkIDs)
}

func TestOutputValidator_Validate_EscapeSequences(t *testing.T) {
	validator := usecase.NewOutputValidator()

	tests := []struct {
		name           string
		input          string
		expectedAnswer string
	}{
		{
			name:           "newline escape sequence",
			input:          `{"answer": "Line 1\nLine 2\nLine 3", "citations": []}`,
			expectedAnswer: "Line 1\nLine 2\nLine 3",
		},
		{
			name:           "escaped quote",
			input:          `{"answer": "Say \"clear\" before shocking", "citations": []}`,
			expectedAnswer: "Say \"clear\" before shocking",
		},
		{
			name:           "literal backslash-n from the model",
			input:          `{"answer": "Step 1\\nStep 2", "citations": []}`,
			expectedAnswer: "Step 1\nStep 2",
		},
		{
			name:           "truncated json keeps the answer",
			input:          `{"answer": "Line 1\nLine 2", "citations": [`,
			expectedAnswer: "Line 1\nLine 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := validator.Validate(tt.input, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedAnswer, result.Answer)
		})
	}
}

func TestOutputValidator_Validate_Rejections(t *testing.T) {
	validator := usecase.NewOutputValidator()

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: "   "},
		{name: "empty answer without fallback", input: `{"answer": "  \n ", "citations": [], "fallback": false}`},
		{name: "broken json without answer", input: `{"citations": [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := validator.Validate(tt.input, nil)
			assert.Error(t, err)
			assert.Nil(t, result)
		})
	}
}

func TestOutputValidator_Validate_EmptyAnswerWithFallback(t *testing.T) {
	validator := usecase.NewOutputValidator()

	result, err := validator.Validate(`{"answer": "", "citations": [], "fallback": true, "reason": "insufficient context"}`, nil)

	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Equal(t, "insufficient context", result.Reason)
}
