package compare_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/usecase/compare"
	"protocol-rag/internal/usecase/extract"
	"protocol-rag/internal/usecase/normalize"
	"protocol-rag/internal/usecase/retrieval"
)

type fakeRetriever struct {
	hits     []domain.ScoredChunk
	err      error
	queries  []domain.NormalizedQuery
	filters  domain.SearchFilters
	limit    int
	optCount int
}

func (f *fakeRetriever) RetrieveMulti(_ context.Context, queries []domain.NormalizedQuery, filters domain.SearchFilters, limit int, opts ...retrieval.Option) (*domain.RetrievalResult, error) {
	f.queries = queries
	f.filters = filters
	f.limit = limit
	f.optCount = len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RetrievalResult{Hits: f.hits}, nil
}

func chunk(id, agency int64, title, content string, sim float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.ProtocolChunk{
			ID:            id,
			AgencyID:      agency,
			ProtocolTitle: title,
			Content:       content,
			StateCode:     "CA",
		},
		Similarity: sim,
	}
}

func newEngine(r compare.Retriever) *compare.Engine {
	return compare.NewEngine(
		normalize.NewNormalizer(),
		r,
		extract.NewExtractor(),
		compare.DefaultConfig(),
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
	)
}

func TestCompare_FlagsTextualDoseVariation(t *testing.T) {
	r := &fakeRetriever{hits: []domain.ScoredChunk{
		chunk(1, 10, "Cardiac Arrest - Adult", "Epinephrine 1mg IV every 3-5 minutes.", 0.9),
		chunk(2, 20, "Adult Cardiac Arrest", "Give epinephrine 1mg IV.", 0.85),
		chunk(3, 30, "Pulseless Arrest", "Epinephrine 1 mg IV push q 3-5 min.", 0.8),
	}}

	result, err := newEngine(r).Compare(context.Background(), "cardiac arrest epi", domain.SearchFilters{}, 5)
	require.NoError(t, err)

	require.Len(t, result.Protocols, 3)
	assert.Equal(t, []string{"epinephrine"}, result.Summary.CommonMedications)
	assert.Empty(t, result.Summary.VaryingMedications)

	require.Len(t, result.Summary.DoseVariations, 1)
	variation := result.Summary.DoseVariations[0]
	assert.Equal(t, "epinephrine", variation.Medication)
	assert.Equal(t, []domain.ProtocolDose{
		{ProtocolTitle: "Cardiac Arrest - Adult", AgencyID: 10, Dose: "1mg"},
		{ProtocolTitle: "Adult Cardiac Arrest", AgencyID: 20, Dose: "1mg"},
		{ProtocolTitle: "Pulseless Arrest", AgencyID: 30, Dose: "1 mg"},
	}, variation.Doses)
	assert.Contains(t, result.Summary.KeyDifferences,
		"epinephrine dose differs: Cardiac Arrest - Adult: 1mg; Adult Cardiac Arrest: 1mg; Pulseless Arrest: 1 mg")
}

func TestCompare_IdenticalDosesAreNotAVariation(t *testing.T) {
	r := &fakeRetriever{hits: []domain.ScoredChunk{
		chunk(1, 10, "Anaphylaxis", "Epinephrine 0.3 mg IM.", 0.9),
		chunk(2, 20, "Allergic Reaction", "Epinephrine 0.3 mg IM, may repeat.", 0.8),
	}}

	result, err := newEngine(r).Compare(context.Background(), "anaphylaxis", domain.SearchFilters{}, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Summary.DoseVariations)
}

func TestCompare_PediatricSeizureScenario(t *testing.T) {
	r := &fakeRetriever{hits: []domain.ScoredChunk{
		chunk(1, 10, "Pediatric Seizure", "Midazolam 0.2 mg/kg IN. Diazepam 0.5 mg/kg PR if no IV access.", 0.88),
		chunk(2, 10, "Pediatric Seizure", "Check blood glucose before giving midazolam.", 0.70),
		chunk(3, 20, "Seizures - Pediatric", "Midazolam 0.1 mg/kg IV, max 5 mg. Do not give diazepam IM.", 0.84),
		chunk(4, 30, "Seizure / Status Epilepticus (Peds)", "Versed 0.2 mg/kg IN.", 0.6),
	}}

	result, err := newEngine(r).Compare(context.Background(), "peds seizure dose", domain.SearchFilters{}, 0)
	require.NoError(t, err)

	assert.Equal(t, "pediatric seizure dose", result.NormalizedQuery.Text)
	require.Len(t, r.queries, 2)
	assert.Equal(t, "pediatric seizure dose", r.queries[0].Text)
	assert.Equal(t, "seizure", r.queries[1].Text)
	assert.Equal(t, 15, r.limit)

	require.GreaterOrEqual(t, len(result.Protocols), 2)
	require.Len(t, result.Protocols, 3)
	assert.Equal(t, int64(1), result.Protocols[0].Chunk.ID)
	assert.Equal(t, int64(3), result.Protocols[1].Chunk.ID)
	assert.Equal(t, int64(4), result.Protocols[2].Chunk.ID)

	assert.Equal(t, []string{"midazolam"}, result.Summary.CommonMedications)
	assert.Equal(t, []string{"diazepam"}, result.Summary.VaryingMedications)
	for _, name := range result.Summary.CommonMedications {
		for _, p := range result.Protocols {
			found := false
			for _, m := range p.Medications {
				found = found || m.Name == name
			}
			assert.True(t, found, "%s missing from protocol %d", name, p.Chunk.ID)
		}
	}

	assert.Equal(t, []string{"Do not give diazepam IM."}, result.Protocols[1].Contraindications)
	assert.Contains(t, result.Summary.KeyDifferences,
		"diazepam is mentioned by 2 of 3 protocols (absent from Seizure / Status Epilepticus (Peds))")
}

func TestCompare_NoCommonMedicationWhenOneProtocolLacksIt(t *testing.T) {
	r := &fakeRetriever{hits: []domain.ScoredChunk{
		chunk(1, 10, "Seizure A", "Midazolam 5 mg IM.", 0.9),
		chunk(2, 20, "Seizure B", "Lorazepam 2 mg IV.", 0.8),
	}}

	result, err := newEngine(r).Compare(context.Background(), "seizure", domain.SearchFilters{}, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Summary.CommonMedications)
	assert.Equal(t, []string{"midazolam", "lorazepam"}, result.Summary.VaryingMedications)
}

func TestCompare_TitleTieKeepsFirst(t *testing.T) {
	r := &fakeRetriever{hits: []domain.ScoredChunk{
		chunk(5, 10, "Stroke", "first", 0.7),
		chunk(6, 20, "  STROKE ", "second", 0.7),
	}}

	result, err := newEngine(r).Compare(context.Background(), "stroke", domain.SearchFilters{}, 5)
	require.NoError(t, err)
	require.Len(t, result.Protocols, 1)
	assert.Equal(t, int64(5), result.Protocols[0].Chunk.ID)
}

func TestCompare_ClampsMaxResults(t *testing.T) {
	tests := []struct {
		name      string
		max       int
		wantLimit int
	}{
		{name: "default", max: 0, wantLimit: 15},
		{name: "above cap", max: 50, wantLimit: 30},
		{name: "negative", max: -3, wantLimit: 3},
		{name: "in range", max: 2, wantLimit: 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRetriever{}
			_, err := newEngine(r).Compare(context.Background(), "stroke", domain.SearchFilters{StateCode: "CA"}, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, r.limit)
			assert.Equal(t, "CA", r.filters.StateCode)
		})
	}
}

func TestCompare_TruncatesToMaxResults(t *testing.T) {
	r := &fakeRetriever{hits: []domain.ScoredChunk{
		chunk(1, 1, "A", "x", 0.9),
		chunk(2, 2, "B", "x", 0.8),
		chunk(3, 3, "C", "x", 0.7),
	}}

	result, err := newEngine(r).Compare(context.Background(), "stroke", domain.SearchFilters{}, 2)
	require.NoError(t, err)
	assert.Len(t, result.Protocols, 2)
}

func TestCompare_EmptyRetrieval(t *testing.T) {
	result, err := newEngine(&fakeRetriever{hits: []domain.ScoredChunk{}}).Compare(context.Background(), "zzz", domain.SearchFilters{}, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Protocols)
	assert.NotNil(t, result.Summary.CommonMedications)
	assert.NotNil(t, result.Summary.DoseVariations)
}

func TestCompare_RetrievalErrorPropagates(t *testing.T) {
	r := &fakeRetriever{err: domain.ErrRetrievalUnavailable}

	_, err := newEngine(r).Compare(context.Background(), "stroke", domain.SearchFilters{}, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRetrievalUnavailable))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, compare.DefaultConfig().Validate())

	cfg := compare.DefaultConfig()
	cfg.BreadthFactor = 0
	assert.Error(t, cfg.Validate())
}
