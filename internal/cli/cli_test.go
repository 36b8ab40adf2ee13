package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rag_http "protocol-rag/internal/adapter/rag_http"
	"protocol-rag/internal/adapter/rag_http/openapi"
	"protocol-rag/internal/domain"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAsk_PrintsVerdictAndSources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/protocols/ask", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req rag_http.AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "epi dose cardiac arrest", req.Query)
		require.NotNil(t, req.State)
		assert.Equal(t, "CA", *req.State)
		require.NotNil(t, req.AgencyID)
		assert.Equal(t, int64(3), *req.AgencyID)

		_ = json.NewEncoder(w).Encode(rag_http.AskResponse{
			RequestID: "req-1",
			Answer:    "Administer epinephrine 1 mg IV every 3-5 minutes.",
			Verdict: domain.GuardrailVerdict{
				CitationsOK: true, DoseOK: true, Confidence: 0.91,
				Disclaimer: domain.DisclaimerNone, Decision: domain.DecisionRelease,
			},
			CitedChunkIDs: []int64{11},
			Citations: []rag_http.Citation{{
				ChunkID: 11, AgencyID: 3, AgencyName: "LA County EMS",
				ProtocolNumber: "C-1", ProtocolTitle: "Cardiac Arrest", Similarity: 0.88,
			}},
		})
	}))
	defer server.Close()

	out, err := runCLI(t, "ask", "epi", "dose", "cardiac", "arrest",
		"--state", "CA", "--agency", "3", "--server", server.URL, "--no-color")

	require.NoError(t, err)
	assert.Contains(t, out, "[RELEASE]")
	assert.Contains(t, out, "confidence=0.91")
	assert.Contains(t, out, "Administer epinephrine 1 mg IV")
	assert.Contains(t, out, "LA County EMS")
	assert.Contains(t, out, "Cardiac Arrest")
}

func TestAsk_BlockShowsMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rag_http.AskResponse{
			RequestID:     "req-2",
			Message:       domain.DisclaimerNotFound.Text(),
			Verdict:       domain.GuardrailVerdict{Decision: domain.DecisionBlock, Disclaimer: domain.DisclaimerNotFound},
			CitedChunkIDs: []int64{},
			Citations:     []rag_http.Citation{},
		})
	}))
	defer server.Close()

	out, err := runCLI(t, "ask", "unknown", "--server", server.URL, "--no-color")

	require.NoError(t, err)
	assert.Contains(t, out, "[BLOCK]")
	assert.Contains(t, out, "Protocol not found")
	assert.NotContains(t, out, "Sources")
}

func TestAsk_JSONOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rag_http.AskResponse{
			RequestID: "req-3",
			Verdict:   domain.GuardrailVerdict{Decision: domain.DecisionDowngrade},
		})
	}))
	defer server.Close()

	out, err := runCLI(t, "ask", "ketamine", "--server", server.URL, "--json")

	require.NoError(t, err)
	var resp rag_http.AskResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "req-3", resp.RequestID)
	assert.Equal(t, domain.DecisionDowngrade, resp.Verdict.Decision)
}

func TestCompare_PrintsTableAndSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/protocols/compare", r.URL.Path)
		var req rag_http.CompareRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.MaxResults)
		assert.Equal(t, 4, *req.MaxResults)
		assert.Nil(t, req.State)

		_ = json.NewEncoder(w).Encode(domain.ComparisonResult{
			Query: "peds seizure",
			Protocols: []domain.ComparedProtocol{
				{
					Chunk:       domain.ProtocolChunk{ID: 1, AgencyID: 1, AgencyName: "Agency A", ProtocolTitle: "Pediatric Seizure"},
					Similarity:  0.8,
					Medications: []domain.ExtractedMedication{{Name: "midazolam", Dose: "0.2 mg/kg", Route: "IN"}},
				},
				{
					Chunk:       domain.ProtocolChunk{ID: 2, AgencyID: 2, ProtocolTitle: "Seizure - Pediatric"},
					Similarity:  0.7,
					Medications: []domain.ExtractedMedication{{Name: "midazolam", Dose: "0.1 mg/kg", Route: "IM"}},
				},
			},
			Summary: domain.ComparisonSummary{
				CommonMedications:  []string{"midazolam"},
				VaryingMedications: []string{"midazolam"},
				KeyDifferences:     []string{"midazolam dose varies: Pediatric Seizure 0.2 mg/kg; Seizure - Pediatric 0.1 mg/kg"},
			},
		})
	}))
	defer server.Close()

	out, err := runCLI(t, "compare", "peds seizure", "--max", "4", "--server", server.URL, "--no-color")

	require.NoError(t, err)
	assert.Contains(t, out, "Agency A")
	assert.Contains(t, out, "agency 2")
	assert.Contains(t, out, "midazolam 0.2 mg/kg IN")
	assert.Contains(t, out, "Common: midazolam")
	assert.Contains(t, out, "dose varies")
}

func TestCompare_NoProtocols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.ComparisonResult{Query: "x"})
	}))
	defer server.Close()

	out, err := runCLI(t, "compare", "x", "--server", server.URL, "--no-color")

	require.NoError(t, err)
	assert.Contains(t, out, "No protocols matched")
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(openapi.ErrorResponse{Error: "retrieval_unavailable", Message: "protocol search is unavailable"})
	}))
	defer server.Close()

	_, err := runCLI(t, "ask", "epi", "--server", server.URL)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "retrieval_unavailable", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "503")
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).Ask(t.Context(), rag_http.AskRequest{Query: "epi"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad gateway", apiErr.Message)
	assert.Empty(t, apiErr.Code)
}

func TestAsk_RequiresQuery(t *testing.T) {
	_, err := runCLI(t, "ask")
	assert.Error(t, err)
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocolctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  url: http://protocols:9010\n  timeout: 5s\noutput:\n  colors: false\n"), 0o600))

	cfg, err := LoadConfig(viper.New(), path)

	require.NoError(t, err)
	assert.Equal(t, "http://protocols:9010", cfg.Server.URL)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout)
	assert.False(t, cfg.Output.Colors)
}

func TestLoadConfig_EnvOverridesDefault(t *testing.T) {
	t.Setenv("PROTOCOLCTL_SERVER_URL", "http://from-env:9010")

	cfg, err := LoadConfig(viper.New(), "")

	require.NoError(t, err)
	assert.Equal(t, "http://from-env:9010", cfg.Server.URL)
	assert.Equal(t, 60*time.Second, cfg.Server.Timeout)
	assert.True(t, cfg.Output.Colors)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := LoadConfig(viper.New(), path)

	assert.Error(t, err)
}

func TestDecisionBadge_Plain(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{}, false)

	assert.Equal(t, "[RELEASE]", p.DecisionBadge(domain.DecisionRelease))
	assert.Equal(t, "[DOWNGRADE]", p.DecisionBadge(domain.DecisionDowngrade))
	assert.Equal(t, "[BLOCK]", p.DecisionBadge(domain.DecisionBlock))
}
