package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, scores []float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(scores)
		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{{Message: struct {
			Content string `json:"content"`
		}{Content: string(body)}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestClient_ScoreBatch_FirstBatchSeedsStats(t *testing.T) {
	srv := newTestServer(t, []float64{0.9, 0.5, 0.1})
	c := newTestClient(t, srv)

	hits, err := c.ScoreBatch(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.Index)
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0)
	}

	stats := c.Stats()
	assert.Equal(t, 3, stats.Samples)
}

func TestClient_ScoreBatch_InteriorOutlierDroppedButOthersKeepOriginalIndex(t *testing.T) {
	// Seed tight stats around 0.5 so a lone extreme value in the middle
	// of the next batch reads as a clear outlier.
	seedSrv := newTestServer(t, []float64{0.50, 0.51, 0.49, 0.50, 0.51})
	c := newTestClient(t, seedSrv)
	_, err := c.ScoreBatch(context.Background(), "q", []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	// 1.0 stays on the backend's 0..1 scale, so the batch mean moves by
	// less than driftMeanDelta and the seeded stats are not reset.
	outlierSrv := newTestServer(t, []float64{0.50, 0.51, 1.0, 0.49, 0.50})
	c.baseURL = outlierSrv.URL

	hits, err := c.ScoreBatch(context.Background(), "q", []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	require.Len(t, hits, 4, "the interior outlier at index 2 must be dropped, not just repositioned")
	for _, h := range hits {
		assert.NotEqual(t, 2, h.Index, "dropped outlier's index must not reappear as a surviving hit")
	}
	indices := make([]int, len(hits))
	for i, h := range hits {
		indices[i] = h.Index
	}
	assert.ElementsMatch(t, []int{0, 1, 3, 4}, indices)
}

func TestClient_ScoreBatch_FrozenBatchDoesNotUpdateStats(t *testing.T) {
	srv := newTestServer(t, []float64{0.9, 0.85, 0.95})
	c := newTestClient(t, srv)
	_, err := c.ScoreBatch(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	firstMean := c.Stats().Mean

	frozenSrv := newTestServer(t, []float64{0.501, 0.499, 0.5})
	c.baseURL = frozenSrv.URL

	_, err = c.ScoreBatch(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, firstMean, c.Stats().Mean)
}

func TestClient_ScoreBatch_DriftResetsStats(t *testing.T) {
	srv := newTestServer(t, []float64{0.9, 0.85, 0.95, 0.88, 0.92})
	c := newTestClient(t, srv)
	for i := 0; i < 2; i++ {
		_, err := c.ScoreBatch(context.Background(), "q", []string{"a", "b", "c", "d", "e"})
		require.NoError(t, err)
	}

	driftSrv := newTestServer(t, []float64{0.1, 0.05, 0.15, 0.08, 0.12})
	c.baseURL = driftSrv.URL
	_, err := c.ScoreBatch(context.Background(), "q", []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	assert.InDelta(t, 0.1, c.Stats().Mean, 0.05)
}

func TestClient_ScoreBatch_MismatchedCountIsError(t *testing.T) {
	srv := newTestServer(t, []float64{0.9})
	c := newTestClient(t, srv)

	_, err := c.ScoreBatch(context.Background(), "q", []string{"a", "b"})
	assert.Error(t, err)
}

func TestClient_ScoreBatch_TruncatesToMaxBatchCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scores := make([]float64, maxBatchCandidates)
		for i := range scores {
			scores[i] = 0.5
		}
		body, _ := json.Marshal(scores)
		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{{Message: struct {
			Content string `json:"content"`
		}{Content: string(body)}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	texts := make([]string, maxBatchCandidates+5)
	for i := range texts {
		texts[i] = "text"
	}
	hits, err := c.ScoreBatch(context.Background(), "q", texts)
	require.NoError(t, err)
	assert.Len(t, hits, maxBatchCandidates)
}

func TestClient_ScoreBatchAsync_DeliversOnChannel(t *testing.T) {
	srv := newTestServer(t, []float64{0.7, 0.3})
	c := newTestClient(t, srv)

	result := <-c.ScoreBatchAsync(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, result.Err)
	assert.Len(t, result.Hits, 2)
}

func TestClient_NewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestClient_Seeded_MarksStable(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k", Seeded: true, InitialMean: 0.6, InitialStd: 0.2})
	require.NoError(t, err)
	assert.True(t, c.stable)
	assert.Equal(t, 0.6, c.Stats().Mean)
}
