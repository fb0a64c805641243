package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/intelligencedev/queryfrontd/internal/apperr"
	"github.com/intelligencedev/queryfrontd/internal/dispatcher"
	"github.com/intelligencedev/queryfrontd/internal/metrics"
)

type queryRequestBody struct {
	Query  string         `json:"query"`
	UserID string         `json:"user_id"`
	Ticker string         `json:"ticker,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body queryRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, apperr.New(apperr.CodeInvalidRequest, "malformed JSON body"))
		return
	}

	resp, aerr := s.dispatcher.Handle(r.Context(), dispatcher.Request{
		Query:  body.Query,
		UserID: body.UserID,
		Ticker: body.Ticker,
		Params: body.Params,
	})
	if aerr != nil {
		if s.aggregator != nil && aerr.PartialMetrics != nil {
			if partial, ok := aerr.PartialMetrics.(*metrics.EnhancedResponse); ok {
				s.aggregator.Record(*partial)
			}
		}
		respondError(w, apperr.HTTPStatus(aerr.Code), aerr)
		return
	}

	if s.aggregator != nil {
		s.aggregator.Record(resp)
	}
	respondJSON(w, http.StatusOK, resp)
}

// legacyQueryResponse is the trimmed object spec.md §6 names for backward
// compatibility with callers of the pre-metrics /query endpoint.
type legacyQueryResponse struct {
	Query            string         `json:"query"`
	Response         string         `json:"response"`
	WorkflowName     string         `json:"workflow_name,omitempty"`
	AgentsUsed       []string       `json:"agents_used"`
	CacheHit         bool           `json:"cache_hit"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	Metadata         map[string]any `json:"metadata"`
}

func (s *Server) handleLegacyQuery(w http.ResponseWriter, r *http.Request) {
	var body queryRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, apperr.New(apperr.CodeInvalidRequest, "malformed JSON body"))
		return
	}

	resp, aerr := s.dispatcher.Handle(r.Context(), dispatcher.Request{
		Query:  body.Query,
		UserID: body.UserID,
		Ticker: body.Ticker,
		Params: body.Params,
	})
	if aerr != nil {
		if s.aggregator != nil && aerr.PartialMetrics != nil {
			if partial, ok := aerr.PartialMetrics.(*metrics.EnhancedResponse); ok {
				s.aggregator.Record(*partial)
			}
		}
		respondError(w, apperr.HTTPStatus(aerr.Code), aerr)
		return
	}

	if s.aggregator != nil {
		s.aggregator.Record(resp)
	}
	respondJSON(w, http.StatusOK, legacyResponseFrom(resp))
}

func legacyResponseFrom(resp metrics.EnhancedResponse) legacyQueryResponse {
	return legacyQueryResponse{
		Query:            resp.Query,
		Response:         resp.Response,
		WorkflowName:     resp.Workflow.Name,
		AgentsUsed:       resp.Workflow.AgentsInvoked,
		CacheHit:         resp.OverallCacheHit,
		ProcessingTimeMS: resp.Performance.TotalTimeMS,
		Metadata: map[string]any{
			"query_id": resp.QueryID,
			"cost_usd": resp.Cost.TotalCostUSD,
		},
	}
}

func (s *Server) handleMetricsPricing(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.aggregator.PricingSnapshot())
}

func (s *Server) handleMetricsCache(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.aggregator.CacheSnapshot())
}

func (s *Server) handleMetricsPerformance(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.aggregator.PerformanceSnapshot())
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.aggregator.Summary())
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err *apperr.Error) {
	respondJSON(w, status, map[string]any{
		"code":     string(err.Code),
		"message":  err.Message,
		"query_id": err.QueryID,
	})
}
