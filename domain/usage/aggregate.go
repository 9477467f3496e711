package usage

import (
	"math"
	"sort"
)

// ShareEpsilon guards the zero-total case when computing cost shares.
const ShareEpsilon = 1e-12

// ModelSummary is the per-model slice of a Summary (value type).
type ModelSummary struct {
	Calls            int64   `json:"calls" yaml:"calls"`
	PromptTokens     int64   `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens" yaml:"total_tokens"`
	Cost             float64 `json:"cost" yaml:"cost"`
}

// Summary is aggregated usage over a record set (value type).
// It is derived on every query and never persisted.
type Summary struct {
	Calls            int64                   `json:"total_calls" yaml:"total_calls"`
	PromptTokens     int64                   `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int64                   `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      int64                   `json:"total_tokens" yaml:"total_tokens"`
	Cost             float64                 `json:"total_cost" yaml:"total_cost"`
	ByModel          map[string]ModelSummary `json:"by_model" yaml:"by_model"`
}

// ModelShare is one row of a ranked per-model breakdown.
type ModelShare struct {
	Model string `json:"model"`
	ModelSummary
	Share float64 `json:"share"` // fraction of total cost, 0..1
}

// Summarize aggregates records in a single pass.
// Empty input yields zero totals and an empty ByModel map.
// This is a PURE function.
func Summarize(records []Record) Summary {
	s := Summary{ByModel: make(map[string]ModelSummary)}

	for _, r := range records {
		s.Calls++
		s.PromptTokens += r.PromptTokens
		s.CompletionTokens += r.CompletionTokens
		s.Cost += r.Cost

		m := s.ByModel[r.Model]
		m.Calls++
		m.PromptTokens += r.PromptTokens
		m.CompletionTokens += r.CompletionTokens
		m.TotalTokens = m.PromptTokens + m.CompletionTokens
		m.Cost += r.Cost
		s.ByModel[r.Model] = m
	}

	s.TotalTokens = s.PromptTokens + s.CompletionTokens
	return s
}

// Merge combines summaries field by field.
// Summarize(append(a, b...)) equals Merge(Summarize(a), Summarize(b)).
// This is a PURE function.
func Merge(summaries ...Summary) Summary {
	result := Summary{ByModel: make(map[string]ModelSummary)}

	for _, s := range summaries {
		result.Calls += s.Calls
		result.PromptTokens += s.PromptTokens
		result.CompletionTokens += s.CompletionTokens
		result.Cost += s.Cost

		for model, ms := range s.ByModel {
			m := result.ByModel[model]
			m.Calls += ms.Calls
			m.PromptTokens += ms.PromptTokens
			m.CompletionTokens += ms.CompletionTokens
			m.TotalTokens = m.PromptTokens + m.CompletionTokens
			m.Cost += ms.Cost
			result.ByModel[model] = m
		}
	}

	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	return result
}

// Share returns part as a fraction of total, guarding a zero total.
// This is a PURE function.
func Share(part, total float64) float64 {
	if part == 0 {
		return 0
	}
	return part / math.Max(total, ShareEpsilon)
}

// RankModels orders the per-model breakdown by descending cost,
// breaking ties by model name ascending.
// This is a PURE function.
func RankModels(s Summary) []ModelShare {
	rows := make([]ModelShare, 0, len(s.ByModel))
	for model, ms := range s.ByModel {
		rows = append(rows, ModelShare{
			Model:        model,
			ModelSummary: ms,
			Share:        Share(ms.Cost, s.Cost),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Cost != rows[j].Cost {
			return rows[i].Cost > rows[j].Cost
		}
		return rows[i].Model < rows[j].Model
	})
	return rows
}
