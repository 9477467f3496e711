package usage_test

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/artpar/costledger/domain/usage"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func scenarioRecords() []usage.Record {
	return []usage.Record{
		{Timestamp: baseTime, Model: "m1", PromptTokens: 10, CompletionTokens: 5, Cost: 0.001},
		{Timestamp: baseTime.Add(time.Minute), Model: "m2", PromptTokens: 20, CompletionTokens: 10, Cost: 0.004},
	}
}

func TestSummarize(t *testing.T) {
	s := usage.Summarize(scenarioRecords())

	if s.Calls != 2 {
		t.Errorf("Calls = %d, want 2", s.Calls)
	}
	if s.TotalTokens != 45 {
		t.Errorf("TotalTokens = %d, want 45", s.TotalTokens)
	}
	if s.PromptTokens != 30 || s.CompletionTokens != 15 {
		t.Errorf("Prompt/Completion = %d/%d, want 30/15", s.PromptTokens, s.CompletionTokens)
	}
	if !almostEqual(s.Cost, 0.005) {
		t.Errorf("Cost = %f, want 0.005", s.Cost)
	}
	if !almostEqual(s.ByModel["m1"].Cost, 0.001) {
		t.Errorf("ByModel[m1].Cost = %f, want 0.001", s.ByModel["m1"].Cost)
	}
	if !almostEqual(s.ByModel["m2"].Cost, 0.004) {
		t.Errorf("ByModel[m2].Cost = %f, want 0.004", s.ByModel["m2"].Cost)
	}
	if s.ByModel["m2"].TotalTokens != 30 {
		t.Errorf("ByModel[m2].TotalTokens = %d, want 30", s.ByModel["m2"].TotalTokens)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := usage.Summarize(nil)

	if s.Calls != 0 || s.TotalTokens != 0 || s.PromptTokens != 0 || s.CompletionTokens != 0 || s.Cost != 0 {
		t.Errorf("Summarize(nil) = %+v, want all zero", s)
	}
	if s.ByModel == nil {
		t.Error("ByModel is nil, want empty map")
	}
	if len(s.ByModel) != 0 {
		t.Errorf("len(ByModel) = %d, want 0", len(s.ByModel))
	}
}

func TestMerge_MatchesSummarizeOfConcatenation(t *testing.T) {
	// Binary fractions keep float sums exact regardless of grouping.
	a := []usage.Record{
		{Timestamp: baseTime, Model: "m1", PromptTokens: 10, CompletionTokens: 5, Cost: 0.125},
		{Timestamp: baseTime, Model: "m2", PromptTokens: 20, CompletionTokens: 10, Cost: 0.0625},
	}
	b := []usage.Record{
		{Timestamp: baseTime, Model: "m1", PromptTokens: 7, CompletionTokens: 3, Cost: 0.5},
		{Timestamp: baseTime, Model: "m3", PromptTokens: 1, CompletionTokens: 1, Cost: 0.25},
	}

	whole := usage.Summarize(append(append([]usage.Record{}, a...), b...))
	merged := usage.Merge(usage.Summarize(a), usage.Summarize(b))

	if !reflect.DeepEqual(whole, merged) {
		t.Errorf("Merge() = %+v\nwant %+v", merged, whole)
	}
}

func TestMerge_Empty(t *testing.T) {
	s := usage.Merge()
	if s.Calls != 0 || s.ByModel == nil {
		t.Errorf("Merge() = %+v, want zero summary with empty map", s)
	}
}

func TestShare(t *testing.T) {
	tests := []struct {
		name        string
		part, total float64
		want        float64
	}{
		{"half", 0.5, 1, 0.5},
		{"zero part zero total", 0, 0, 0},
		{"whole", 0.004, 0.004, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := usage.Share(tt.part, tt.total)
			if !almostEqual(got, tt.want) {
				t.Errorf("Share(%v, %v) = %v, want %v", tt.part, tt.total, got, tt.want)
			}
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Errorf("Share(%v, %v) is not finite", tt.part, tt.total)
			}
		})
	}
}

func TestRankModels(t *testing.T) {
	records := []usage.Record{
		{Timestamp: baseTime, Model: "zeta", Cost: 0.2},
		{Timestamp: baseTime, Model: "alpha", Cost: 0.2},
		{Timestamp: baseTime, Model: "big", Cost: 0.6},
		{Timestamp: baseTime, Model: "free", Cost: 0},
	}

	rows := usage.RankModels(usage.Summarize(records))

	var got []string
	for _, r := range rows {
		got = append(got, r.Model)
	}
	want := []string{"big", "alpha", "zeta", "free"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if !almostEqual(rows[0].Share, 0.6) {
		t.Errorf("big share = %v, want 0.6", rows[0].Share)
	}
	if rows[3].Share != 0 {
		t.Errorf("free share = %v, want 0", rows[3].Share)
	}
}

func BenchmarkSummarize(b *testing.B) {
	records := make([]usage.Record, 1000)
	for i := range records {
		records[i] = usage.Record{
			Timestamp:        baseTime,
			Model:            "m1",
			PromptTokens:     100,
			CompletionTokens: 200,
			Cost:             0.0001,
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		usage.Summarize(records)
	}
}
