package export_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/artpar/costledger/adapters/jsonl"
	"github.com/artpar/costledger/domain/export"
	"github.com/artpar/costledger/domain/usage"
)

var baseTime = time.Date(2025, 1, 2, 3, 4, 5, 123456000, time.UTC)

func sampleRecords(t *testing.T) []usage.Record {
	t.Helper()

	md, err := usage.NewMetadata(map[string]any{"session": "s-1", "tags": []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	r1, err := usage.NewRecord(baseTime, "m1", 10, 10, 0.001, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := usage.NewRecord(baseTime.Add(time.Second), "m2", 20, 5, 0.004, "gen-2", md)
	if err != nil {
		t.Fatal(err)
	}
	return []usage.Record{r1, r2}
}

func TestRegistry_Builtins(t *testing.T) {
	got := export.List()
	want := []string{"csv", "json", "jsonl", "yaml"}

	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	r := export.NewRegistry()
	if err := r.Register(export.CSV{}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(export.CSV{}); err == nil {
		t.Error("expected error on duplicate registration")
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := export.Lookup("xml")
	if err == nil || !strings.Contains(err.Error(), "xml") {
		t.Errorf("Lookup(xml) error = %v", err)
	}
}

func TestCSV_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (export.CSV{}).Export(&buf, sampleRecords(t)); err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := "timestamp,model,prompt_tokens,completion_tokens,total_tokens,cost,id\n" +
		"2025-01-02T03:04:05.123456Z,m1,10,10,20,0.001,\n" +
		"2025-01-02T03:04:06.123456Z,m2,20,5,25,0.004,gen-2\n"
	if buf.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := (export.CSV{}).Export(&buf, nil); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 1 {
		t.Errorf("empty export has %d lines, want header only", lines)
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	records := sampleRecords(t)

	var buf bytes.Buffer
	if err := (export.JSON{}).Export(&buf, records); err != nil {
		t.Fatalf("Export: %v", err)
	}

	got, err := export.ParseJSON(&buf)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if !got[i].Timestamp.Equal(records[i].Timestamp) || got[i].Model != records[i].Model ||
			got[i].Cost != records[i].Cost || got[i].ID != records[i].ID ||
			got[i].TotalTokens() != records[i].TotalTokens() {
			t.Errorf("record %d = %+v, want %+v", i, got[i], records[i])
		}
	}

	var tags []string
	if ok, err := got[1].Metadata.Decode("tags", &tags); !ok || err != nil || len(tags) != 2 {
		t.Errorf("metadata tags = %v (ok=%v err=%v)", tags, ok, err)
	}
}

func TestJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := (export.JSON{}).Export(&buf, nil); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty json = %q, want []", buf.String())
	}
}

func TestParseJSON_RejectsInvalidEntry(t *testing.T) {
	_, err := export.ParseJSON(strings.NewReader(`[{"ts":"2025-01-01T00:00:00Z","model":"","cost":1}]`))
	if err == nil {
		t.Error("expected error for entry without model")
	}
}

func TestJSONL_IsLedgerFormat(t *testing.T) {
	records := sampleRecords(t)
	path := filepath.Join(t.TempDir(), "backup.jsonl")

	var buf bytes.Buffer
	if err := (export.JSONL{}).Export(&buf, records); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	// The backup opens as a ledger without conversion.
	loaded, skipped, err := jsonl.New(path, zerolog.Nop()).Scan(context.Background(), usage.Filter{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if skipped != 0 || len(loaded) != len(records) {
		t.Fatalf("loaded %d records (%d skipped), want %d", len(loaded), skipped, len(records))
	}
	if loaded[1].ID != "gen-2" || !loaded[1].Timestamp.Equal(records[1].Timestamp) {
		t.Errorf("loaded[1] = %+v", loaded[1])
	}
}

func TestYAML_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (export.YAML{}).Export(&buf, sampleRecords(t)); err != nil {
		t.Fatalf("Export: %v", err)
	}

	var doc struct {
		Count   int `yaml:"count"`
		Records []struct {
			TS       string         `yaml:"ts"`
			Model    string         `yaml:"model"`
			Total    int64          `yaml:"total_tokens"`
			ID       string         `yaml:"id"`
			Metadata map[string]any `yaml:"metadata"`
		} `yaml:"records"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("yaml.Unmarshal: %v\n%s", err, buf.String())
	}

	if doc.Count != 2 || len(doc.Records) != 2 {
		t.Fatalf("count = %d, records = %d", doc.Count, len(doc.Records))
	}
	if doc.Records[1].Model != "m2" || doc.Records[1].Total != 25 || doc.Records[1].ID != "gen-2" {
		t.Errorf("records[1] = %+v", doc.Records[1])
	}
	if doc.Records[1].Metadata["session"] != "s-1" {
		t.Errorf("metadata = %v", doc.Records[1].Metadata)
	}
	if doc.Records[0].Metadata != nil {
		t.Errorf("records[0] metadata = %v, want omitted", doc.Records[0].Metadata)
	}
}
