package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/pkg/wire"
)

// CSVHeader is the fixed column order of the csv format.
var CSVHeader = []string{"timestamp", "model", "prompt_tokens", "completion_tokens", "total_tokens", "cost", "id"}

// CSV writes one row per record. Metadata is not included.
type CSV struct{}

func (CSV) Name() string        { return "csv" }
func (CSV) Description() string { return "Comma-separated rows, one per record (metadata omitted)" }
func (CSV) Extension() string   { return "csv" }

// Export writes the header followed by one row per record.
func (CSV) Export(w io.Writer, records []usage.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	row := make([]string, len(CSVHeader))
	for _, r := range records {
		row[0] = wire.FormatTimestamp(r.Timestamp)
		row[1] = r.Model
		row[2] = strconv.FormatInt(r.PromptTokens, 10)
		row[3] = strconv.FormatInt(r.CompletionTokens, 10)
		row[4] = strconv.FormatInt(r.TotalTokens(), 10)
		row[5] = strconv.FormatFloat(r.Cost, 'f', -1, 64)
		row[6] = r.ID
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
