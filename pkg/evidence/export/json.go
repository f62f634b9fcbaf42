package export

import (
	"context"
	"encoding/json"
	"io"

	"dmkit-hq/dmkit/pkg/evidence"
)

// JSONExporter writes records as a JSON array, or one object per line when
// Lines is set.
type JSONExporter struct {
	Pretty bool
	Lines  bool
}

// NewJSONExporter creates a JSON array exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes records to w. An empty slice produces "[]" in array mode
// and nothing in lines mode.
func (e *JSONExporter) Export(ctx context.Context, records []*evidence.TurnRecord, w io.Writer) error {
	if e.Lines {
		enc := json.NewEncoder(w)
		for i, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := enc.Encode(r); err != nil {
				return &evidence.ExportError{Format: "jsonl", RecordCount: i, Cause: err}
			}
		}
		return nil
	}

	if records == nil {
		records = []*evidence.TurnRecord{}
	}
	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return &evidence.ExportError{Format: "json", RecordCount: len(records), Cause: err}
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return &evidence.ExportError{Format: "json", RecordCount: len(records), Cause: err}
	}
	return nil
}
