package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/me/framesched/pkg/model"
	"gopkg.in/yaml.v3"
)

// WriteJSON writes the history as a JSON object keyed by 1-based completion
// index, in completion order.
func (r *Recorder) WriteJSON(w io.Writer) error {
	return WriteRecordsJSON(w, r.records)
}

// WriteRecordsJSON writes records in the indexed history format.
func WriteRecordsJSON(w io.Writer, records []model.HistoryRecord) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("{")
	for i, rec := range records {
		data, err := json.MarshalIndent(rec, "    ", "    ")
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i+1, err)
		}
		if i > 0 {
			bw.WriteString(",")
		}
		fmt.Fprintf(bw, "\n    %q: %s", strconv.Itoa(i+1), data)
	}
	if len(records) > 0 {
		bw.WriteString("\n")
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

// ReadRecordsJSON decodes an indexed history document back into completion
// order. Keys must be the integers 1..n.
func ReadRecordsJSON(rd io.Reader) ([]model.HistoryRecord, error) {
	var byKey map[string]model.HistoryRecord
	if err := json.NewDecoder(rd).Decode(&byKey); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	records := make([]model.HistoryRecord, len(byKey))
	for key, rec := range byKey {
		i, err := strconv.Atoi(key)
		if err != nil || i < 1 || i > len(records) {
			return nil, fmt.Errorf("decode history: unexpected key %q", key)
		}
		records[i-1] = rec
	}
	return records, nil
}

// WriteYAML writes the history as a YAML mapping keyed by 1-based index.
func (r *Recorder) WriteYAML(w io.Writer) error {
	byIndex := make(map[int]model.HistoryRecord, len(r.records))
	for i, rec := range r.records {
		byIndex[i+1] = rec
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(byIndex); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return enc.Close()
}

// WriteBoxesJSON writes the scheduled boxes as a JSON object mapping image
// name to [x0, y0, x1, y1, depth] entries.
func (r *Recorder) WriteBoxesJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(r.scheduled); err != nil {
		return fmt.Errorf("encode scheduled boxes: %w", err)
	}
	return nil
}

// PrintTable writes a fixed-width history report followed by the miss rate.
func (r *Recorder) PrintTable(w io.Writer) error {
	return PrintRecords(w, r.records, r.MissRate())
}

// PrintRecords writes records as a fixed-width table.
func PrintRecords(w io.Writer, records []model.HistoryRecord, rate model.MissRate) error {
	bw := bufio.NewWriter(w)
	const rowFmt = "%-7s%-24s%26s%9s%10s%14s%11s%15s%10s%8s\n"
	fmt.Fprintf(bw, rowFmt, "COUNT", "IMAGE", "COORD", "DEPTH", "PRIORITY", "ENQUEUE", "EXEC", "RESPONSE", "DEADLINE", "MISSED")
	for i, rec := range records {
		fmt.Fprintf(bw, "%-7d%-24s%26s%9.3f%10d%14d%11d%15d%10d%8t\n",
			i+1, model.ImageName(rec.ImagePath), rec.Coord.String(), rec.Depth, rec.Priority,
			rec.EnqueueTime, rec.ExecTime, rec.ResponseTime, rec.Deadline, rec.Missed)
	}
	fmt.Fprintf(bw, "\ndeadline miss rate: %s\n", rate)
	return bw.Flush()
}
