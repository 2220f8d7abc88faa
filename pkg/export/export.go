package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/crisisworks/lifeline/core/model"
)

// WriteEventsJSON writes the event table to w in JSON format.
func WriteEventsJSON(w io.Writer, records []model.EventRecord) error {
	enc := json.NewEncoder(w)
	return enc.Encode(records)
}

// WriteEventsCSV writes the event table to w in CSV format with the column
// names the downstream simulators expect.
func WriteEventsCSV(w io.Writer, records []model.EventRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time_stamp", "component", "perf_level", "component_state"}); err != nil {
		return err
	}
	for _, r := range records {
		rec := []string{
			strconv.FormatInt(r.Time, 10),
			r.Component,
			strconv.FormatFloat(r.PerfLevel, 'f', -1, 64),
			string(r.State),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryJSON writes the per-component schedule summary in JSON format.
func WriteSummaryJSON(w io.Writer, rows []model.SummaryRow) error {
	enc := json.NewEncoder(w)
	return enc.Encode(rows)
}

// WriteSummaryCSV writes the per-component schedule summary in CSV format.
func WriteSummaryCSV(w io.Writer, rows []model.SummaryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"component", "disrupt_time", "repair_start", "functional_start"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Component,
			strconv.FormatInt(r.DisruptTime, 10),
			strconv.FormatInt(r.RepairStart, 10),
			strconv.FormatInt(r.FunctionalStart, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
