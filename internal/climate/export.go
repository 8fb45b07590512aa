package climate

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var csvHeader = []string{"date", "temperature", "precipitation", "snow_depth", "wind_speed"}

// WriteCSV writes the export table for a sample and its outlook: a header,
// one row per matched date, then the Average, Percentages and Parameters
// rows. Rows end in LF and the last row has no trailing newline.
func WriteCSV(w io.Writer, sample Sample, o Outlook) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	rows := make([][]string, 0, len(sample.Observations)+4)
	rows = append(rows, csvHeader)
	for _, obs := range sample.Observations {
		rows = append(rows, []string{
			obs.Date,
			formatCell(obs.Temperature),
			formatCell(obs.Precipitation),
			formatCell(obs.SnowDepth),
			formatCell(obs.WindSpeed),
		})
	}
	rows = append(rows,
		[]string{
			"Average",
			formatMean(sample.Temperatures()),
			formatMean(sample.Precipitation()),
			formatMean(sample.SnowDepths()),
			formatMean(sample.WindSpeeds()),
		},
		[]string{
			"Percentages",
			"",
			strconv.Itoa(o.Probability(ConditionRain)),
			strconv.Itoa(o.Probability(ConditionSnow)),
			strconv.Itoa(o.Probability(ConditionWind)),
		},
		[]string{"Parameters", "F", "in", "in", "mph"},
	)

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}

	_, err := w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return err
}

func formatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatMean(values []float64) string {
	st, err := Aggregate(values)
	if err != nil {
		return ""
	}
	return strconv.FormatFloat(st.Mean, 'f', 2, 64)
}

// ExportFilename returns the attachment name used for a CSV export of date
// (YYYY-MM-DD).
func ExportFilename(date string) string {
	return "forecast_summary_" + date + ".csv"
}
