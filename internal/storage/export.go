package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/kftrack/internal/sim"
)

type ExportStep struct {
	K        int         `json:"k"`
	Truth    [4]float64  `json:"truth"`
	Meas     *[2]float64 `json:"meas,omitempty"`
	Estimate [4]float64  `json:"estimate"`
	NIS      float64     `json:"nis"`
	R        float64     `json:"r"`
	NISEMA   float64     `json:"nis_ema"`
}

type ExportData struct {
	Run    RunMetadata  `json:"run"`
	Config sim.Config   `json:"config"`
	Steps  []ExportStep `json:"steps"`
}

// ExportJSON writes a run as one indented JSON document. Missed detections
// have no meas field.
func ExportJSON(w io.Writer, meta RunMetadata, cfg sim.Config, records []sim.Record) error {
	data := ExportData{
		Run:    meta,
		Config: cfg,
		Steps:  make([]ExportStep, len(records)),
	}

	for i, rec := range records {
		st := ExportStep{
			K:        rec.K,
			Truth:    [4]float64{rec.Truth.X, rec.Truth.Y, rec.Truth.VX, rec.Truth.VY},
			Estimate: [4]float64{rec.Estimate.X, rec.Estimate.Y, rec.Estimate.VX, rec.Estimate.VY},
			NIS:      rec.Diag.NIS,
			R:        rec.R,
			NISEMA:   rec.NISEMA,
		}
		if rec.Meas.Valid {
			st.Meas = &[2]float64{rec.Meas.ZX, rec.Meas.ZY}
		}
		data.Steps[i] = st
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
