package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/wanderguard/internal/common"
	"github.com/i474232898/wanderguard/internal/config"
	"github.com/i474232898/wanderguard/internal/patient"
	"github.com/i474232898/wanderguard/internal/risk"
)

// scoreDocument is the input of the score command: one observation plus the
// stored patient document it is scored against.
type scoreDocument struct {
	Telemetry struct {
		Speed       float64  `json:"speed"`
		Distance    float64  `json:"distance"`
		TimeOutside float64  `json:"time_outside"`
		Latitude    float64  `json:"latitude"`
		Longitude   float64  `json:"longitude"`
		Battery     *float64 `json:"battery"`
		IsRaining   bool     `json:"isRaining"`
		LightLevel  string   `json:"lightLevel"`
	} `json:"telemetry"`
	State         json.RawMessage `json:"state"`
	PrevRiskLevel string          `json:"prevRiskLevel"`
	Feedback      string          `json:"feedback"`
	Now           *time.Time      `json:"now"`
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	return score(in, cmd.OutOrStdout(), cfg)
}

func score(r io.Reader, w io.Writer, cfg *config.AppConfig) error {
	var doc scoreDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode score document: %w", err)
	}

	t := risk.Telemetry{
		Distance:    common.NonNegative(doc.Telemetry.Distance),
		TimeOutside: common.ToDuration(doc.Telemetry.TimeOutside, cfg.TimeOutsideUnit),
		Speed:       common.NonNegative(doc.Telemetry.Speed),
		Latitude:    doc.Telemetry.Latitude,
		Longitude:   doc.Telemetry.Longitude,
		Battery:     100,
		IsRaining:   doc.Telemetry.IsRaining,
		Light:       risk.LightLevel(strings.ToLower(strings.TrimSpace(doc.Telemetry.LightLevel))),
	}
	if doc.Telemetry.Battery != nil {
		t.Battery = *doc.Telemetry.Battery
	}

	// An absent state scores the observation as a first sighting.
	rec, err := patient.DecodeRecord(doc.State)
	if err != nil {
		rec = &patient.Record{}
	}
	feedback, _ := risk.ParseFeedback(doc.Feedback)
	now := time.Now()
	if doc.Now != nil {
		now = *doc.Now
	}

	engine := risk.NewEngine(cfg.Risk, cfg.Location)
	out := engine.Evaluate(risk.Input{
		Telemetry:  t,
		Learning:   rec.LearningFor(t),
		History:    rec.RiskHistory,
		Heatmap:    rec.ZoneHeatmap,
		SafeRadius: rec.SafeRadiusOr(cfg.Risk.DefaultSafeRadius),
		PrevLevel:  risk.ParseLevel(doc.PrevRiskLevel),
		Feedback:   feedback,
		Now:        now,
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
