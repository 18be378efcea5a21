package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nmrkit/phfit/internal/equilibrium"
	"github.com/nmrkit/phfit/internal/logging"
	"github.com/nmrkit/phfit/internal/nucleus"
	"github.com/nmrkit/phfit/pkg/bufferdb"
)

type curveFlags struct {
	dbPath      string
	bufferID    string
	resonanceID string
	nuc         string
	phMin       float64
	phMax       float64
	step        float64
	tempK       float64
	ionicM      float64
}

func newCurveCommand() *cobra.Command {
	var flags curveFlags

	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Emit a predicted titration curve as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCurve(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "buffer database YAML file (required)")
	cmd.Flags().StringVar(&flags.bufferID, "buffer", "", "buffer ID (required)")
	cmd.Flags().StringVar(&flags.resonanceID, "resonance", "", "resonance ID (required)")
	cmd.Flags().StringVar(&flags.nuc, "nucleus", "1H", "nucleus of the resonance")
	cmd.Flags().Float64Var(&flags.phMin, "ph-min", 0, "curve start pH")
	cmd.Flags().Float64Var(&flags.phMax, "ph-max", 14, "curve end pH")
	cmd.Flags().Float64Var(&flags.step, "step", 0.05, "curve pH step")
	cmd.Flags().Float64Var(&flags.tempK, "temperature", 298.15, "temperature in K")
	cmd.Flags().Float64Var(&flags.ionicM, "ionic-strength", 0, "ionic strength in M")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("buffer")
	_ = cmd.MarkFlagRequired("resonance")
	return cmd
}

func runCurve(cmd *cobra.Command, flags curveFlags) error {
	log := logging.NewLogger(verbose)

	db, err := bufferdb.Load(flags.dbPath, log)
	if err != nil {
		return err
	}
	buffer, ok := db.Buffer(flags.bufferID)
	if !ok {
		return fmt.Errorf("buffer %q not found", flags.bufferID)
	}
	sample, ok := db.SampleFor(buffer)
	if !ok {
		return fmt.Errorf("buffer %q references unknown sample %q", buffer.ID, buffer.SampleID)
	}
	nuc, ok := nucleus.Parse(flags.nuc)
	if !ok {
		return fmt.Errorf("unrecognized nucleus %q", flags.nuc)
	}

	var resonance bufferdb.Resonance
	found := false
	for _, r := range buffer.ChemicalShifts[string(nuc)] {
		if r.ID == flags.resonanceID {
			resonance = r
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("resonance %q not found on %s of buffer %q", flags.resonanceID, nuc, buffer.ID)
	}

	points, err := equilibrium.TitrationCurve(buffer, resonance, sample,
		flags.phMin, flags.phMax, flags.step, flags.tempK, flags.ionicM)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "pH,shift_ppm")
	for _, p := range points {
		fmt.Fprintf(out, "%.3f,%.5f\n", p.PH, p.Shift)
	}
	return nil
}
