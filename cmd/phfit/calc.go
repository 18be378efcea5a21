package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nmrkit/phfit/internal/config"
	"github.com/nmrkit/phfit/internal/engine"
	"github.com/nmrkit/phfit/internal/equilibrium"
	"github.com/nmrkit/phfit/internal/fitter"
	"github.com/nmrkit/phfit/internal/logging"
	"github.com/nmrkit/phfit/internal/nucleus"
	"github.com/nmrkit/phfit/internal/peaks"
	"github.com/nmrkit/phfit/pkg/bufferdb"
)

type calcFlags struct {
	dbPath      string
	peaksPath   string
	configPath  string
	bufferIDs   []string
	initialPH   float64
	tempK       float64
	ionicM      float64
	refineTemp  bool
	refineIonic bool
	refineRefs  []string
}

func newCalcCommand() *cobra.Command {
	var flags calcFlags

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Fit sample conditions to an observed peak list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalc(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "buffer database YAML file (required)")
	cmd.Flags().StringVar(&flags.peaksPath, "peaks", "", "observed peaks YAML file (required)")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "engine configuration file")
	cmd.Flags().StringSliceVar(&flags.bufferIDs, "buffers", nil, "restrict to these buffer IDs")
	cmd.Flags().Float64Var(&flags.initialPH, "initial-ph", fitter.DefaultInitialPH, "initial pH estimate")
	cmd.Flags().Float64Var(&flags.tempK, "temperature", 298.15, "nominal temperature in K")
	cmd.Flags().Float64Var(&flags.ionicM, "ionic-strength", 0, "nominal ionic strength in M")
	cmd.Flags().BoolVar(&flags.refineTemp, "refine-temperature", false, "refine temperature")
	cmd.Flags().BoolVar(&flags.refineIonic, "refine-ionic-strength", false, "refine ionic strength")
	cmd.Flags().StringSliceVar(&flags.refineRefs, "refine-references", nil,
		"refine reference offsets for these nuclei (e.g. 1H,31P)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("peaks")
	return cmd
}

func runCalc(cmd *cobra.Command, flags calcFlags) error {
	log := logging.NewLogger(verbose)

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}

	db, err := bufferdb.Load(flags.dbPath, log)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(flags.peaksPath)
	if err != nil {
		return fmt.Errorf("read peaks %s: %w", flags.peaksPath, err)
	}
	observations, err := peaks.ParseYAML(data)
	if err != nil {
		return err
	}

	refineRefs := make(map[nucleus.Nucleus]bool, len(flags.refineRefs))
	for _, spelling := range flags.refineRefs {
		n, ok := nucleus.Parse(spelling)
		if !ok {
			return fmt.Errorf("unrecognized nucleus %q in --refine-references", spelling)
		}
		refineRefs[n] = true
	}

	eng, err := engine.New(cfg, log, nil)
	if err != nil {
		return err
	}

	result := eng.Calculate(cmd.Context(), engine.Request{
		DB:           db,
		BufferIDs:    flags.bufferIDs,
		Observations: observations,
		Nominal: equilibrium.Conditions{
			TempK:  flags.tempK,
			IonicM: flags.ionicM,
		},
		Options: fitter.Options{
			RefineTemperature:   flags.refineTemp,
			RefineIonicStrength: flags.refineIonic,
			RefineReferences:    refineRefs,
			InitialPH:           flags.initialPH,
		},
	})

	if result.Validation != nil {
		for _, w := range result.Validation.Warnings {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
		}
		for _, issue := range result.Validation.Issues {
			fmt.Fprintln(cmd.ErrOrStderr(), "issue:", issue)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
