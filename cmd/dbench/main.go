// Command dbench fetches the shards declared in a dataset manifest,
// builds the dataset, prints its statistics, and optionally plots the
// visible score distribution.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/designbench/designbench/datasets"
	"github.com/designbench/designbench/resource"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func main() {
	var (
		manifestPath  = flag.String("manifest", "", "path to the dataset manifest (YAML)")
		dataDir       = flag.String("data-dir", "", "override the local data folder")
		minPercentile = flag.Float64("min-percentile", 0, "lower score percentile to expose")
		maxPercentile = flag.Float64("max-percentile", 100, "upper score percentile to expose")
		discrete      = flag.Bool("discrete", false, "treat designs as integer categories (uses num_classes from the manifest)")
		softInterp    = flag.Float64("soft-interpolation", 0.6, "category-to-logit interpolation sharpness")
		plotPath      = flag.String("plot", "", "write a histogram of visible scores to this PNG")
		verbose       = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *manifestPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *dataDir != "" {
		if err := resource.SetDataDir(*dataDir); err != nil {
			log.Fatal().Err(err).Msg("bad data dir")
		}
	}

	if err := run(*manifestPath, *minPercentile, *maxPercentile, *discrete, *softInterp, *plotPath); err != nil {
		log.Fatal().Err(err).Msg("dbench failed")
	}
}

func run(manifestPath string, minP, maxP float64, discrete bool, softInterp float64, plotPath string) error {
	m, err := datasets.LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	set, err := m.ShardSet()
	if err != nil {
		return err
	}

	if err := fetchWithProgress(m.Name, set); err != nil {
		return err
	}

	var ds *datasets.Dataset
	if discrete {
		dd, err := datasets.DiscreteFromShards(set, m.NumClasses, softInterp)
		if err != nil {
			return err
		}
		// Statistics and plotting operate on the logit representation.
		if err := dd.MapToLogits(); err != nil {
			return err
		}
		ds = dd.Dataset
	} else {
		if ds, err = datasets.FromShards(set); err != nil {
			return err
		}
	}

	if minP != 0 || maxP != 100 {
		if err := ds.Subsample(minP, maxP); err != nil {
			return err
		}
	}

	fmt.Printf("dataset:       %s\n", m.Name)
	fmt.Printf("visible size:  %d\n", ds.Size())
	fmt.Printf("input shape:   %v\n", ds.InputShape())
	fmt.Printf("output shape:  %v\n", ds.OutputShape())
	fmt.Printf("percentiles:   [%g, %g]\n", ds.MinPercentile(), ds.MaxPercentile())

	if plotPath != "" {
		if err := plotScores(ds, m.Name, plotPath); err != nil {
			return err
		}
		log.Info().Str("path", plotPath).Msg("wrote score histogram")
	}
	return nil
}

func fetchWithProgress(name string, set *datasets.ShardSet) error {
	bar := progressbar.NewOptions(set.Len(),
		progressbar.OptionSetDescription(fmt.Sprintf("fetching %s", name)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	failed := 0
	for _, p := range set.Pairs() {
		xOK, xErr := p.X.Fetch(true)
		yOK, yErr := p.Y.Fetch(true)
		if xErr != nil {
			return xErr
		}
		if yErr != nil {
			return yErr
		}
		if !xOK || !yOK {
			failed++
		}
		_ = bar.Add(1)
	}
	fmt.Fprintln(os.Stderr)
	if failed > 0 {
		log.Warn().Int("failed", failed).Msg("some shards could not be fetched; the build will fail if it needs them")
	}
	return nil
}

func plotScores(ds *datasets.Dataset, name, path string) error {
	y := ds.Y()
	rs := y.RowSize()
	vals := make(plotter.Values, y.Len())
	for i := range vals {
		vals[i] = float64(y.F32[i*rs])
	}

	h, err := plotter.NewHist(vals, 32)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s scores (visible window)", name)
	p.X.Label.Text = "y"
	p.Y.Label.Text = "count"
	p.Add(h)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
