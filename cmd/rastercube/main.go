package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pspoerri/rastercube/internal/config"
	"github.com/pspoerri/rastercube/internal/coord"
	"github.com/pspoerri/rastercube/internal/cube"
	"github.com/pspoerri/rastercube/internal/encode"
	"github.com/pspoerri/rastercube/internal/grid"
	"github.com/pspoerri/rastercube/internal/progress"
	"github.com/pspoerri/rastercube/internal/resample"
	"github.com/pspoerri/rastercube/internal/zarr"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath   string
		varList      string
		targetSize   string
		targetOrigin string
		targetRes    string
		targetCRS    string
		targetWld    string
		tileWidth    int
		tileHeight   int
		jAxisUp      bool
		concurrency  int
		quicklook    string
		qlFormat     string
		qlQuality    int
		verbose      bool
		showVersion  bool
	)

	flag.StringVar(&configPath, "config", "", "YAML job file (flags override its settings)")
	flag.StringVar(&varList, "vars", "", "Comma-separated variable names (default: all spatial variables)")
	flag.StringVar(&targetSize, "target-size", "", "Target grid size as WxH (default: best-fit cover of the source)")
	flag.StringVar(&targetOrigin, "target-origin", "", "Target grid min corner as x,y")
	flag.StringVar(&targetRes, "target-res", "", "Target resolution as res or xres,yres")
	flag.StringVar(&targetCRS, "crs", "", "Target CRS (EPSG code or WKT; must match the source CRS)")
	flag.StringVar(&targetWld, "target-worldfile", "", "World file (.wld/.tfw) defining the target grid; requires -target-size")
	flag.IntVar(&tileWidth, "tile-width", 0, "Target chunk width (0 = untiled)")
	flag.IntVar(&tileHeight, "tile-height", 0, "Target chunk height (0 = untiled)")
	flag.BoolVar(&jAxisUp, "j-up", false, "Store target rows bottom-up")
	flag.IntVar(&concurrency, "concurrency", runtime.NumCPU(), "Number of parallel workers")
	flag.StringVar(&quicklook, "quicklook", "", "Write a preview image of the first variable to this path")
	flag.StringVar(&qlFormat, "quicklook-format", "png", "Preview format: png, jpeg, webp")
	flag.IntVar(&qlQuality, "quicklook-quality", 85, "JPEG/WebP quality 1-100")
	flag.BoolVar(&verbose, "verbose", false, "Verbose progress output")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rastercube [flags] <input.zarr> <output.zarr>\n\n")
		fmt.Fprintf(os.Stderr, "Rectify a dataset with irregular coordinates onto a regular grid.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("rastercube %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("Loading config: %v", err)
		}
	}
	if flag.NArg() >= 1 {
		cfg.Input = flag.Arg(0)
	}
	if flag.NArg() >= 2 {
		cfg.Output = flag.Arg(1)
	}
	if cfg.Input == "" || cfg.Output == "" {
		flag.Usage()
		os.Exit(2)
	}
	if varList != "" {
		cfg.Variables = strings.Split(varList, ",")
	}
	if tileWidth > 0 {
		cfg.TileWidth, cfg.TileHeight = tileWidth, tileHeight
	}
	if cfg.Workers == 0 {
		cfg.Workers = concurrency
	}
	if targetSize != "" && targetWld == "" {
		tc, err := parseTarget(targetSize, targetOrigin, targetRes, targetCRS)
		if err != nil {
			log.Fatalf("Target grid: %v", err)
		}
		cfg.Target = tc
	}
	if quicklook != "" {
		cfg.Quicklook = &config.QuicklookConfig{
			Path:    quicklook,
			Format:  qlFormat,
			Quality: qlQuality,
			MaxSize: 1024,
		}
	}

	start := time.Now()

	r, err := zarr.OpenReader(cfg.Input, 0)
	if err != nil {
		log.Fatalf("Opening %s: %v", cfg.Input, err)
	}
	ds, err := r.ReadDataset()
	r.Close()
	if err != nil {
		log.Fatalf("Reading %s: %v", cfg.Input, err)
	}

	srcGM, err := grid.FromDataset(ds, nil)
	if err != nil {
		log.Fatalf("Deriving source grid: %v", err)
	}
	if verbose {
		log.Printf("Source: %s", srcGM)
	}

	opts := resample.DefaultRectifyOptions()
	opts.SourceGM = srcGM
	opts.VarNames = cfg.Variables
	opts.Workers = cfg.Workers
	if jAxisUp {
		opts.IsJAxisUp = resample.Bool(true)
	}
	if cfg.TileWidth > 0 {
		opts.TileSize = grid.Size{W: cfg.TileWidth, H: cfg.TileHeight}
	}
	if cfg.Target != nil {
		crs := srcGM.CRS()
		if cfg.Target.CRS != "" {
			crs, err = coord.ParseCRS(cfg.Target.CRS)
			if err != nil {
				log.Fatalf("Target CRS: %v", err)
			}
		}
		opts.TargetGM = grid.Regular(
			grid.Size{W: cfg.Target.Width, H: cfg.Target.Height},
			cfg.Target.XMin, cfg.Target.YMin,
			cfg.Target.XRes, cfg.Target.YRes,
			crs, grid.Size{},
		)
		if cfg.Target.JAxisUp || jAxisUp {
			opts.IsJAxisUp = resample.Bool(true)
		}
	}
	if targetWld != "" {
		if targetSize == "" {
			log.Fatalf("-target-worldfile requires -target-size")
		}
		w, h, err := parsePair(targetSize, "x")
		if err != nil {
			log.Fatalf("-target-size: %v", err)
		}
		tgm, err := grid.FromWorldFile(targetWld, grid.Size{W: w, H: h})
		if err != nil {
			log.Fatalf("Target world file: %v", err)
		}
		opts.TargetGM = tgm
	}

	out, dstGM, err := resample.ResampleInSpace(ds, opts)
	if err != nil {
		log.Fatalf("Rectifying: %v", err)
	}
	if out == nil {
		log.Fatalf("Source %s does not overlap the target grid", cfg.Input)
	}
	if verbose {
		log.Printf("Target: %s", dstGM)
	}

	// The progress callback runs on writer goroutines; create the bar once.
	var (
		bar     *progress.Bar
		barOnce sync.Once
	)
	wopts := &zarr.WriterOptions{Workers: cfg.Workers}
	wopts.Progress = func(done, total int64) {
		barOnce.Do(func() {
			bar = progress.New(os.Stderr, "write", "chunks", total)
		})
		bar.Set(done)
	}
	if err := zarr.WriteDataset(cfg.Output, out, wopts); err != nil {
		log.Fatalf("Writing %s: %v", cfg.Output, err)
	}
	if bar != nil {
		bar.Finish()
	}

	if cfg.Quicklook != nil {
		if err := writeQuicklook(out, dstGM, cfg.Quicklook); err != nil {
			log.Fatalf("Quicklook: %v", err)
		}
	}

	log.Printf("Wrote %s (%dx%d, %d variables) in %s",
		cfg.Output, dstGM.Width(), dstGM.Height(), len(out.DataVars), time.Since(start).Truncate(time.Millisecond))
}

// parseTarget assembles a target grid from the -target-* flags. Size and
// resolution are required; the origin defaults to 0,0.
func parseTarget(size, origin, res, crs string) (*config.TargetConfig, error) {
	tc := &config.TargetConfig{CRS: crs}

	var err error
	if tc.Width, tc.Height, err = parsePair(size, "x"); err != nil {
		return nil, fmt.Errorf("-target-size: %w", err)
	}
	if res == "" {
		return nil, fmt.Errorf("-target-res is required with -target-size")
	}
	if strings.Contains(res, ",") {
		if tc.XRes, tc.YRes, err = parseFloatPair(res); err != nil {
			return nil, fmt.Errorf("-target-res: %w", err)
		}
	} else {
		if tc.XRes, err = strconv.ParseFloat(res, 64); err != nil {
			return nil, fmt.Errorf("-target-res: %w", err)
		}
		tc.YRes = tc.XRes
	}
	if origin != "" {
		if tc.XMin, tc.YMin, err = parseFloatPair(origin); err != nil {
			return nil, fmt.Errorf("-target-origin: %w", err)
		}
	}
	return tc, nil
}

func parsePair(s, sep string) (int, int, error) {
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want A%sB, got %q", sep, s)
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseFloatPair(s string) (float64, float64, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want A,B, got %q", s)
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// writeQuicklook renders one variable's first spatial slice to an image.
func writeQuicklook(ds *cube.Dataset, gm *grid.GridMapping, cfg *config.QuicklookConfig) error {
	v := pickQuicklookVar(ds, cfg.Variable)
	if v == nil {
		return fmt.Errorf("no variable to render")
	}
	w, h := gm.Width(), gm.Height()
	values := v.Data.Values()[:w*h]

	img := encode.Quicklook(values, w, h, encode.RenderOptions{MaxSize: cfg.MaxSize})
	enc, err := encode.NewEncoder(cfg.Format, cfg.Quality)
	if err != nil {
		return err
	}
	data, err := enc.Encode(img)
	if err != nil {
		return err
	}
	return os.WriteFile(cfg.Path, data, 0o644)
}

func pickQuicklookVar(ds *cube.Dataset, name string) *cube.Variable {
	if name != "" {
		return ds.DataVars[name]
	}
	var first *cube.Variable
	for n, v := range ds.DataVars {
		if first == nil || n < first.Name {
			first = v
		}
	}
	return first
}
