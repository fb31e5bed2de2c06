// daltonize: offline color vision correction for image files
// For each input it writes the simulated view, the corrected image and the
// simulated view of the corrected image, then prints quality metrics.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-daltonize/internal/log"
	"github.com/teslashibe/go-daltonize/pkg/codec"
	"github.com/teslashibe/go-daltonize/pkg/daltonize"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
	"github.com/teslashibe/go-daltonize/pkg/frame"
)

var (
	outDir     = flag.String("out", "output", "Output directory")
	defFlag    = flag.String("deficiency", "all", "protanopia, deuteranopia, tritanopia or all")
	strength   = flag.Float64("strength", 1.0, "Correction strength in [0,1]")
	formatFlag = flag.String("format", "png", "Output format (png or jpeg)")
	workers    = flag.Int("workers", runtime.NumCPU(), "Images processed in parallel")
	verbose    = flag.Bool("v", false, "Verbose logging")
)

// supported lists the extensions picked up from directories.
var supported = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

type result struct {
	input   string
	def     deficiency.Type
	quality frame.Quality
	elapsed time.Duration
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: daltonize [flags] <image-or-directory>...\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log.Init(level)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	defs, err := parseDeficiencies(*defFlag)
	if err != nil {
		return err
	}
	st, err := daltonize.NewStrength(*strength)
	if err != nil {
		return err
	}
	format, err := codec.ParseFormat(*formatFlag)
	if err != nil {
		return err
	}
	if !format.Encodable() {
		return fmt.Errorf("cannot write %s files", format)
	}

	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no images found")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	b := &batch{
		codec:    codec.New(),
		proc:     frame.NewProcessor(),
		strength: st,
		format:   format,
		outDir:   *outDir,
	}

	var (
		mu      sync.Mutex
		results []result
	)
	g := new(errgroup.Group)
	g.SetLimit(max(1, *workers))
	for _, in := range inputs {
		in := in
		g.Go(func() error {
			rs, err := b.processFile(in, defs)
			if err != nil {
				log.Error("failed", "file", in, "error", err)
				return fmt.Errorf("%s: %w", in, err)
			}
			mu.Lock()
			results = append(results, rs...)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	printResults(results)
	return err
}

func parseDeficiencies(s string) ([]deficiency.Type, error) {
	if s == "" || s == "all" {
		return deficiency.All(), nil
	}
	var out []deficiency.Type
	for _, part := range strings.Split(s, ",") {
		d, err := deficiency.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// collectInputs expands directories into their supported image files.
func collectInputs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && supported[strings.ToLower(filepath.Ext(e.Name()))] {
				out = append(out, filepath.Join(arg, e.Name()))
			}
		}
	}
	return out, nil
}

type batch struct {
	codec    *codec.Codec
	proc     *frame.Processor
	strength daltonize.Strength
	format   codec.Format
	outDir   string
}

// processFile writes the _sim, _dal and _rec outputs for each deficiency.
func (b *batch) processFile(path string, defs []deficiency.Type) ([]result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	orig, _, err := b.codec.Decode(data)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var results []result
	for _, d := range defs {
		start := time.Now()

		sim, err := b.proc.Simulate(orig, d)
		if err != nil {
			return nil, err
		}
		dal, err := b.proc.Process(orig, d, b.strength)
		if err != nil {
			return nil, err
		}
		rec, err := b.proc.Simulate(dal, d)
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(start)

		for suffix, f := range map[string]*frame.Frame{"sim": sim, "dal": dal, "rec": rec} {
			if err := b.write(fmt.Sprintf("%s_%s_%s", base, d, suffix), f); err != nil {
				return nil, err
			}
		}

		q, err := frame.Compare(orig, rec)
		if err != nil {
			return nil, err
		}
		log.Debug("processed", "file", path, "deficiency", d, "elapsed", elapsed)
		results = append(results, result{input: path, def: d, quality: q, elapsed: elapsed})
	}
	return results, nil
}

func (b *batch) write(name string, f *frame.Frame) error {
	data, format, err := b.codec.Encode(f, b.format)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.outDir, name+"."+format.Extension()), data, 0o644)
}

func printResults(results []result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].input != results[j].input {
			return results[i].input < results[j].input
		}
		return results[i].def < results[j].def
	})

	fmt.Printf("%-32s %-13s %10s %8s %7s %9s\n", "IMAGE", "DEFICIENCY", "MSE", "PSNR", "SSIM", "TIME")
	for _, r := range results {
		psnr := fmt.Sprintf("%.2f", r.quality.PSNR)
		if math.IsInf(r.quality.PSNR, 1) {
			psnr = "inf"
		}
		fmt.Printf("%-32s %-13s %10.2f %8s %7.4f %9s\n",
			filepath.Base(r.input), r.def, r.quality.MSE, psnr, r.quality.SSIM, r.elapsed.Round(time.Millisecond))
	}
}
