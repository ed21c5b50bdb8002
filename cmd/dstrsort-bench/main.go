// Command dstrsort-bench drives the distributed string-sorting engine
// against synthetic input, the external benchmark/CLI collaborator
// spec.md §1 excludes from the core but §6 still names a contract
// for (input distributor, policy selector). It is not part of the
// sorting engine itself: every package it imports from this module is
// already independently tested, and this driver's job is only to
// generate input, wire it through fabric.Run, and report the tracker's
// timings.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/sneller-labs/dstrsort/dsort"
	"github.com/sneller-labs/dstrsort/dstring"
	"github.com/sneller-labs/dstrsort/fabric"
	"github.com/sneller-labs/dstrsort/prefix"
	"github.com/sneller-labs/dstrsort/splitter"
	"github.com/sneller-labs/dstrsort/tracker"
	"github.com/sneller-labs/dstrsort/validate"
)

func fatalf(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

func main() {
	cfg := defaultConfig()

	cfgPath := flag.String("config", "", "YAML policy file")
	processors := flag.Int("p", cfg.Processors, "number of simulated processors")
	perProcessor := flag.Int("n", cfg.PerProcessor, "strings generated per processor")
	strLen := flag.Int("len", cfg.StringLen, "approximate string length in bytes")
	dist := flag.String("dist", cfg.Distribution, "input distribution: random | dn-ratio | skewed | shared-prefix")
	mode := flag.String("mode", cfg.Mode, "final-sort strategy: plain | robust")
	sample := flag.String("sample", cfg.Sample, "sampling policy: num-strings | num-chars")
	hashEncoding := flag.String("hash-encoding", cfg.HashEncoding, "C7 hash transport: raw | golomb-sequential")
	estimatePrefixes := flag.Bool("estimate-prefixes", cfg.EstimatePrefixes, "run C7 distinguishing-prefix estimation before the sort")
	compression := flag.String("compression", cfg.Compression, "wire compression codec: \"\" | s2 | zstd | zstd-better")
	validateMode := flag.String("validate", cfg.Validate, "post-sort check: off | cheap | exhaustive")
	seed := flag.Int64("seed", cfg.Seed, "group-synchronous PRNG seed")
	flag.Parse()

	if *cfgPath != "" {
		buf, err := os.ReadFile(*cfgPath)
		if err != nil {
			fatalf("reading config: %s", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			fatalf("parsing config: %s", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "p":
			cfg.Processors = *processors
		case "n":
			cfg.PerProcessor = *perProcessor
		case "len":
			cfg.StringLen = *strLen
		case "dist":
			cfg.Distribution = *dist
		case "mode":
			cfg.Mode = *mode
		case "sample":
			cfg.Sample = *sample
		case "hash-encoding":
			cfg.HashEncoding = *hashEncoding
		case "estimate-prefixes":
			cfg.EstimatePrefixes = *estimatePrefixes
		case "compression":
			cfg.Compression = *compression
		case "validate":
			cfg.Validate = *validateMode
		case "seed":
			cfg.Seed = *seed
		}
	})

	if err := run(cfg); err != nil {
		fatalf("%s", err)
	}
}

func run(cfg config) error {
	p := cfg.Processors
	if p <= 0 {
		return fmt.Errorf("processors must be positive, got %d", p)
	}

	opts := dsort.Options{
		Seed: cfg.Seed,
		Tag:  1,
	}
	if cfg.Mode == "robust" {
		opts.Mode = dsort.Robust
	}
	switch cfg.Sample {
	case "num-chars":
		opts.Sample = splitter.NumChars
	default:
		opts.Sample = splitter.NumStrings
	}
	opts.EstimatePrefixes = cfg.EstimatePrefixes
	opts.PrefixParams = prefix.Params{Seed: cfg.Seed}
	if cfg.HashEncoding == "golomb-sequential" {
		opts.PrefixParams.Encoding = prefix.GolombSequential
	}

	trackers := make([]*tracker.InMemory, p)
	localCounts := make([]int, p)

	runner := fabric.Run
	if cfg.Compression != "" {
		runner = func(n int, fn func(*fabric.Group) error) error {
			return fabric.RunCompressed(n, cfg.Compression, fn)
		}
	}

	start := time.Now()
	err := runner(p, func(g *fabric.Group) error {
		rank := g.Rank()
		rnd := rand.New(rand.NewSource(cfg.Seed + int64(rank)))
		strs, err := generate(cfg.Distribution, rnd, cfg.PerProcessor, cfg.StringLen, rank, cfg.DistinctRatio)
		if err != nil {
			return err
		}
		c, err := buildContainer(strs)
		if err != nil {
			return err
		}

		trk := tracker.New()
		trackers[rank] = trk

		result, err := dsort.Sort(g, c, trk, opts)
		if err != nil {
			return err
		}
		localCounts[rank] = result.Len()

		if cfg.Validate != "off" && p&(p-1) == 0 {
			mode := validate.Cheap
			if cfg.Validate == "exhaustive" {
				mode = validate.Exhaustive
			}
			if !validate.Check(g, result, mode, opts.Tag+900000) {
				return fmt.Errorf("rank %d: sorted output failed validation", rank)
			}
		}
		return nil
	})
	elapsed := time.Since(start)
	if err != nil {
		return err
	}

	total := 0
	for _, n := range localCounts {
		total += n
	}
	report(cfg, elapsed, total, trackers)
	return nil
}

func buildContainer(strs []string) (*dstring.Container, error) {
	var buf []byte
	for _, s := range strs {
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	return dstring.New(buf)
}

func report(cfg config, elapsed time.Duration, total int, trackers []*tracker.InMemory) {
	rate := float64(total) / elapsed.Seconds()
	fmt.Printf("processors=%d strings=%d dist=%s mode=%s sample=%s compression=%q\n",
		cfg.Processors, total, cfg.Distribution, cfg.Mode, cfg.Sample, cfg.Compression)
	fmt.Printf("elapsed=%s throughput=%.0f strings/s\n", elapsed, rate)

	for _, name := range []string{
		tracker.LocalSort, tracker.Shape, tracker.Shuffle,
		tracker.Partition, tracker.Exchange, tracker.Merge,
		tracker.Split, tracker.MedianSelect,
	} {
		var sum time.Duration
		var max time.Duration
		for _, t := range trackers {
			d := t.Elapsed(name)
			sum += d
			if d > max {
				max = d
			}
		}
		if sum == 0 {
			continue
		}
		avg := sum / time.Duration(len(trackers))
		fmt.Printf("  %-14s avg=%-12s max=%s\n", name, avg, max)
	}
	if imbalance, ok := trackers[0].Metric("inbalance"); ok {
		fmt.Printf("  splitter inbalance (rank 0) = %.3f\n", imbalance)
	}
	log.Printf("dstrsort-bench: run complete")
}
