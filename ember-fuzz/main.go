// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// ember-fuzz is the engine command.
//
//	ember-fuzz fuzz -target harness [-procs N] [-input dir] [-output dir]
//	ember-fuzz run -target harness [path]
//
// fuzz runs a continuous campaign until interrupted. run replays a stored
// input (or every input in a directory) and reports the outcome, without
// touching campaign state.
package main

import (
	"context"
	"flag"
	"fmt"
	golog "log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emberfuzz/ember/pkg/ffi"
	_ "github.com/emberfuzz/ember/pkg/ffi/ffitest" // built-in demo harnesses
	"github.com/emberfuzz/ember/pkg/fuzzer"
	"github.com/emberfuzz/ember/pkg/log"
	"github.com/emberfuzz/ember/pkg/mgrconfig"
	"github.com/emberfuzz/ember/pkg/osutil"
	"github.com/emberfuzz/ember/pkg/stat"
	"github.com/emberfuzz/ember/pkg/tool"
)

func main() {
	log.EnableLogCaching(1000, 1<<20)
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "fuzz":
		fuzzMain(os.Args[2:])
	case "run":
		runMain(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: ember-fuzz fuzz|run [flags] [args]\n")
	os.Exit(1)
}

func parseConfig(fs *flag.FlagSet, args []string) *mgrconfig.Config {
	var (
		flagConfig  = fs.String("config", "", "configuration file")
		flagTarget  = fs.String("target", "", "harness name or plugin path")
		flagProcs   = fs.Int("procs", 0, "number of parallel workers")
		flagInput   = fs.String("input", "", "seed input directory")
		flagOutput  = fs.String("output", "", "output directory")
		flagTimeout = fs.Duration("timeout", 0, "single execution timeout")
	)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	cfg, err := mgrconfig.LoadFile(*flagConfig)
	if err != nil {
		tool.Failf("%v", err)
	}
	// Flags given explicitly win over the config file.
	if *flagTarget != "" {
		cfg.Target = *flagTarget
	}
	if *flagProcs != 0 {
		cfg.Procs = *flagProcs
	}
	if *flagInput != "" {
		cfg.Input = *flagInput
	}
	if *flagOutput != "" {
		cfg.Output = *flagOutput
	}
	if *flagTimeout != 0 {
		cfg.Timeout = *flagTimeout
	}
	if err := cfg.Validate(); err != nil {
		tool.Failf("%v", err)
	}
	return cfg
}

func fuzzMain(args []string) {
	fs := flag.NewFlagSet("fuzz", flag.ExitOnError)
	flagHTTP := fs.String("http", "", "serve metrics on this address")
	cfg := parseConfig(fs, args)
	if *flagHTTP != "" {
		cfg.HTTP = *flagHTTP
	}
	factory, err := ffi.Load(cfg.Target)
	if err != nil {
		tool.Failf("%v", err)
	}
	if err := osutil.MkdirAll(cfg.Output); err != nil {
		tool.Failf("failed to create output dir: %v", err)
	}
	if cfg.HTTP != "" {
		http.Handle("/metrics", promhttp.Handler())
		http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
			for _, v := range stat.Collect(stat.All) {
				fmt.Fprintf(w, "%-24v %v\t%v\n", v.Name, v.Value, v.Desc)
			}
		})
		http.HandleFunc("/log", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, log.CachedLogOutput())
		})
		server := &http.Server{
			Addr:     cfg.HTTP,
			ErrorLog: golog.New(log.VerboseWriter(1), "", 0),
		}
		go func() {
			if err := server.ListenAndServe(); err != nil {
				log.Fatalf("failed to serve http on %v: %v", cfg.HTTP, err)
			}
		}()
	}
	fuzz, err := fuzzer.New(cfg, factory)
	if err != nil {
		tool.Failf("%v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Logf(0, "fuzzing %v with %v procs, timeout %v", cfg.Target, cfg.Procs, cfg.Timeout)
	if err := fuzz.Loop(ctx); err != nil {
		tool.Failf("%v", err)
	}
	log.Logf(0, "campaign stopped, state flushed")
}

func runMain(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg := parseConfig(fs, args)
	factory, err := ffi.Load(cfg.Target)
	if err != nil {
		tool.Failf("%v", err)
	}
	path := cfg.Input
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	var files []string
	if st, err := os.Stat(path); err != nil {
		tool.Failf("%v", err)
	} else if st.IsDir() {
		names, err := osutil.ListDir(path)
		if err != nil {
			tool.Failf("%v", err)
		}
		for _, name := range names {
			files = append(files, filepath.Join(path, name))
		}
	} else {
		files = []string{path}
	}
	bad := 0
	for _, file := range files {
		data, err := osutil.ReadFile(file)
		if err != nil {
			tool.Failf("%v", err)
		}
		start := time.Now()
		res, err := fuzzer.Replay(cfg, factory, data)
		if err != nil {
			tool.Failf("%v", err)
		}
		fmt.Printf("%v: %v (%.0f ms)\n", file, res.Outcome, float64(time.Since(start).Milliseconds()))
		if res.Outcome != ffi.Completed {
			bad++
		}
	}
	if bad != 0 {
		fmt.Printf("%v of %v inputs misbehaved\n", bad, len(files))
		os.Exit(1)
	}
}
