// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package fuzzer is the top-level campaign loop: it wires the scheduler,
// mutator, execution envs, coverage state, corpus and crash reporting into
// a pool of workers and owns all state commits.
package fuzzer

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emberfuzz/ember/pkg/cmptrace"
	"github.com/emberfuzz/ember/pkg/corpus"
	"github.com/emberfuzz/ember/pkg/cover"
	"github.com/emberfuzz/ember/pkg/ffi"
	"github.com/emberfuzz/ember/pkg/log"
	"github.com/emberfuzz/ember/pkg/mgrconfig"
	"github.com/emberfuzz/ember/pkg/mutate"
	"github.com/emberfuzz/ember/pkg/osutil"
	"github.com/emberfuzz/ember/pkg/report"
	"github.com/emberfuzz/ember/pkg/signal"
	"github.com/emberfuzz/ember/pkg/stat"
)

type Fuzzer struct {
	Config   *mgrconfig.Config
	Corpus   *corpus.Corpus
	Cover    *cover.State
	Reporter *report.Reporter

	factory  ffi.Factory
	mut      *mutate.Mutator
	queueDir string
	state    *campaignState

	candidates chan candidate

	statExecs     *stat.Val
	statExecTime  *stat.Val
	statNewInputs *stat.Val
	statCrashes   *stat.Val
	statHangs     *stat.Val
	statRestarts  *stat.Val
}

// candidate is an input that must be evaluated before mutation starts:
// a seed, a resumed queue entry, or a comparison-hint child.
type candidate struct {
	data []byte
	path string // set for resumed queue entries, enables quarantine
}

func New(cfg *mgrconfig.Config, factory ffi.Factory) (*Fuzzer, error) {
	reporter, err := report.NewReporter(cfg.Output, cfg.Dedup)
	if err != nil {
		return nil, err
	}
	queueDir := filepath.Join(cfg.Output, "queue")
	if err := osutil.MkdirAll(queueDir); err != nil {
		return nil, err
	}
	fuzzer := &Fuzzer{
		Config:   cfg,
		Corpus:   corpus.New(),
		Cover:    cover.NewState(),
		Reporter: reporter,
		factory:  factory,
		queueDir: queueDir,
	}
	fuzzer.mut = &mutate.Mutator{
		MaxLen: cfg.MaxInputLen,
		Donor: func(r *rand.Rand) []byte {
			if entry := fuzzer.Corpus.ChooseEntry(r); entry != nil {
				return entry.Data
			}
			return nil
		},
	}
	fuzzer.state, err = loadState(filepath.Join(cfg.Output, "state.db"), fuzzer.Cover)
	if err != nil {
		return nil, err
	}
	fuzzer.initStats()
	if err := fuzzer.loadCandidates(); err != nil {
		return nil, err
	}
	log.Logf(0, "campaign %v: %v candidates, %v resumed signal",
		fuzzer.state.campaign, len(fuzzer.candidates), fuzzer.Cover.Len())
	return fuzzer, nil
}

func (fuzzer *Fuzzer) initStats() {
	fuzzer.statExecs = stat.New("exec total", "Number of target executions",
		stat.Console, stat.Rate{}, stat.Prometheus("ember_exec_total"))
	fuzzer.statExecTime = stat.New("exec time", "Target execution time (ms)",
		stat.Distribution{})
	fuzzer.statNewInputs = stat.New("new inputs", "Inputs admitted into the corpus",
		stat.Console, stat.Prometheus("ember_new_inputs_total"))
	fuzzer.statCrashes = stat.New("crash execs", "Executions that ended in a fault",
		stat.Console, stat.Prometheus("ember_crash_total"))
	fuzzer.statHangs = stat.New("hang execs", "Executions that timed out",
		stat.Console, stat.Prometheus("ember_hang_total"))
	fuzzer.statRestarts = stat.New("env restarts", "Execution envs rebuilt after a hang",
		stat.Prometheus("ember_env_restarts_total"))
	stat.New("corpus", "Corpus entries", stat.Console, stat.Prometheus("ember_corpus_size"),
		func() int { return fuzzer.Corpus.Stats().Entries })
	stat.New("crash types", "Distinct deduplicated crashes and hangs", stat.Console,
		stat.Prometheus("ember_crash_types"),
		func() int { return fuzzer.Reporter.Count() })
}

// loadCandidates collects startup inputs: the user seed directory plus the
// queue of a previous campaign run. An entirely empty start is bootstrapped
// with a zero-length input and a handful of short random seeds, coverage
// feedback grows real inputs from there.
func (fuzzer *Fuzzer) loadCandidates() error {
	seeds, err := corpus.LoadDir(fuzzer.Config.Input)
	if err != nil {
		return err
	}
	resumed, err := corpus.LoadDir(fuzzer.queueDir)
	if err != nil {
		return err
	}
	var cands []candidate
	for _, seed := range seeds {
		cands = append(cands, candidate{data: seed.Data})
	}
	for _, seed := range resumed {
		cands = append(cands, candidate{data: seed.Data, path: seed.Path})
	}
	if len(cands) == 0 {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		cands = append(cands, candidate{data: []byte{}})
		for i := 0; i < bootstrapSeeds; i++ {
			cands = append(cands, candidate{data: randomSeed(rnd)})
		}
	}
	fuzzer.candidates = make(chan candidate, len(cands))
	for _, cand := range cands {
		fuzzer.candidates <- cand
	}
	return nil
}

const (
	bootstrapSeeds  = 8
	maxBootstrapLen = 32
)

func randomSeed(r *rand.Rand) []byte {
	data := make([]byte, r.Intn(maxBootstrapLen)+1)
	for i := range data {
		data[i] = byte(' ' + r.Intn('~'-' '+1))
	}
	return data
}

// Loop runs the campaign until ctx is cancelled, then flushes state and
// returns. Worker failures (not target crashes, engine failures) abort the
// whole campaign.
func (fuzzer *Fuzzer) Loop(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return fuzzer.heartbeat(ctx)
	})
	for i := 0; i < fuzzer.Config.Procs; i++ {
		proc := i
		g.Go(func() error {
			return fuzzer.worker(ctx, proc)
		})
	}
	err := g.Wait()
	if flushErr := fuzzer.state.flush(fuzzer.Cover); flushErr != nil && err == nil {
		err = flushErr
	}
	if err == context.Canceled {
		err = nil
	}
	return err
}

const (
	statusPeriod = 10 * time.Second
	flushPeriod  = time.Minute
)

func (fuzzer *Fuzzer) heartbeat(ctx context.Context) error {
	status := time.NewTicker(statusPeriod)
	defer status.Stop()
	flush := time.NewTicker(flushPeriod)
	defer flush.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-status.C:
			line := ""
			for _, v := range stat.Collect(stat.Console) {
				line += fmt.Sprintf("%v=%v ", v.Name, v.Value)
			}
			log.Logf(0, "%v", line)
		case <-flush.C:
			if err := fuzzer.state.flush(fuzzer.Cover); err != nil {
				return err
			}
		}
	}
}

func (fuzzer *Fuzzer) worker(ctx context.Context, proc int) error {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(proc)*1e9))
	env, err := ffi.MakeEnv(fuzzer.factory, &ffi.Config{
		Timeout:   fuzzer.Config.Timeout,
		Classify:  fuzzer.classifier(),
		StatExecs: fuzzer.statExecs,
	})
	if err != nil {
		return err
	}
	defer env.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cand := <-fuzzer.candidates:
			if err := fuzzer.triageCandidate(env, cand); err != nil {
				return err
			}
		default:
			if err := fuzzer.fuzzOne(env, rnd); err != nil {
				return err
			}
		}
	}
}

func (fuzzer *Fuzzer) classifier() func(byte) uint8 {
	if fuzzer.Config.Bucketing == "linear" {
		return cover.LinearBucket
	}
	return cover.LogBucket
}

// How often the parent is re-executed with comparison collection armed to
// feed the guided mutation stage.
const traceParentOneIn = 10

// fuzzOne runs one mutate-execute-fold iteration.
func (fuzzer *Fuzzer) fuzzOne(env *ffi.Env, rnd *rand.Rand) error {
	var parentData []byte
	if parent := fuzzer.Corpus.ChooseEntry(rnd); parent != nil {
		parentData = parent.Data
	} else {
		// Corpus is still empty, keep probing with fresh random seeds.
		parentData = randomSeed(rnd)
	}
	var hint cmptrace.Trace
	if len(parentData) != 0 && rnd.Intn(traceParentOneIn) == 0 {
		res, err := fuzzer.execute(env, parentData, ffi.ExecOpts{CollectComps: true})
		if err != nil {
			return err
		}
		if res.Outcome == ffi.Completed {
			hint = res.Trace
		}
	}
	child := fuzzer.mut.Mutate(rnd, parentData, hint)
	res, err := fuzzer.execute(env, child, ffi.ExecOpts{})
	if err != nil {
		return err
	}
	if res.Outcome != ffi.Completed {
		return nil
	}
	if fuzzer.Cover.Diff(signal.FromRaw(res.Elems, res.Buckets)).Empty() {
		return nil
	}
	return fuzzer.triage(env, child, res, true)
}
