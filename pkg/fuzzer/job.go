// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"time"

	"github.com/emberfuzz/ember/pkg/corpus"
	"github.com/emberfuzz/ember/pkg/ffi"
	"github.com/emberfuzz/ember/pkg/log"
	"github.com/emberfuzz/ember/pkg/mgrconfig"
	"github.com/emberfuzz/ember/pkg/mutate"
	"github.com/emberfuzz/ember/pkg/signal"
)

// execute wraps env.Exec with outcome accounting: faults and hangs are
// routed to the reporter here so that no call site can forget, and a hang
// poisons the env which is rebuilt before the next call.
func (fuzzer *Fuzzer) execute(env *ffi.Env, data []byte, opts ffi.ExecOpts) (*ffi.Result, error) {
	res := env.Exec(data, opts)
	fuzzer.statExecTime.Add(int(res.Elapsed.Milliseconds()))
	switch res.Outcome {
	case ffi.Crashed:
		fuzzer.statCrashes.Add(1)
		rec, fresh, err := fuzzer.Reporter.Save(res, data)
		if err != nil {
			return nil, err
		}
		if fresh {
			log.Logf(0, "new %v: %v (input %v)", rec.Type, rec.Title, rec.Sig)
			if err := fuzzer.state.flush(fuzzer.Cover); err != nil {
				return nil, err
			}
		}
		// The partial snapshot up to the fault still counts, the edge
		// that led into the crash must stay discovered.
		fuzzer.Cover.Fold(res.Elems, res.Buckets)
	case ffi.TimedOut:
		fuzzer.statHangs.Add(1)
		rec, fresh, err := fuzzer.Reporter.Save(res, data)
		if err != nil {
			return nil, err
		}
		if fresh {
			log.Logf(0, "new %v: %v (input %v)", rec.Type, rec.Title, rec.Sig)
		}
		if env.Broken() {
			fuzzer.statRestarts.Add(1)
			if err := env.Restart(); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

// triageCandidate evaluates a startup input. Seeds that misbehave are not
// admitted; resumed queue entries that misbehave are additionally moved to
// quarantine so the next resume does not trip over them again.
func (fuzzer *Fuzzer) triageCandidate(env *ffi.Env, cand candidate) error {
	res, err := fuzzer.execute(env, cand.data, ffi.ExecOpts{})
	if err != nil {
		return err
	}
	if res.Outcome != ffi.Completed {
		if cand.path != "" {
			log.Logf(0, "quarantining resumed input %v: %v", cand.path, res.Outcome)
			if err := corpus.Quarantine(fuzzer.queueDir, cand.path); err != nil {
				log.Logf(0, "failed to quarantine %v: %v", cand.path, err)
			}
		}
		return nil
	}
	if fuzzer.Cover.Diff(signal.FromRaw(res.Elems, res.Buckets)).Empty() {
		return nil
	}
	return fuzzer.triage(env, cand.data, res, true)
}

// triage decides corpus admission for an input that looked interesting once.
// The input is re-executed and only the signal stable across all runs is
// credited, otherwise flaky edges would pollute the corpus with entries
// whose recorded signal cannot be reproduced.
func (fuzzer *Fuzzer) triage(env *ffi.Env, data []byte, first *ffi.Result, hints bool) error {
	stable := signal.FromRaw(first.Elems, first.Buckets)
	execTime := first.Elapsed
	runs := 1
	for ; runs < fuzzer.Config.CalibrationRuns; runs++ {
		res, err := fuzzer.execute(env, data, ffi.ExecOpts{})
		if err != nil {
			return err
		}
		if res.Outcome != ffi.Completed {
			// Nondeterministically faulting inputs belong to the
			// reporter, not the corpus.
			return nil
		}
		stable = stable.Intersection(signal.FromRaw(res.Elems, res.Buckets))
		if stable.Empty() {
			return nil
		}
		if res.Elapsed < execTime {
			execTime = res.Elapsed
		}
	}
	interesting, contributed := fuzzer.Cover.FoldSignal(stable)
	if !interesting {
		// Lost the race to another worker that admitted an input with
		// the same signal first.
		return nil
	}
	if err := fuzzer.commit(data, contributed, execTime, runs); err != nil {
		return err
	}
	if !hints {
		return nil
	}
	return fuzzer.hintsPass(env, data)
}

// commit is the only place a new corpus entry comes into existence.
func (fuzzer *Fuzzer) commit(data []byte, contributed signal.Signal, execTime time.Duration, runs int) error {
	fuzzer.Corpus.Save(corpus.NewInput{
		Data:     data,
		Signal:   contributed,
		ExecTime: execTime,
		Verified: runs,
	})
	if _, err := corpus.WriteEntry(fuzzer.queueDir, data); err != nil {
		return err
	}
	fuzzer.statNewInputs.Add(1)
	return fuzzer.state.flush(fuzzer.Cover)
}

// Cap on children evaluated per hints pass; a comparison-heavy run can
// produce far more candidates than it is worth executing synchronously.
const maxHintChildren = 64

// hintsPass runs the comparison-guided sweep over a freshly admitted entry:
// collect the comparisons its execution performs, plant the operands into
// the input, and evaluate every child. Children that prove interesting are
// triaged like any other input.
func (fuzzer *Fuzzer) hintsPass(env *ffi.Env, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	res, err := fuzzer.execute(env, data, ffi.ExecOpts{CollectComps: true})
	if err != nil {
		return err
	}
	if res.Outcome != ffi.Completed || len(res.Trace) == 0 {
		return nil
	}
	for _, child := range mutate.GuidedCandidates(data, res.Trace, maxHintChildren) {
		childRes, err := fuzzer.execute(env, child, ffi.ExecOpts{})
		if err != nil {
			return err
		}
		if childRes.Outcome != ffi.Completed {
			continue
		}
		if fuzzer.Cover.Diff(signal.FromRaw(childRes.Elems, childRes.Buckets)).Empty() {
			continue
		}
		if err := fuzzer.triage(env, child, childRes, false); err != nil {
			return err
		}
	}
	return nil
}

// Replay executes one input in a fresh env and reports the outcome without
// touching corpus or coverage state. Used by the single-shot run mode to
// reproduce stored inputs.
func Replay(cfg *mgrconfig.Config, factory ffi.Factory, data []byte) (*ffi.Result, error) {
	env, err := ffi.MakeEnv(factory, &ffi.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	defer env.Close()
	return env.Exec(data, ffi.ExecOpts{}), nil
}
