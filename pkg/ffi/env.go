// Copyright 2026 ember project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ffi

import (
	"fmt"
	"time"

	"github.com/emberfuzz/ember/pkg/cmptrace"
	"github.com/emberfuzz/ember/pkg/cover"
	"github.com/emberfuzz/ember/pkg/stat"
)

// Config is the configuration for Env.
type Config struct {
	// Timeout is the execution timeout for a single run.
	Timeout time.Duration
	// ArenaSize/CmpRegionSize are the shared region sizes (0 = defaults).
	ArenaSize     int
	CmpRegionSize int
	// Classify maps raw hit counts onto buckets (nil = cover.LogBucket).
	Classify func(byte) uint8
	// StatExecs, if set, is bumped once per invocation regardless of outcome.
	StatExecs *stat.Val
}

const DefaultTimeout = time.Second

// Outcome is the closed classification of one invocation.
type Outcome int

const (
	Completed Outcome = iota
	Crashed
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Crashed:
		return "crashed"
	case TimedOut:
		return "timed out"
	default:
		panic(fmt.Sprintf("unknown outcome %d", int(o)))
	}
}

// FaultInfo describes a Crashed outcome.
type FaultInfo struct {
	Signo int    // fault signal reported via the status code, 0 for panics
	Msg   string // recovered panic message, if any
}

// Result of one invocation.
type Result struct {
	Outcome Outcome
	Status  int
	Fault   FaultInfo
	// Per-run coverage snapshot. Filled for Completed and, best effort,
	// for Crashed runs (the edge that led into the fault must not be lost).
	// Empty for TimedOut: the abandoned call may still be writing.
	Elems   []uint32
	Buckets []uint8
	// Comparison trace, filled only when requested via ExecOpts.
	Trace   cmptrace.Trace
	Elapsed time.Duration
}

type ExecOpts struct {
	// CollectComps arms the comparison-trace region for this run.
	CollectComps bool
}

// Env is a recoverable execution context: one Target instance plus the shared
// regions it writes into. A worker owns exactly one live Env at a time; after
// a timeout the Env is poisoned and must be replaced via Restart, so that the
// abandoned call cannot corrupt the regions observed by subsequent runs.
type Env struct {
	target  Target
	factory Factory
	cfg     *Config
	arena   *cover.Arena
	comps   *cmptrace.Region

	reqc   chan []byte
	resc   chan execStatus
	broken bool

	// Restarts counts how many times this worker's env was rebuilt.
	Restarts int
}

type execStatus struct {
	status   int
	panicked bool
	panicMsg string
}

func MakeEnv(factory Factory, cfg *Config) (*Env, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	env := &Env{
		factory: factory,
		cfg:     cfg,
	}
	if err := env.start(); err != nil {
		return nil, err
	}
	return env, nil
}

func (env *Env) start() error {
	arena, err := cover.NewArena(env.cfg.ArenaSize)
	if err != nil {
		return err
	}
	comps, err := cmptrace.NewRegion(env.cfg.CmpRegionSize)
	if err != nil {
		arena.Close()
		return err
	}
	target := env.factory()
	if err := target.Setup(arena.Region(), comps.Mem()); err != nil {
		arena.Close()
		comps.Close()
		return fmt.Errorf("foreign boundary mismatch: %w", err)
	}
	env.target = target
	env.arena = arena
	env.comps = comps
	env.broken = false
	env.reqc = make(chan []byte)
	env.resc = make(chan execStatus, 1)
	go env.loop()
	return nil
}

// loop runs target invocations on a dedicated goroutine so that a hanging
// call can be abandoned without tearing down the worker.
func (env *Env) loop() {
	target, resc := env.target, env.resc
	for data := range env.reqc {
		resc <- run(target, data)
	}
}

func run(target Target, data []byte) (res execStatus) {
	defer func() {
		if r := recover(); r != nil {
			res = execStatus{panicked: true, panicMsg: fmt.Sprint(r)}
		}
	}()
	res.status = target.Exec(data)
	return
}

// Exec performs one guarded invocation of the target.
// The coverage arena is zeroed and the comparison region armed/disarmed
// before the call; afterwards the outcome is classified exhaustively.
func (env *Env) Exec(data []byte, opts ExecOpts) *Result {
	if env.broken {
		panic("exec on a poisoned env, Restart it first")
	}
	if env.cfg.StatExecs != nil {
		env.cfg.StatExecs.Add(1)
	}
	env.arena.Reset()
	if opts.CollectComps {
		env.comps.Arm()
	} else {
		env.comps.Disarm()
	}
	start := time.Now()
	env.reqc <- data
	select {
	case st := <-env.resc:
		res := &Result{
			Status:  st.status,
			Elapsed: time.Since(start),
		}
		res.Elems, res.Buckets = env.arena.Snapshot(env.cfg.Classify)
		if opts.CollectComps {
			res.Trace = env.comps.Collect()
		}
		switch {
		case st.panicked:
			res.Outcome = Crashed
			res.Fault = FaultInfo{Msg: st.panicMsg}
		case st.status < 0:
			res.Outcome = Crashed
			res.Fault = FaultInfo{Signo: -st.status}
		default:
			res.Outcome = Completed
		}
		return res
	case <-time.After(env.cfg.Timeout):
		// The call did not return; abandon it. The env is now poisoned:
		// the stuck goroutine may keep writing into the regions, so they
		// must not be read or reused.
		env.broken = true
		return &Result{
			Outcome: TimedOut,
			Elapsed: time.Since(start),
		}
	}
}

// Broken reports whether the env was poisoned by an abandoned call.
func (env *Env) Broken() bool {
	return env.broken
}

// Restart replaces a poisoned env with a fresh target instance and fresh
// regions. The old regions stay mapped for the abandoned goroutine and are
// reclaimed when the process exits; unmapping them under a live writer
// would fault.
func (env *Env) Restart() error {
	if !env.broken {
		close(env.reqc)
		env.closeRegions()
	}
	env.Restarts++
	return env.start()
}

func (env *Env) Close() error {
	if env.broken {
		// See Restart for why the regions leak here.
		return nil
	}
	close(env.reqc)
	return env.closeRegions()
}

func (env *Env) closeRegions() error {
	err1 := env.arena.Close()
	err2 := env.comps.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
