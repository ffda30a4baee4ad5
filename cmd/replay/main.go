package main

import (
	"flag"
	"fmt"
	"os"

	"lockstep.ai/internal/config"
	"lockstep.ai/internal/logging"
	persistlog "lockstep.ai/internal/persistence/log"
	"lockstep.ai/internal/sim/catalogs"
	"lockstep.ai/internal/sim/designator"
	"lockstep.ai/internal/sim/intercept"
	"lockstep.ai/internal/sim/simtest"
)

func main() {
	var (
		journal    = flag.String("journal", "", "journal file or directory containing journal-*.jsonl.zst")
		configPath = flag.String("config", "", "path to lockstep.yaml (worlds and catalog, optional)")
		session    = flag.String("session", "", "only entries written by this journal session (optional)")
		apply      = flag.Bool("apply", false, "re-apply applied entries against a fresh in-memory engine and print its digest")
		fromSeq    = flag.Uint64("from_seq", 0, "first sequence number to apply (optional)")
		toSeq      = flag.Uint64("to_seq", 0, "last sequence number to apply (optional)")
	)
	flag.Parse()

	if *journal == "" {
		fmt.Fprintln(os.Stderr, "missing -journal")
		os.Exit(2)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	cat, err := catalogs.Load(cfg.Catalog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalog:", err)
		os.Exit(1)
	}
	resolver := designator.NewResolver(cat)

	var rp *intercept.Replayer
	var engine *simtest.Engine
	if *apply {
		engine = simtest.NewEngine(resolver, nil)
		for _, w := range cfg.Worlds {
			engine.AddWorld(w.ID, w.SizeX, w.SizeZ)
		}
		log := logging.New(logging.Config{Level: "error"})
		rp, err = intercept.NewReplayer(intercept.ReplayerConfig{
			Resolver: resolver,
			Worlds:   engine,
			Actions:  simtest.Factory{},
			Sites:    engine,
			Log:      log,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replayer:", err)
			os.Exit(1)
		}
	}

	var st stats
	err = persistlog.ReadJournal(*journal, func(e persistlog.Entry) error {
		if *session != "" && e.Session != *session {
			return nil
		}
		return st.check(e, resolver, rp, *fromSeq, *toSeq)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	fmt.Printf("journal ok: dispatched=%d applied=%d invalid=%d last_seq=%d\n", st.dispatched, st.applied, st.invalid, st.lastSeq)
	if engine != nil {
		fmt.Printf("re-applied=%d rejected=%d digest=%s\n", st.reapplied, st.rejected, engine.Digest())
	}
	if st.invalid > 0 {
		os.Exit(1)
	}
}

type stats struct {
	dispatched, applied, invalid int
	reapplied, rejected          int
	lastSeq                      uint64
}

func (s *stats) check(e persistlog.Entry, resolver *designator.Resolver, rp *intercept.Replayer, fromSeq, toSeq uint64) error {
	raw, err := designator.MarshalPayload(e.Payload)
	if err == nil {
		err = designator.ValidatePayloadJSON(raw)
	}
	if err == nil {
		_, err = resolver.DecodeContext(e.Payload.Descriptor, e.Payload.Metadata)
	}
	if err != nil {
		s.invalid++
		fmt.Fprintf(os.Stderr, "invalid %s entry seq=%d: %v\n", e.Event, e.Seq, err)
		return nil
	}

	switch e.Event {
	case persistlog.EventDispatched:
		s.dispatched++
	case persistlog.EventApplied:
		s.applied++
		if e.Seq <= s.lastSeq {
			return fmt.Errorf("applied seq %d after %d: journal out of order", e.Seq, s.lastSeq)
		}
		s.lastSeq = e.Seq
		if rp == nil || e.Seq < fromSeq || (toSeq != 0 && e.Seq > toSeq) {
			return nil
		}
		if err := rp.Apply(e.Payload); err != nil {
			s.rejected++
			return nil
		}
		s.reapplied++
	default:
		return fmt.Errorf("unknown journal event %q", e.Event)
	}
	return nil
}
