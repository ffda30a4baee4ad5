package simtest

import (
	"github.com/sirupsen/logrus"

	"lockstep.ai/internal/protocol"
	"lockstep.ai/internal/sim/catalogs"
	"lockstep.ai/internal/sim/designator"
	"lockstep.ai/internal/sim/intercept"
	"lockstep.ai/internal/sim/replay"
)

type WorldSpec struct {
	ID    int
	SizeX int
	SizeZ int
}

// Peer wires one client: engine, selection, interceptor and replayer, all
// sharing one sequencer with the other peers.
type Peer struct {
	Name        string
	Engine      *Engine
	Selection   *Selection
	Feedback    *Feedback
	Dispatcher  *PeerDispatcher
	Interceptor *intercept.Interceptor
	Replayer    *intercept.Replayer
	Guard       *replay.Guard
	Inbox       <-chan protocol.CommandMsg

	// Syncing backs the interceptor's sync gate.
	Syncing bool
}

type PeerOptions struct {
	Catalog            *catalogs.Catalog
	CanonicalCellOrder bool
	Journal            interface {
		intercept.DispatchRecorder
		intercept.AppliedRecorder
	}
	Index intercept.AppliedIndex
	Log   logrus.FieldLogger
}

func NewPeer(q *Sequencer, name string, worlds []WorldSpec, opts PeerOptions) (*Peer, error) {
	resolver := designator.NewResolver(opts.Catalog)
	p := &Peer{
		Name:      name,
		Selection: &Selection{},
		Feedback:  &Feedback{},
		Guard:     &replay.Guard{},
		Syncing:   true,
	}
	p.Engine = NewEngine(resolver, p.Selection)
	for _, w := range worlds {
		p.Engine.AddWorld(w.ID, w.SizeX, w.SizeZ)
	}
	p.Dispatcher = q.Dispatcher(name)
	p.Inbox = q.Subscribe()

	icCfg := intercept.Config{
		Resolver:           resolver,
		Dispatcher:         p.Dispatcher,
		Sync:               intercept.SyncFunc(func() bool { return p.Syncing }),
		View:               p.Engine,
		Selection:          p.Selection,
		Feedback:           p.Feedback,
		CanonicalCellOrder: opts.CanonicalCellOrder,
		Log:                opts.Log,
	}
	rpCfg := intercept.ReplayerConfig{
		Guard:    p.Guard,
		Resolver: resolver,
		Worlds:   p.Engine,
		Actions:  Factory{},
		Sites:    p.Engine,
		Index:    opts.Index,
		Log:      opts.Log,
	}
	if opts.Journal != nil {
		icCfg.Journal = opts.Journal
		rpCfg.Journal = opts.Journal
	}
	ic, err := intercept.New(icCfg)
	if err != nil {
		return nil, err
	}
	rp, err := intercept.NewReplayer(rpCfg)
	if err != nil {
		return nil, err
	}
	p.Interceptor = ic
	p.Replayer = rp
	p.Engine.Attach(ic)
	return p, nil
}

// Tick runs the input phase: apply every sequenced command waiting.
func (p *Peer) Tick() (int, error) {
	return p.Replayer.Drain(p.Inbox)
}
