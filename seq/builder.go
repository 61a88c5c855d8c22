package seq

import (
	"github.com/google/btree"

	"github.com/sarchlab/gouvm/component"
	"github.com/sarchlab/gouvm/config"
	"github.com/sarchlab/gouvm/factory"
	"github.com/sarchlab/gouvm/kernel"
	"github.com/sarchlab/gouvm/report"
)

// Builder builds sequencers.
type Builder struct {
	sched    *kernel.Scheduler
	domain   *Domain
	cfg      config.Config
	parent   component.Component
	registry *factory.Registry[Sequence]
}

// MakeBuilder creates a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{cfg: config.Default()}
}

// WithScheduler sets the scheduler the sequencer runs on.
func (b Builder) WithScheduler(s *kernel.Scheduler) Builder {
	b.sched = s
	return b
}

// WithDomain sets the domain that assigns ids. Sequencers that share
// sequences should share a domain.
func (b Builder) WithDomain(d *Domain) Builder {
	b.domain = d
	return b
}

// WithConfig sets the configuration.
func (b Builder) WithConfig(c config.Config) Builder {
	b.cfg = c
	return b
}

// WithParent sets the parent component.
func (b Builder) WithParent(p component.Component) Builder {
	b.parent = p
	return b
}

// WithFactory sets the registry used to create the default sequence.
func (b Builder) WithFactory(r *factory.Registry[Sequence]) Builder {
	b.registry = r
	return b
}

// Build creates a sequencer.
func (b Builder) Build(name string) *Sequencer {
	if b.sched == nil {
		panic("seq: sequencer needs a scheduler")
	}

	if b.domain == nil {
		b.domain = NewDomain(b.cfg.Seed)
	}

	arb, err := ParseArbitration(b.cfg.Arbitration)
	if err != nil {
		panic(err)
	}

	s := &Sequencer{
		Base:                         component.NewBase(name, b.parent),
		sched:                        b.sched,
		domain:                       b.domain,
		arbitration:                  arb,
		arbCompleted:                 make(map[int]bool),
		registered:                   btree.New(2),
		changed:                      kernel.NewNotifier(b.sched),
		lastWaitRelevantTime:         -1,
		maxZeroTimeWaitRelevantCount: b.cfg.MaxZeroTimeWaitRelevantCount,
		poundZeroCount:               b.cfg.PoundZeroCount,
		defaultPriority:              b.cfg.DefaultSequencePriority,
		responseQueueDepth:           b.cfg.ResponseQueueDepth,
		lastItemSequenceID:           -1,
		lastItemTransactionID:        -1,
		reqFIFO:                      kernel.NewMailbox[Item](b.sched, 1),
		registry:                     b.registry,
	}
	s.id = b.domain.newSequencerID()

	report.Trace("sequencer built",
		"sequencer", s.FullName(), "arbitration", arb.String())

	return s
}
