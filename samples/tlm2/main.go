package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/gouvm/component"
	"github.com/sarchlab/gouvm/config"
	"github.com/sarchlab/gouvm/event"
	"github.com/sarchlab/gouvm/kernel"
	"github.com/sarchlab/gouvm/recording"
	"github.com/sarchlab/gouvm/report"
	"github.com/sarchlab/gouvm/tlm2"
	valgen "github.com/sarchlab/gouvm/util"
)

var (
	configFile = flag.String("config", "", "YAML run configuration.")
	dbFile     = flag.String("db", "", "Records socket hooks into this SQLite file.")
	useMonitor = flag.Bool("monitor", false, "Starts the akita monitor.")
	pattern    = flag.String("pattern", "inc", "Write data: const, inc, walk or random.")
)

func makeGen(cfg config.Config) func() uint32 {
	switch *pattern {
	case "const":
		return valgen.MakeConstGen(0xa5a5a5a5)
	case "inc":
		return valgen.MakeIncreasingGen(0x1000)
	case "walk":
		return valgen.MakeWalkingOnesGen()
	case "random":
		return valgen.MakeRandomGen(cfg.Seed)
	default:
		log.Fatalf("unknown pattern %q", *pattern)
		return nil
	}
}

// memory is a target with a fixed access latency. It serves both the
// blocking and the non-blocking path.
type memory struct {
	*component.Base
	sched   *kernel.Scheduler
	data    []byte
	latency float64
	b       *tlm2.Socket
	nb      *tlm2.Socket
}

func newMemory(name string, parent component.Component, sched *kernel.Scheduler) *memory {
	m := &memory{
		Base:    component.NewBase(name, parent),
		sched:   sched,
		data:    make([]byte, 256),
		latency: 10,
	}
	m.b = tlm2.NewBTargetSocket("b_target", m, m)
	m.nb = tlm2.NewNBTargetSocket("nb_target", m, m)

	return m
}

func (m *memory) access(t *tlm2.GenericPayload) {
	end := t.Address + uint64(t.Length)
	if end > uint64(len(m.data)) {
		t.Response = tlm2.ResponseAddressError
		return
	}

	switch t.Command {
	case tlm2.CommandRead:
		copy(t.Data, m.data[t.Address:end])
	case tlm2.CommandWrite:
		for i := uint32(0); i < t.Length; i++ {
			if t.ByteEnabled(int(i)) {
				m.data[t.Address+uint64(i)] = t.Data[i]
			}
		}
	}

	t.Response = tlm2.ResponseOK
}

func (m *memory) BTransport(t *tlm2.GenericPayload, delay *tlm2.Time) {
	m.access(t)
	delay.Incr(m.latency, 1, 1e-9)
}

func (m *memory) NBTransportFw(
	t *tlm2.GenericPayload,
	p *tlm2.Phase,
	delay *tlm2.Time,
) tlm2.Sync {
	if *p != tlm2.BeginReq {
		return tlm2.Completed
	}

	*p = tlm2.EndReq

	m.sched.Fork(m.FullName()+".respond", func() {
		m.sched.Delay(sim.VTimeInSec(m.latency * 1e-9))
		m.access(t)

		phase := tlm2.BeginResp
		m.nb.NBTransportBw(t, &phase, tlm2.NewTime("bw_delay", 0))
	})

	return tlm2.Updated
}

// bus forwards through its pass-through socket to the memory. Initiators
// hold its grant for the whole transfer, so only one uses it at a time.
type bus struct {
	*component.Base
	target *tlm2.Socket
	grant  *kernel.Semaphore
}

func newBus(name string, parent component.Component, sched *kernel.Scheduler) *bus {
	b := &bus{
		Base:  component.NewBase(name, parent),
		grant: kernel.NewSemaphore(sched, 1),
	}
	b.target = tlm2.NewBPassthroughTargetSocket("target", b)

	return b
}

// cpu issues blocking writes over the bus and non-blocking reads straight
// to the memory.
type cpu struct {
	*component.Base
	sched *kernel.Scheduler
	bus   *bus
	b     *tlm2.Socket
	nb    *tlm2.Socket
	done  *event.Event[*tlm2.GenericPayload]
}

func newCPU(
	name string,
	parent component.Component,
	sched *kernel.Scheduler,
	shared *bus,
) *cpu {
	c := &cpu{
		Base:  component.NewBase(name, parent),
		sched: sched,
		bus:   shared,
		done:  event.New[*tlm2.GenericPayload](name+".done", sched),
	}
	c.b = tlm2.NewBInitiatorSocket("b_initiator", c)
	c.nb = tlm2.NewNBInitiatorSocket("nb_initiator", c, c)

	return c
}

func (c *cpu) NBTransportBw(
	t *tlm2.GenericPayload,
	p *tlm2.Phase,
	delay *tlm2.Time,
) tlm2.Sync {
	if *p == tlm2.BeginResp {
		c.done.Trigger(t)
		return tlm2.Completed
	}

	return tlm2.Accepted
}

func (c *cpu) write(addr uint64, v uint32) {
	t := tlm2.NewGenericPayload(fmt.Sprintf("wr_%x", addr))
	t.SetWrite()
	t.Address = addr
	t.Data = binary.LittleEndian.AppendUint32(nil, v)
	t.Length = 4
	t.StreamingWidth = 4

	c.bus.grant.Get(1)

	delay := tlm2.NewTime("delay", 0)
	c.b.BTransport(t, delay)
	c.sched.Delay(sim.VTimeInSec(delay.AbsTime(1)))

	c.bus.grant.Put(1)

	fmt.Printf("%6.1fns  %-4s %s\n", float64(c.sched.Now())*1e9, c.Name(), t)
}

func (c *cpu) read(addr uint64) (uint32, tlm2.ResponseStatus) {
	t := tlm2.NewGenericPayload(fmt.Sprintf("rd_%x", addr))
	t.SetRead()
	t.Address = addr
	t.Data = make([]byte, 4)
	t.Length = 4
	t.StreamingWidth = 4

	phase := tlm2.BeginReq
	if c.nb.NBTransportFw(t, &phase, tlm2.NewTime("delay", 0)) != tlm2.Completed {
		c.done.WaitTrigger()
		c.done.Reset(false)
	}

	fmt.Printf("%6.1fns  %-4s %s\n", float64(c.sched.Now())*1e9, c.Name(), t)

	if !t.IsResponseOK() {
		return 0, t.Response
	}

	return binary.LittleEndian.Uint32(t.Data), t.Response
}

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error

		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatal(err)
		}
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		log.Fatal(err)
	}

	tlm2.SetTimeResolution(cfg.TimeResolution)

	engine := sim.NewSerialEngine()
	sched := kernel.NewScheduler(engine)

	srv := report.NewServer(report.NewConsoleHandler(os.Stdout, level))
	srv.SetClock(sched)
	report.SetDefault(srv)

	if *useMonitor {
		m := monitoring.NewMonitor()
		m.RegisterEngine(engine)
		m.StartServer()
	}

	top := component.NewBase("top", nil)
	b := newBus("bus", top, sched)
	c := newCPU("cpu", top, sched, b)
	dma := newCPU("dma", top, sched, b)
	mem := newMemory("mem", top, sched)

	for _, conn := range [][2]*tlm2.Socket{
		{c.b, b.target},
		{dma.b, b.target},
		{b.target, mem.b},
		{c.nb, mem.nb},
	} {
		if err := conn[0].Connect(conn[1]); err != nil {
			atexit.Fatal(err)
		}
	}

	checker := tlm2.NewProtocolChecker("top.checker")
	mem.nb.AcceptHook(checker)
	c.nb.AcceptHook(checker)

	if *dbFile != "" {
		rec, err := recording.NewSQLiteRecorder(*dbFile, sched)
		if err != nil {
			log.Fatal(err)
		}

		atexit.Register(func() { rec.Close() })

		for _, s := range []*tlm2.Socket{mem.b, mem.nb, c.nb} {
			s.AcceptHook(rec)
		}
	}

	var want, got []uint32

	gen := makeGen(cfg)

	sched.Fork("cpu", func() {
		for i := uint64(0); i < 4; i++ {
			v := gen()
			want = append(want, v)
			c.write(i*4, v)
		}

		for i := uint64(0); i < 4; i++ {
			v, _ := c.read(i * 4)
			got = append(got, v)
		}

		c.read(0x400)
	})

	sched.Fork("dma", func() {
		for i := uint64(0); i < 4; i++ {
			dma.write(0x80+i*4, gen())
		}
	})

	if err := sched.Run(); err != nil {
		atexit.Fatal(err)
	}

	fmt.Printf("wrote %x, read back %x\n", want, got)
	fmt.Printf("%d transactions completed, %d protocol violations\n",
		checker.Completed(), checker.Violations())

	atexit.Exit(0)
}
