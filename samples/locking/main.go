package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/gouvm/config"
	"github.com/sarchlab/gouvm/kernel"
	"github.com/sarchlab/gouvm/recording"
	"github.com/sarchlab/gouvm/report"
	"github.com/sarchlab/gouvm/seq"
)

var (
	configFile = flag.String("config", "", "YAML run configuration.")
	useMonitor = flag.Bool("monitor", false, "Starts the akita monitor.")
)

type word struct {
	*seq.ItemMeta
	value int
}

// stream sends n words, optionally under a lock or a grab.
type stream struct {
	*seq.SequenceBase
	n     int
	mode  string
	delay sim.VTimeInSec
	sched *kernel.Scheduler
}

func newStream(
	name string,
	sched *kernel.Scheduler,
	n int,
	mode string,
	delay sim.VTimeInSec,
) *stream {
	s := &stream{n: n, mode: mode, delay: delay, sched: sched}
	s.SequenceBase = seq.NewSequenceBase(name, s)

	return s
}

func (s *stream) Body() {
	s.sched.Delay(s.delay)

	switch s.mode {
	case "lock":
		s.Lock(nil)
		defer s.Unlock(nil)
	case "grab":
		s.Grab(nil)
		defer s.Ungrab(nil)
	}

	for i := 0; i < s.n; i++ {
		s.Do(&word{ItemMeta: seq.NewItemMeta("w"), value: i})
	}
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

	sqr := seq.MakeBuilder().
		WithScheduler(sched).
		WithConfig(cfg).
		Build("sqr")

	rec := recording.NewTableRecorder("Lock activity", sched)
	sqr.AcceptHook(rec)

	streams := []*stream{
		newStream("plain", sched, 6, "", 0),
		newStream("locker", sched, 3, "lock", 1.5e-9),
		newStream("grabber", sched, 2, "grab", 2.5e-9),
	}

	for _, s := range streams {
		sched.Fork("start_"+s.Name(), func() { s.Start(sqr, nil, -1, true) })
	}

	sched.Fork("driver", func() {
		for i := 0; i < 11; i++ {
			w := sqr.GetNextItem().(*word)
			fmt.Printf("%5.1fns  %-8s word %d\n",
				float64(sched.Now())*1e9, w.ParentSequence().Name(), w.value)

			sched.Delay(1e-9)
			sqr.ItemDone(nil)
		}
	})

	if err := sched.Run(); err != nil {
		atexit.Fatal(err)
	}

	fmt.Println(rec.Render())
	fmt.Printf("%d lock grants, %d item grants\n",
		rec.Count(seq.HookPosLockGrant.Name), rec.Count(seq.HookPosGrant.Name))

	atexit.Exit(0)
}
