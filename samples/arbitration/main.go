package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/gouvm/config"
	"github.com/sarchlab/gouvm/kernel"
	"github.com/sarchlab/gouvm/monitor"
	"github.com/sarchlab/gouvm/recording"
	"github.com/sarchlab/gouvm/report"
	"github.com/sarchlab/gouvm/seq"
)

var (
	configFile  = flag.String("config", "", "YAML run configuration.")
	arbitration = flag.String("arb", "", "Overrides the arbitration mode.")
	numItems    = flag.Int("n", 1000, "Items sent by each sequence.")
	dbFile      = flag.String("db", "", "Records sequencer hooks into this SQLite file.")
	httpAddr    = flag.String("http", "", "Serves sequencer statistics on this address.")
	useMonitor  = flag.Bool("monitor", false, "Starts the akita monitor.")
)

type packet struct {
	*seq.ItemMeta
	src string
}

type source struct {
	*seq.SequenceBase
	n int
}

func newSource(name string, n int) *source {
	s := &source{n: n}
	s.SequenceBase = seq.NewSequenceBase(name, s)

	return s
}

func (s *source) Body() {
	for i := 0; i < s.n; i++ {
		s.Do(&packet{ItemMeta: seq.NewItemMeta("pkt"), src: s.Name()})
	}
}

func loadConfig() config.Config {
	cfg := config.Default()

	if *configFile != "" {
		var err error

		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatal(err)
		}
	}

	if *arbitration != "" {
		cfg.Arbitration = *arbitration
	}

	return cfg
}

func setupReport(cfg config.Config, clock sim.TimeTeller) {
	level, err := cfg.SlogLevel()
	if err != nil {
		log.Fatal(err)
	}

	srv := report.NewServer(report.NewConsoleHandler(os.Stdout, level))
	srv.SetClock(clock)
	report.SetDefault(srv)
}

func main() {
	flag.Parse()

	cfg := loadConfig()
	engine := sim.NewSerialEngine()
	sched := kernel.NewScheduler(engine)
	setupReport(cfg, sched)

	if *useMonitor {
		m := monitoring.NewMonitor()
		m.RegisterEngine(engine)
		m.StartServer()
	}

	sqr := seq.MakeBuilder().
		WithScheduler(sched).
		WithConfig(cfg).
		Build("sqr")

	if *dbFile != "" {
		rec, err := recording.NewSQLiteRecorder(*dbFile, sched)
		if err != nil {
			log.Fatal(err)
		}

		atexit.Register(func() { rec.Close() })
		sqr.AcceptHook(rec)
	}

	if *httpAddr != "" {
		srv := monitor.NewServer()
		srv.Register(sqr)

		go func() {
			slog.Error("monitor server stopped", "err", srv.ListenAndServe(*httpAddr))
		}()
	}

	priorities := map[string]int{"low": 100, "mid": 200, "high": 300}
	granted := make(map[string]int)

	for _, name := range []string{"low", "mid", "high"} {
		s := newSource(name, *numItems)
		p := priorities[name]

		sched.Fork("start_"+name, func() { s.Start(sqr, nil, p, true) })
	}

	total := 3 * *numItems

	sched.Fork("driver", func() {
		for i := 0; i < total; i++ {
			pkt := sqr.GetNextItem().(*packet)
			granted[pkt.src]++

			sched.Delay(1e-9)
			sqr.ItemDone(nil)
		}
	})

	if err := sched.Run(); err != nil {
		atexit.Fatal(err)
	}

	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Grants under %s", sqr.Arbitration()))
	t.AppendHeader(table.Row{"Sequence", "Priority", "Grants", "Share"})

	for _, name := range []string{"low", "mid", "high"} {
		t.AppendRow(table.Row{
			name, priorities[name], granted[name],
			fmt.Sprintf("%.1f%%", 100*float64(granted[name])/float64(total)),
		})
	}

	fmt.Println(t.Render())
	fmt.Printf("Simulation finished at %.3e s\n", float64(sched.Now()))

	atexit.Exit(0)
}
