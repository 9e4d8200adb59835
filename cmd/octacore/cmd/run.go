package cmd

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/octacore/cores"
	"github.com/sarchlab/octacore/intdist"
	"github.com/sarchlab/octacore/monitoring"
	"github.com/sarchlab/octacore/platform"
	"github.com/sarchlab/octacore/syncunit"
	"github.com/sarchlab/octacore/tracing"
)

var (
	flagNumOps      int
	flagSeed        int64
	flagMonitor     bool
	flagMonitorPort int
)

func init() {
	defaultPort, _ := strconv.Atoi(envOr("OCTACORE_MONITOR_PORT", "0"))

	runCmd.Flags().IntVar(&flagNumOps, "ops", 1000,
		"number of memory operations per core")
	runCmd.Flags().Int64Var(&flagSeed, "seed", 1,
		"seed of the workload generator")
	runCmd.Flags().BoolVar(&flagMonitor, "monitor", false,
		"start the monitoring server")
	runCmd.Flags().IntVar(&flagMonitorPort, "monitor-port", defaultPort,
		"port of the monitoring server")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a randomized workload over the eight-core system",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runWorkload()
	},
}

func runWorkload() error {
	p := platform.MakeBuilder().
		WithSyncConfig(func(b syncunit.Builder) syncunit.Builder {
			return b.
				WithMailbox(0, 4).
				WithSemaphore(0, 1, 1).
				WithBarrier(0, []int{0, 1, 2, 3, 4, 5, 6, 7})
		}).
		WithInterruptConfig(func(b intdist.Builder) intdist.Builder {
			return b.
				WithSource(intdist.Source{
					ID: 1, Priority: 10, Affinity: 0, CanMove: true}).
				WithSource(intdist.Source{
					ID: 2, Priority: 40, Affinity: 4, CanMove: true})
		}).
		Build("Octacore")

	if flagMonitor {
		monitor := monitoring.NewMonitor()
		if flagMonitorPort > 0 {
			monitor.WithPortNumber(flagMonitorPort)
		}
		monitor.RegisterEngine(p.Engine)
		monitor.RegisterHealthLog(p.HealthLog)
		monitor.StartServer()
	}

	collector := tracing.NewStateChangeCollector(p.Directory)

	rng := rand.New(rand.NewSource(flagSeed))
	for _, core := range p.Cores {
		core.SetScript(randomScript(rng, flagNumOps))
	}

	_ = p.IntDist.Post(1)
	_ = p.IntDist.Post(2)
	p.IntDist.Dispatch()
	p.IntDist.Dispatch()

	if err := p.Run(); err != nil {
		return err
	}

	completed := 0
	for _, core := range p.Cores {
		completed += len(core.Records())
	}

	fmt.Printf("completed %d operations across %d cores\n",
		completed, len(p.Cores))
	fmt.Printf("observed %d coherence transitions\n",
		len(collector.Changes()))
	fmt.Printf("health conditions reported: %d\n",
		len(p.HealthLog.Errors()))

	return nil
}

// randomScript generates reads and writes over an 8-line shared region.
func randomScript(rng *rand.Rand, numOps int) []cores.Op {
	const lineSize = 64
	const numLines = 8

	script := make([]cores.Op, 0, numOps)
	for i := 0; i < numOps; i++ {
		addr := uint64(rng.Intn(numLines)) * lineSize

		if rng.Intn(2) == 0 {
			script = append(script, cores.Op{
				Kind: cores.OpRead,
				Addr: addr,
				Size: 8,
			})
			continue
		}

		data := make([]byte, 8)
		rng.Read(data)
		script = append(script, cores.Op{
			Kind: cores.OpWrite,
			Addr: addr,
			Data: data,
		})
	}

	return script
}
