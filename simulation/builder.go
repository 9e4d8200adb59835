package simulation

import (
	"github.com/rs/xid"

	"github.com/sarchlab/octacore/datarecording"
	"github.com/sarchlab/octacore/health"
	"github.com/sarchlab/octacore/monitoring"
	"github.com/sarchlab/octacore/sim"
	"github.com/sarchlab/octacore/tracing"
)

// Builder can build simulations.
type Builder struct {
	monitorOn      bool
	monitorPort    int
	outputFileName string
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		monitorOn: true,
	}
}

// WithoutMonitoring disables the monitoring server.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port of the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithOutputFileName sets the output file name of the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		compNameIndex: make(map[string]int),
		portNameIndex: make(map[string]int),
	}

	s.id = xid.New().String()
	s.engine = sim.NewSerialEngine()
	s.healthLog = health.NewLog()

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "octacore_sim_" + s.id
	}
	s.dataRecorder = datarecording.New(outputPath)

	s.visTracer = tracing.NewDBTracer(s.engine, s.dataRecorder)

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterEngine(s.engine)
		s.monitor.RegisterHealthLog(s.healthLog)
		s.monitor.StartServer()
	}

	return s
}
