package metrics

import "github.com/kilianp07/enrollmail/core/factory"

var sinkRegistry = factory.NewRegistry[ScheduleSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[ScheduleSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSink creates a ScheduleSink from the provided configuration.
func NewMetricsSink(cfgs []factory.ModuleConfig) (ScheduleSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]ScheduleSink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}
