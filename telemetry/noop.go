package telemetry

import (
	"io"

	"github.com/budgetlog/logbook/output"
)

// noOpCollector is a collector that does nothing.
type noOpCollector struct{}

func (noOpCollector) Start(name string) Timer {
	return noOpTimer{}
}

func (noOpCollector) Report(w io.Writer, styles *output.Styles) {}

type noOpTimer struct{}

func (noOpTimer) End() {}

func (noOpTimer) Child(name string) Timer {
	return noOpTimer{}
}

func (noOpTimer) Count(n int) {}
