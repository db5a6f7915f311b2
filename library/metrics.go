package library

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments an Engine. A nil *Metrics records nothing.
type Metrics struct {
	commands     *prometheus.CounterVec
	outstanding  prometheus.Gauge
	catalogItems prometheus.Gauge
}

// NewMetrics creates the lending collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_commands_total",
				Help: "Total number of engine commands by result",
			},
			[]string{"command", "result"},
		),
		outstanding: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lending_active_loan_quantity",
				Help: "Copies currently out on loan",
			},
		),
		catalogItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lending_catalog_items",
				Help: "Number of items in the catalog",
			},
		),
	}
	for _, c := range []prometheus.Collector{m.commands, m.outstanding, m.catalogItems} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) command(name string, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, errorKind(err)).Inc()
}

func (m *Metrics) observe(st *state) {
	if m == nil {
		return
	}
	m.outstanding.Set(float64(outstanding(st)))
	m.catalogItems.Set(float64(len(st.items)))
}
