// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package metrics

import (
	"dapp-bootstrap/core"

	"github.com/huandu/xstrings"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "dapp_bootstrap"

// Bootstrap status gauge values.
const (
	StatusIdle         = 0
	StatusInitializing = 1
	StatusInitialized  = 2
	StatusFailed       = -1
)

type MetricManager struct {
	Signals *prometheus.CounterVec
	Status  prometheus.Gauge
	Block   prometheus.Gauge
}

func NewMetricManager(reg prometheus.Registerer) (*MetricManager, error) {
	m := &MetricManager{
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "signals_total",
			Help:      "dispatched signals by kind",
		}, []string{"kind"}),
		Status: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "status",
			Help:      "bootstrap status: 0 idle, 1 initializing, 2 initialized, -1 failed",
		}),
		Block: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "current_block",
			Help:      "latest block seen by the block observer",
		}),
	}
	for _, c := range []prometheus.Collector{m.Signals, m.Status, m.Block} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Middleware records every successfully reduced signal.
func (m *MetricManager) Middleware() core.Middleware {
	return func(api core.StoreAPI) func(next core.Dispatch) core.Dispatch {
		return func(next core.Dispatch) core.Dispatch {
			return func(sig core.Signal) error {
				if err := next(sig); err != nil {
					return err
				}
				m.Signals.WithLabelValues(Label(sig.Kind())).Inc()
				switch sig := sig.(type) {
				case core.Initializing:
					m.Status.Set(StatusInitializing)
				case core.Initialized:
					m.Status.Set(StatusInitialized)
				case core.Failed:
					m.Status.Set(StatusFailed)
				case core.BlockReceived:
					m.Block.Set(float64(sig.Number))
				}
				return nil
			}
		}
	}
}

// Label turns a signal kind into a metric label, e.g. start_block_polling.
func Label(kind core.Kind) string {
	return xstrings.ToSnakeCase(string(kind))
}
