package eventbus

import "github.com/prometheus/client_golang/prometheus"

// statsCollector читает Stats шины в момент scrape
type statsCollector struct {
	bus       EventBus
	published *prometheus.Desc
	consumed  *prometheus.Desc
	dropped   *prometheus.Desc
	inflight  *prometheus.Desc
}

// RegisterMetrics публикует счётчики шины как метрики voxel_eventbus_*
func RegisterMetrics(bus EventBus, reg prometheus.Registerer) error {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("voxel", "eventbus", name), help, nil, nil)
	}
	return reg.Register(&statsCollector{
		bus:       bus,
		published: desc("published_total", "Событий принято шиной."),
		consumed:  desc("consumed_total", "Событий обработано подписчиками."),
		dropped:   desc("dropped_total", "Событий потеряно при переполнении."),
		inflight:  desc("inflight", "Событий ждёт в общем буфере."),
	})
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.consumed
	ch <- c.dropped
	ch <- c.inflight
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.bus.Metrics()
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.Published))
	ch <- prometheus.MustNewConstMetric(c.consumed, prometheus.CounterValue, float64(s.Consumed))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(s.InFlight))
}
