package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alepar/airthings/airthings"
)

// metrics to expose to Prometheus
var (
	descHumidity    = newDesc("humidity_percent", "Humidity, %rH")
	descRadonShort  = newDesc("radon_short_term_avg_becquerels", "Radon, short term average, Bq/m3")
	descRadonLong   = newDesc("radon_long_term_avg_becquerels", "Radon, long term average, Bq/m3")
	descTemperature = newDesc("temperature_celsius", "Temperature, Celsius")
	descPressure    = newDesc("pressure_pascal", "Relative atmospheric pressure, hPa")
	descCo2         = newDesc("carbondioxide_ppm", "Carbon dioxide, ppm")
	descVoc         = newDesc("voc_ppb", "Volatile organic compounds, ppb")
)

func newDesc(name string, help string) *prometheus.Desc {
	return prometheus.NewDesc(name, help, nil, nil)
}

// readingCollector exposes a single reading. Channels the sensor could not
// measure are left out of the scrape.
type readingCollector struct {
	reading airthings.Reading
}

func (c readingCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descHumidity, descRadonShort, descRadonLong, descTemperature, descPressure, descCo2, descVoc,
	} {
		ch <- d
	}
}

func (c readingCollector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(desc *prometheus.Desc, value float64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value)
	}

	gauge(descHumidity, c.reading.Humidity)
	gauge(descRadonShort, float64(c.reading.RadonShortTermAvg))
	gauge(descRadonLong, float64(c.reading.RadonLongTermAvg))
	gauge(descTemperature, c.reading.Temperature)
	gauge(descPressure, c.reading.Pressure)
	if c.reading.Co2 != nil {
		gauge(descCo2, float64(*c.reading.Co2))
	}
	if c.reading.Voc != nil {
		gauge(descVoc, float64(*c.reading.Voc))
	}
}
