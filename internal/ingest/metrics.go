package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/starford/gleaner/internal/models"
)

var (
	metricRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gleaner",
		Name:      "records_stored_total",
		Help:      "Records appended to the store, by kind.",
	}, []string{"kind"})
	metricDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gleaner",
		Name:      "documents_written_total",
		Help:      "Rendered document writes, by result.",
	}, []string{"result"})
)

func recordCaptured(k models.Kind) { metricRecords.WithLabelValues(string(k)).Inc() }

func recordDocument(result string) { metricDocuments.WithLabelValues(result).Inc() }
