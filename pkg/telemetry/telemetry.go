// Package telemetry exposes prometheus counters for the delivery and media
// pipelines plus the /metrics HTTP handler.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatpipe_messages_sent_total",
		Help: "Messages confirmed by the server, by wire kind.",
	}, []string{"kind"})

	MessagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_messages_failed_total",
		Help: "Send attempts that ended in a failed local record.",
	})

	MessagesResent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_messages_resent_total",
		Help: "User-triggered resends of previously failed messages.",
	})

	AssetUploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_asset_uploads_total",
		Help: "Successful media asset uploads.",
	})

	AssetUploadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_asset_upload_failures_total",
		Help: "Media asset uploads that failed before the message send.",
	})

	AssetDownloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_asset_downloads_total",
		Help: "Media asset thumbnails fetched and resolved to LOADED.",
	})

	AssetDownloadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpipe_asset_download_failures_total",
		Help: "Per-asset download or decrypt failures resolved to ERROR.",
	})
)

// Handler returns the prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
