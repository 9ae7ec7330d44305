package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched tracks search-result pages successfully fetched.
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsentry_pages_fetched_total",
		Help: "The total number of search result pages fetched.",
	})
	// BranchesBlocked tracks partition branches terminated by anti-bot blocks.
	BranchesBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsentry_branches_blocked_total",
		Help: "The total number of partition branches terminated by anti-bot blocks.",
	})
	// BranchesEmpty tracks partition branches that returned no results.
	BranchesEmpty = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsentry_branches_empty_total",
		Help: "The total number of partition branches with empty result sets.",
	})
	// RecordsStored tracks records durably persisted for the first time.
	RecordsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsentry_records_stored_total",
		Help: "The total number of records accepted and persisted.",
	})
	// RecordsDuplicate tracks records rejected by the dedup ledger.
	RecordsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsentry_records_duplicate_total",
		Help: "The total number of records skipped as already ingested.",
	})
	// ImagesDownloaded tracks staged image downloads that completed.
	ImagesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsentry_images_downloaded_total",
		Help: "The total number of images downloaded to the staging area.",
	})
	// ImageFailures tracks image download tasks that were dropped on error.
	ImageFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsentry_image_failures_total",
		Help: "The total number of image download tasks that failed.",
	})
	// ImagesScanned tracks images processed by the OCR gate.
	ImagesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsentry_images_scanned_total",
		Help: "The total number of staged images processed by the OCR gate.",
	})
	// ImagesMatched tracks OCR keyword matches forwarded to the notifier.
	ImagesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsentry_images_matched_total",
		Help: "The total number of images whose recognized text matched the keyword.",
	})
	// NotifyFailures tracks notification deliveries that errored.
	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsentry_notify_failures_total",
		Help: "The total number of failed notification deliveries.",
	})
)
