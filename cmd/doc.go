// Package cmd defines the noticewatch CLI.
//
// Architecture overview:
//   - run: one pass of the pipeline. History is loaded from the configured backend (file, GCS object or
//     Postgres table), each source is visited category by category with a random politeness pause between
//     fetches, records are judged new or changed against history, history is saved when the delta is
//     non-empty, and the delta goes to the notifier (log, memory or Pub/Sub). --dry-run keeps history
//     read-only and logs the delta.
//   - serve: the same pipeline on a ticker with overlapping ticks skipped, plus an HTTP server exposing
//     /healthz, /readyz, /metrics and /v1/runs/last.
//   - Fetching: plain targets use a Colly collector; browser targets use a Chromedp session per attempt with
//     bounded retries and exponential backoff on 403s and session failures.
//
// Operational notes:
//   - A history load failure aborts the run before any fetch; a save failure suppresses notification. Both
//     exit non-zero from run.
//   - One-shot runs push their metrics to a Pushgateway when metrics.pushgateway_url is set.
//   - Configure with a file (--config) or NOTICEWATCH_* env vars, e.g. NOTICEWATCH_HISTORY_BACKEND=gcs,
//     NOTICEWATCH_HISTORY_GCS_BUCKET, NOTICEWATCH_NOTIFY_BACKEND=pubsub, NOTICEWATCH_POLITENESS_MIN_DELAY=3s.
package cmd
