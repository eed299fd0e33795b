// Package gc sweeps abandoned tmp blobs: artifacts a worker wrote but
// never got to rename or delete (a crash between Write and the commit
// round trip, or a lost Cancel). Grounded on the teacher's
// coordination/janitor.go ticker-driven sweep shape, scheduled here with
// github.com/robfig/cron/v3 rather than a bare time.Ticker — the dep the
// rest of the retrieval pack's scheduler-adjacent services (e.g. the
// minisource and goclaw scheduler packages) reach for when a sweep needs a
// cron expression rather than a fixed interval.
package gc

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/AmiBuch/flowmr/internal/blobstore"
)

// Janitor periodically deletes tmp blobs older than maxAge under a set of
// root prefixes (spec.md 6, tmp_gc_age).
type Janitor struct {
	blobs   blobstore.Store
	prefixes []string
	maxAge  time.Duration
	log     *logrus.Entry
	cron    *cron.Cron
}

// New constructs a Janitor that scans prefixes for blobs whose path
// contains ".tmp." and whose ModTime is older than maxAge.
func New(blobs blobstore.Store, prefixes []string, maxAge time.Duration, log *logrus.Entry) *Janitor {
	return &Janitor{
		blobs:    blobs,
		prefixes: prefixes,
		maxAge:   maxAge,
		log:      log,
		cron:     cron.New(),
	}
}

// Start schedules a sweep on spec and runs it immediately once. spec is a
// standard 5-field cron expression (e.g. "*/5 * * * *" for every 5
// minutes); an empty spec defaults to every minute.
func (j *Janitor) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = "* * * * *"
	}
	if _, err := j.cron.AddFunc(spec, j.sweepOnce); err != nil {
		return err
	}
	j.cron.Start()
	go j.sweepOnce()
	go func() {
		<-ctx.Done()
		<-j.cron.Stop().Done()
	}()
	return nil
}

func (j *Janitor) sweepOnce() {
	ctx := context.Background()
	now := time.Now()
	for _, prefix := range j.prefixes {
		paths, err := j.blobs.List(ctx, prefix)
		if err != nil {
			j.log.WithError(err).WithField("prefix", prefix).Warn("gc list failed")
			continue
		}
		for _, path := range paths {
			if !strings.Contains(path, ".tmp.") {
				continue
			}
			modUnix, err := j.blobs.ModTime(ctx, path)
			if err != nil {
				continue
			}
			age := now.Sub(time.Unix(modUnix, 0))
			if age < j.maxAge {
				continue
			}
			if err := j.blobs.Delete(ctx, path); err != nil {
				j.log.WithError(err).WithField("path", path).Warn("gc delete failed")
				continue
			}
			j.log.WithFields(logrus.Fields{"path": path, "age": age}).Info("gc removed abandoned tmp blob")
		}
	}
}
