package core

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/JonMunkholm/menusync/internal/logging"
)

// Trigger records what started a job.
type Trigger string

const (
	TriggerUpload   Trigger = "upload"
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerCatchUp  Trigger = "catch_up"
)

// JobRequest describes one sync run.
//
// Uploads carry their bytes in Data and the original Filename. Scheduled and
// manual runs leave Data nil; the bytes are fetched from Source.
type JobRequest struct {
	TenantID int64
	SyncType SyncType
	Source   string
	Filename string
	Data     []byte
	Trigger  Trigger
}

// Slot returns the schedule slot the request belongs to.
func (r JobRequest) Slot() SlotKey {
	return SlotKey{TenantID: r.TenantID, SyncType: r.SyncType}
}

func (r JobRequest) displayName() string {
	if r.Filename != "" {
		return r.Filename
	}
	return path.Base(r.Source)
}

// SyncerConfig configures a Syncer.
type SyncerConfig struct {
	MaxFileSize int64         // bytes; 0 disables the check
	JobTimeout  time.Duration // 0 means no deadline beyond the caller's
	Parse       ParseOptions
}

// Syncer runs the parse, normalize and reconcile pipeline for one request.
// It holds no per-job state and is safe for concurrent use.
type Syncer struct {
	fetcher    SourceFetcher
	reconciler *Reconciler
	cfg        SyncerConfig
}

// NewSyncer creates a Syncer. fetcher may be nil when only uploads are run.
func NewSyncer(fetcher SourceFetcher, reconciler *Reconciler, cfg SyncerConfig) *Syncer {
	return &Syncer{fetcher: fetcher, reconciler: reconciler, cfg: cfg}
}

// Run executes the request and always returns a result; failures are
// reported through SyncResult.Error, never as a panic or error return.
func (s *Syncer) Run(ctx context.Context, req JobRequest) SyncResult {
	log := logging.FromContext(ctx)
	start := time.Now()

	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	stats, rowErrs, err := s.run(ctx, req)
	if err != nil {
		log.Warn("sync failed",
			"kind", KindOf(err).String(),
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		result := Failed("Sync failed", UserFacingError(err))
		var fatal *FatalParseError
		if errors.As(err, &fatal) {
			result.RowErrors = []ParseError{fatal.ParseError}
		}
		return result
	}

	log.Info("sync completed",
		"created", stats.Created,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"errors", stats.Errors,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	msg := fmt.Sprintf("Synced %s: %d created, %d updated, %d errors",
		req.displayName(), stats.Created, stats.Updated, stats.Errors)
	result := Succeeded(stats, msg)
	if len(rowErrs) > MaxReportedRowErrors {
		rowErrs = rowErrs[:MaxReportedRowErrors]
	}
	result.RowErrors = rowErrs
	return result
}

func (s *Syncer) run(ctx context.Context, req JobRequest) (SyncStats, []ParseError, error) {
	if req.SyncType == SyncTypeSheets {
		return SyncStats{}, nil, inputError("sheets sync", ErrNotImplemented)
	}

	data := req.Data
	if data == nil {
		if s.fetcher == nil {
			return SyncStats{}, nil, fmt.Errorf("no source fetcher configured")
		}
		var err error
		data, err = s.fetcher.Fetch(ctx, req.Source)
		if err != nil {
			return SyncStats{}, nil, err
		}
	}

	if len(data) == 0 {
		return SyncStats{}, nil, inputError("read source", ErrEmptyFile)
	}
	if s.cfg.MaxFileSize > 0 && int64(len(data)) > s.cfg.MaxFileSize {
		return SyncStats{}, nil, inputError("read source",
			fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(data), s.cfg.MaxFileSize))
	}

	name := req.Filename
	if name == "" {
		name = req.Source
	}
	format, err := FormatFromFilename(name)
	if err != nil {
		return SyncStats{}, nil, err
	}
	parser, err := ParserFor(format)
	if err != nil {
		return SyncStats{}, nil, err
	}

	rows, parseErrs, err := parser.Parse(ctx, data, s.cfg.Parse)
	if err != nil {
		if KindOf(err) != KindInput {
			err = inputError("parse "+string(format), err)
		}
		return SyncStats{}, nil, err
	}

	records, normErrs := NormalizeAll(rows)
	rowErrs := append(parseErrs, normErrs...)

	logging.FromContext(ctx).Debug("source parsed",
		"format", format,
		"rows", len(rows),
		"records", len(records),
		"row_errors", len(rowErrs),
	)

	stats, err := s.reconciler.Reconcile(ctx, req.TenantID, records)
	if err != nil {
		return SyncStats{}, nil, err
	}
	stats.Errors = len(rowErrs)
	return stats, rowErrs, nil
}
