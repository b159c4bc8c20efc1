// Package serverstate implements the ServerState Facade (component C10):
// the single long-lived object that owns every cache, the geo-ip table,
// the scheduler, and the DB connection pool, for the lifetime of the
// server process.
//
// Construction follows the teacher's cmd/server/main.go wiring order
// (encryption, then DB, then the dependent subsystems in sequence),
// generalized from the teacher's repository/auth/agent-manager/scheduler
// chain into this server's geoip -> session -> refdata -> i18n ->
// postcache -> searchindex -> wasmcache -> visitorboard -> sysstats ->
// scheduler chain.
package serverstate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cyhdev/backend/internal/geoip"
	"github.com/cyhdev/backend/internal/i18n"
	"github.com/cyhdev/backend/internal/logcompress"
	"github.com/cyhdev/backend/internal/postcache"
	"github.com/cyhdev/backend/internal/refdata"
	"github.com/cyhdev/backend/internal/scheduler"
	"github.com/cyhdev/backend/internal/searchindex"
	"github.com/cyhdev/backend/internal/session"
	"github.com/cyhdev/backend/internal/sysstats"
	"github.com/cyhdev/backend/internal/visitorboard"
	"github.com/cyhdev/backend/internal/wasmcache"
	"github.com/cyhdev/backend/internal/workerpool"
)

// ServerState is the process-lifetime facade wiring every in-process
// subsystem together. Handlers read caches directly off this struct;
// writes go to DB first, then notify the affected cache.
type ServerState struct {
	DB     *gorm.DB
	Logger *zap.Logger

	GeoIP        *geoip.Database
	Sessions     *session.Store
	RefData      *refdata.Cache
	I18n         *i18n.Cache
	Posts        *postcache.Cache
	SearchIndex  *searchindex.Index
	WasmBundles  *wasmcache.Cache
	VisitorBoard *visitorboard.Board
	SysStats     *sysstats.Ring
	Workers      *workerpool.Pool

	cancelScheduler context.CancelFunc
}

// Options configures New.
type Options struct {
	DB              *gorm.DB
	Logger          *zap.Logger
	SearchIndexPath string
	WorkerPoolSize  int
}

// New wires every component in startup order: the geo-ip table (an
// embedded, process-lifetime constant), the session store (empty until
// sessions are created), the reference-data/i18n/post caches and search
// index (loaded from the DB), the wasm cache (empty until bundles are
// put), the visitor board (loaded from the DB), and the system-stats ring (empty until the scheduler starts
// pushing samples).
func New(ctx context.Context, opts Options) (*ServerState, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("serverstate: DB is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("serverstate: Logger is required")
	}
	if opts.SearchIndexPath == "" {
		opts.SearchIndexPath = "./data/search_index"
	}
	if opts.WorkerPoolSize <= 0 {
		opts.WorkerPoolSize = 8
	}

	geoDB, err := geoip.Load()
	if err != nil {
		return nil, fmt.Errorf("serverstate: failed to load geo-ip database: %w", err)
	}

	sessions := session.New()

	refData := refdata.New(opts.DB)
	if err := refData.SyncCountryData(ctx); err != nil {
		return nil, fmt.Errorf("serverstate: failed to sync reference data: %w", err)
	}

	i18nCache := i18n.New(opts.DB)
	if _, err := i18nCache.SyncI18n(ctx); err != nil {
		return nil, fmt.Errorf("serverstate: failed to sync i18n cache: %w", err)
	}

	posts := postcache.New(opts.DB)
	if err := posts.SyncPosts(ctx); err != nil {
		return nil, fmt.Errorf("serverstate: failed to sync post cache: %w", err)
	}

	searchIdx, err := searchindex.Open(opts.SearchIndexPath)
	if err != nil {
		return nil, fmt.Errorf("serverstate: failed to open search index: %w", err)
	}
	if _, _, err := searchIdx.SyncWithPosts(posts); err != nil {
		return nil, fmt.Errorf("serverstate: failed to reconcile search index: %w", err)
	}

	wasmBundles := wasmcache.New()

	board := visitorboard.New(opts.DB)
	if err := board.Sync(ctx); err != nil {
		return nil, fmt.Errorf("serverstate: failed to sync visitor board: %w", err)
	}

	stats := sysstats.New()

	return &ServerState{
		DB:           opts.DB,
		Logger:       opts.Logger,
		GeoIP:        geoDB,
		Sessions:     sessions,
		RefData:      refData,
		I18n:         i18nCache,
		Posts:        posts,
		SearchIndex:  searchIdx,
		WasmBundles:  wasmBundles,
		VisitorBoard: board,
		SysStats:     stats,
		Workers:      workerpool.New(opts.WorkerPoolSize),
	}, nil
}

// StartScheduler launches every recurring job against this ServerState
// and returns immediately; jobs run until ctx is canceled or Close is
// called. Safe to call at most once.
func (s *ServerState) StartScheduler(ctx context.Context, logsDir string) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelScheduler = cancel

	go scheduler.Run(ctx, s.Logger, "reap-expired-sessions", scheduler.Hour, scheduler.Offset{Minute: 30, Second: 0},
		func(ctx context.Context, scheduledAt time.Time) {
			pruned, remaining := s.Sessions.PurgeExpired()
			s.Logger.Info("session reaper ran", zap.Int("pruned", pruned), zap.Int("remaining", remaining))
		})

	go scheduler.Run(ctx, s.Logger, "sync-reference-data", scheduler.Day, scheduler.Offset{Hour: 3, Minute: 0, Second: 0},
		func(ctx context.Context, scheduledAt time.Time) {
			if err := s.RefData.SyncCountryData(ctx); err != nil {
				s.Logger.Error("reference-data sync failed", zap.Error(err))
			}
		})

	go scheduler.Run(ctx, s.Logger, "sync-i18n", scheduler.Day, scheduler.Offset{Hour: 3, Minute: 15, Second: 0},
		func(ctx context.Context, scheduledAt time.Time) {
			if _, err := s.I18n.SyncI18n(ctx); err != nil {
				s.Logger.Error("i18n sync failed", zap.Error(err))
			}
		})

	go scheduler.Run(ctx, s.Logger, "sync-posts-and-search-index", scheduler.Day, scheduler.Offset{Hour: 3, Minute: 30, Second: 0},
		func(ctx context.Context, scheduledAt time.Time) {
			if err := s.Posts.SyncPosts(ctx); err != nil {
				s.Logger.Error("post cache sync failed", zap.Error(err))
				return
			}
			added, removed, err := s.SearchIndex.SyncWithPosts(s.Posts)
			if err != nil {
				s.Logger.Error("search index reconciliation failed", zap.Error(err))
				return
			}
			s.Logger.Info("search index reconciled", zap.Int("added", added), zap.Int("removed", removed))
		})

	go scheduler.Run(ctx, s.Logger, "sample-system-stats", scheduler.Second, scheduler.Offset{},
		func(ctx context.Context, scheduledAt time.Time) {
			sample, err := sysstats.SampleNow(ctx)
			if err != nil {
				s.Logger.Warn("system stats sampling failed", zap.Error(err))
				return
			}
			s.SysStats.Push(sample)
		})

	go scheduler.Run(ctx, s.Logger, "compress-old-logs", scheduler.Day, scheduler.Offset{Hour: 0, Minute: 5, Second: 0},
		func(ctx context.Context, scheduledAt time.Time) {
			logcompress.CompressOldLogs(logsDir, s.Logger, scheduledAt)
		})
}

// Close stops the scheduler and the search index, and releases the sql.DB
// connection pool. Safe to call once during graceful shutdown.
func (s *ServerState) Close() error {
	if s.cancelScheduler != nil {
		s.cancelScheduler()
	}
	if err := s.SearchIndex.Close(); err != nil {
		s.Logger.Warn("failed to close search index", zap.Error(err))
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("serverstate: failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
