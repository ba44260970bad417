package rbac

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// AccountRecord is the raw authorization data of one account as stored.
type AccountRecord struct {
	UserID          int64    `json:"user_id"`
	Identity        string   `json:"identity"`
	RoleID          int64    `json:"role_id,omitempty"`
	RoleName        string   `json:"role_name,omitempty"`
	RoleMatrix      []byte   `json:"role_matrix,omitempty"`
	RolePermissions []string `json:"role_permissions,omitempty"`
	Overrides       []string `json:"overrides,omitempty"`
}

// Store reads account records from the row store.
type Store interface {
	LoadAccount(ctx context.Context, identity string) (AccountRecord, error)
}

// RecordCache is the optional shared cache in front of Store. Entries are
// keyed by version; Put must not store under a version that has moved on.
type RecordCache interface {
	Version(ctx context.Context) (int64, error)
	Get(ctx context.Context, identity string, version int64) (AccountRecord, bool, error)
	Put(ctx context.Context, identity string, version int64, rec AccountRecord) error
}

// Recorder receives authorization outcomes for metrics.
type Recorder interface {
	AuthzDecision(outcome string)
	AuthzLoad(result string)
}

type nopRecorder struct{}

func (nopRecorder) AuthzDecision(string) {}
func (nopRecorder) AuthzLoad(string)     {}

// Load results reported to Recorder.
const (
	LoadOK       = "ok"
	LoadCached   = "cached"
	LoadDegraded = "degraded"
	LoadStale    = "stale"
)

// LoaderConfig tunes the loader.
type LoaderConfig struct {
	Store    Store
	Cache    RecordCache
	Logger   *slog.Logger
	Recorder Recorder
	Timeout  time.Duration
}

// Loader turns an identity into a Snapshot. It never fails: any error yields
// the degraded default so access can only shrink.
type Loader struct {
	store    Store
	cache    RecordCache
	logger   *slog.Logger
	recorder Recorder
	timeout  time.Duration
	group    singleflight.Group
	now      func() time.Time
}

// NewLoader constructs a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	l := &Loader{
		store:    cfg.Store,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
		timeout:  cfg.Timeout,
		now:      time.Now,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.recorder == nil {
		l.recorder = nopRecorder{}
	}
	if l.timeout <= 0 {
		l.timeout = 5 * time.Second
	}
	return l
}

// Load fetches the snapshot for identity. Concurrent loads of one identity
// share a single row store round trip.
func (l *Loader) Load(ctx context.Context, identity string) Snapshot {
	if identity == "" {
		return Snapshot{}
	}
	v, _, _ := l.group.Do(identity, func() (interface{}, error) {
		return l.load(ctx, identity), nil
	})
	return v.(Snapshot)
}

// Forget drops any in-flight load of identity so the next Load reads fresh data.
func (l *Loader) Forget(identity string) {
	l.group.Forget(identity)
}

func (l *Loader) load(ctx context.Context, identity string) Snapshot {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	// The version is pinned before the row store read so a record read
	// before a bump is never cached under the bumped version.
	cached := false
	var version int64
	if l.cache != nil {
		ver, err := l.cache.Version(ctx)
		if err != nil {
			l.logger.Debug("authz cache version", slog.String("identity", identity), slog.Any("error", err))
		} else {
			cached, version = true, ver
		}
	}
	if cached {
		rec, ok, err := l.cache.Get(ctx, identity, version)
		if err != nil {
			l.logger.Debug("authz cache get", slog.String("identity", identity), slog.Any("error", err))
		}
		if ok {
			l.recorder.AuthzLoad(LoadCached)
			return l.build(identity, rec)
		}
	}

	if l.store == nil {
		l.recorder.AuthzLoad(LoadDegraded)
		return l.degraded(identity)
	}
	rec, err := l.store.LoadAccount(ctx, identity)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ErrNotFound) {
			level = slog.LevelInfo
		}
		l.logger.Log(ctx, level, "authz load degraded", slog.String("identity", identity), slog.Any("error", err))
		l.recorder.AuthzLoad(LoadDegraded)
		return l.degraded(identity)
	}
	if cached {
		if err := l.cache.Put(ctx, identity, version, rec); err != nil {
			l.logger.Debug("authz cache put", slog.String("identity", identity), slog.Any("error", err))
		}
	}
	l.recorder.AuthzLoad(LoadOK)
	return l.build(identity, rec)
}

func (l *Loader) build(identity string, rec AccountRecord) Snapshot {
	account := &UserAccount{
		ID:           rec.UserID,
		AuthIdentity: identity,
		Overrides:    PermissionSetFromNames(rec.Overrides),
	}
	if rec.RoleName != "" {
		perms := PermissionSetFromNames(rec.RolePermissions)
		matrix, err := ParsePermissionMatrix(rec.RoleMatrix)
		if err != nil {
			l.logger.Warn("authz discarding malformed role matrix",
				slog.String("identity", identity), slog.String("role", rec.RoleName), slog.Any("error", err))
		} else {
			perms.Merge(matrix)
		}
		account.Role = &Role{ID: rec.RoleID, Name: rec.RoleName, Permissions: perms}
	}
	return Snapshot{Account: account, LoadedAt: l.now()}
}

// degraded is the fail-safe snapshot: default role with nothing granted, so
// only the base read rule can allow.
func (l *Loader) degraded(identity string) Snapshot {
	return Snapshot{
		Account: &UserAccount{
			AuthIdentity: identity,
			Role:         &Role{Name: DefaultRoleName, Permissions: PermissionSet{}},
			Overrides:    PermissionSet{},
		},
		Degraded: true,
		LoadedAt: l.now(),
	}
}
