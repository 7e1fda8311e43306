package repository

import (
	"context"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/buger/jsonparser"
	"github.com/patrickmn/go-cache"
)

// Operation is one of the restic operations exposed by the API.
type Operation string

const (
	OperationStats     Operation = "stats"
	OperationSnapshots Operation = "snapshots"
	OperationForget    Operation = "forget"
	OperationRestore   Operation = "restore"
)

// RestoreRequest is the body accepted by the restore endpoint.
type RestoreRequest struct {
	SnapshotID string `json:"snapshot_id"`
	TargetDir  string `json:"target_dir"`
}

// Validate checks the request before the repository is touched.
func (r RestoreRequest) Validate() error {
	if strings.TrimSpace(r.TargetDir) == "" {
		return newError(KindValidation, "Target directory is required")
	}
	return validateSnapshotID(r.SnapshotID)
}

func validateSnapshotID(id string) error {
	if strings.TrimSpace(id) == "" {
		return newError(KindValidation, "Snapshot ID is required")
	}
	return nil
}

// NewRequest builds the restic request for op. Operations that act on a
// snapshot take the snapshot id as the first parameter; restore takes the
// target directory as the second.
func NewRequest(op Operation, params ...string) Request {
	param := func(i int) string {
		if i < len(params) {
			return params[i]
		}
		return ""
	}

	switch op {
	case OperationStats:
		return Request{Subcommand: "stats", Args: []string{"--json"}, ExpectJSON: true}
	case OperationSnapshots:
		return Request{Subcommand: "snapshots", Args: []string{"--json"}, ExpectJSON: true}
	case OperationForget:
		return Request{Subcommand: "forget", Args: []string{param(0), "--prune"}}
	case OperationRestore:
		return Request{Subcommand: "restore", Args: []string{param(0), "--target", param(1)}}
	}
	panic("repository: unknown operation " + string(op))
}

// Repository exposes the supported restic operations. Every operation holds
// the session guard for the duration of its restic invocation.
type Repository struct {
	session *Session
	invoker *Invoker
	cache   *cache.Cache
	logger  *log.Entry
}

// Option configures a Repository.
type Option func(r *Repository)

// WithCache caches successful stats and snapshot listings for ttl. A
// successful forget flushes the cache. A zero ttl leaves caching disabled.
func WithCache(ttl time.Duration) Option {
	return func(r *Repository) {
		if ttl > 0 {
			r.cache = cache.New(ttl, 2*ttl)
		}
	}
}

// New returns a repository executing operations through invoker while
// holding the guard of session.
func New(session *Session, invoker *Invoker, opts ...Option) *Repository {
	r := &Repository{
		session: session,
		invoker: invoker,
		logger:  log.WithField("component", "repository"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns the decoded output of "restic stats --json".
func (r *Repository) Stats(ctx context.Context) (interface{}, error) {
	return r.read(ctx, OperationStats)
}

// Snapshots returns the decoded output of "restic snapshots --json".
func (r *Repository) Snapshots(ctx context.Context) (interface{}, error) {
	return r.read(ctx, OperationSnapshots)
}

// Forget removes a snapshot and prunes data no longer referenced.
func (r *Repository) Forget(ctx context.Context, snapshotID string) error {
	if err := validateSnapshotID(snapshotID); err != nil {
		return err
	}
	if _, err := r.execute(ctx, NewRequest(OperationForget, snapshotID)); err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.Flush()
	}
	r.logger.WithField("snapshot_id", snapshotID).Info("snapshot deleted")
	return nil
}

// Restore restores a snapshot into the request's target directory. The
// request is validated before the session guard is acquired so an invalid
// request never reaches restic.
func (r *Repository) Restore(ctx context.Context, req RestoreRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if _, err := r.execute(ctx, NewRequest(OperationRestore, req.SnapshotID, req.TargetDir)); err != nil {
		return err
	}
	r.logger.WithFields(log.Fields{
		"snapshot_id": req.SnapshotID,
		"target_dir":  req.TargetDir,
	}).Info("snapshot restored")
	return nil
}

func (r *Repository) read(ctx context.Context, op Operation) (interface{}, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(string(op)); ok {
			return v, nil
		}
	}

	v, err := r.execute(ctx, NewRequest(op))
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetDefault(string(op), v)
	}
	return v, nil
}

// execute runs req under the session guard and classifies the result.
func (r *Repository) execute(ctx context.Context, req Request) (interface{}, error) {
	return WithSession(ctx, r.session, func(cfg Config) (interface{}, error) {
		res, err := r.invoker.Invoke(ctx, cfg, req)
		if err != nil {
			return nil, err
		}
		v, err := Classify(res, req.ExpectJSON)
		if err != nil {
			r.logger.WithField("subcommand", req.Subcommand).WithError(err).Warn("restic reported a failure")
			return nil, err
		}
		if req.Subcommand == "stats" {
			r.logStats(res.Stdout)
		}
		return v, nil
	})
}

func (r *Repository) logStats(stdout []byte) {
	fields := log.Fields{}
	if size, err := jsonparser.GetInt(stdout, "total_size"); err == nil {
		fields["total_size"] = size
	}
	if count, err := jsonparser.GetInt(stdout, "total_file_count"); err == nil {
		fields["total_file_count"] = count
	}
	r.logger.WithFields(fields).Debug("retrieved repository stats")
}
