// Package executor runs persist and replicate tasks against local
// directories.
//
// Three roots model the storage tiers:
//
//	CacheRoot   - blocks cached on this node
//	ReplicaRoot - replicas held by other nodes, one subdirectory per replica
//	UfsRoot     - the under file system
//
// Files are read block by block and every block read is recorded against
// the tier that served it.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jdziat/durable-cmd-tracker/pkg/cmdconfig"
	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/jobctx"
	"github.com/jdziat/durable-cmd-tracker/pkg/jobmaster"
	"github.com/jdziat/durable-cmd-tracker/pkg/metrics"
)

// DefaultBlockSize is the read granularity for metrics.
const DefaultBlockSize = 64 * 1024

var (
	ErrNotCached     = errors.New("executor: file is not cached on this node")
	ErrAlreadyExists = errors.New("executor: destination exists and overwrite is disabled")
	ErrNoSource      = errors.New("executor: no copy of the file is readable")
)

// Local executes tasks on the local filesystem.
type Local struct {
	CacheRoot   string
	ReplicaRoot string
	UfsRoot     string
	BlockSize   int
	Logger      *slog.Logger
}

// Register installs the persist and set-replica executors on m.
func (l *Local) Register(m *jobmaster.JobMaster) {
	jobmaster.Handle(m, l.Persist)
	jobmaster.Handle(m, l.SetReplica)
}

func (l *Local) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Local) blockSize() int {
	if l.BlockSize > 0 {
		return l.BlockSize
	}
	return DefaultBlockSize
}

// Persist copies the cached file to its UFS path. A file that is not
// cached or a destination that exists without overwrite fails permanently.
func (l *Local) Persist(ctx context.Context, cfg cmdconfig.PersistConfig) error {
	src := l.cachePath(cfg.FilePath)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return core.NoRetry(fmt.Errorf("%w: %s", ErrNotCached, cfg.FilePath))
		}
		return err
	}

	dst := cfg.UfsPath
	if l.UfsRoot != "" && !filepath.IsAbs(dst) {
		dst = filepath.Join(l.UfsRoot, dst)
	}
	if !cfg.Overwrite {
		if _, err := os.Stat(dst); err == nil {
			return core.NoRetry(fmt.Errorf("%w: %s", ErrAlreadyExists, dst))
		}
	}

	n, err := l.copyFile(ctx, src, dst, metrics.SourceNodeLocal)
	if err != nil {
		return fmt.Errorf("persist %s: %w", cfg.FilePath, err)
	}
	l.logger().Debug("file persisted", "path", cfg.FilePath, "ufs_path", dst, "bytes", n)
	return nil
}

// SetReplica writes the replica for the running task index. The source is
// the local cache, then any existing replica, then the UFS.
func (l *Local) SetReplica(ctx context.Context, cfg cmdconfig.SetReplicaConfig) error {
	index := jobctx.TaskIndexFromContext(ctx)
	if index < 0 {
		index = 0
	}
	dst := l.replicaPath(index, cfg.Path)

	src, tier, err := l.source(cfg.Path, index)
	if err != nil {
		return err
	}

	n, err := l.copyFile(ctx, src, dst, tier)
	if err != nil {
		return fmt.Errorf("replicate %s: %w", cfg.Path, err)
	}
	l.logger().Debug("replica written", "path", cfg.Path, "replica", index, "source", tier, "bytes", n)
	return nil
}

func (l *Local) source(path string, skip int) (string, metrics.BlockSource, error) {
	if p := l.cachePath(path); exists(p) {
		return p, metrics.SourceNodeLocal, nil
	}
	if l.ReplicaRoot != "" {
		entries, err := os.ReadDir(l.ReplicaRoot)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", "", err
		}
		for _, e := range entries {
			if !e.IsDir() || e.Name() == replicaDir(skip) {
				continue
			}
			if p := filepath.Join(l.ReplicaRoot, e.Name(), path); exists(p) {
				return p, metrics.SourceRemote, nil
			}
		}
	}
	if l.UfsRoot != "" {
		if p := filepath.Join(l.UfsRoot, path); exists(p) {
			return p, metrics.SourceUFS, nil
		}
	}
	return "", "", core.NoRetry(fmt.Errorf("%w: %s", ErrNoSource, path))
}

func (l *Local) cachePath(path string) string {
	return filepath.Join(l.CacheRoot, path)
}

func (l *Local) replicaPath(index int, path string) string {
	return filepath.Join(l.ReplicaRoot, replicaDir(index), path)
}

func replicaDir(index int) string {
	return "replica-" + strconv.Itoa(index)
}

func exists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// copyFile copies src to dst through a temporary file, recording one block
// read per chunk.
func (l *Local) copyFile(ctx context.Context, src, dst string, tier metrics.BlockSource) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	buf := make([]byte, l.blockSize())
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			return total, err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			jobctx.RecordBlockRead(ctx, tier)
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				return total, werr
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close()
			return total, rerr
		}
	}

	if err := tmp.Close(); err != nil {
		return total, err
	}
	return total, os.Rename(tmp.Name(), dst)
}

// Size reports the file count and byte size of a cached target. It matches
// coordinator.Sizer.
func (l *Local) Size(target string) (int64, int64) {
	info, err := os.Stat(l.cachePath(target))
	if err != nil || info.IsDir() {
		return 0, 0
	}
	return 1, info.Size()
}
