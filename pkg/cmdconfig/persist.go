package cmdconfig

import (
	"fmt"
	"strings"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
)

const (
	PersistCmdName = "PersistCmdConfig"
	PersistJobName = "Persist"
)

// PersistCmdConfig persists a set of cached files to the under file system.
type PersistCmdConfig struct {
	Paths     []string `json:"paths" yaml:"paths"`
	MountID   int64    `json:"mountId" yaml:"mount_id"`
	Overwrite bool     `json:"overwrite" yaml:"overwrite"`
	UfsRoot   string   `json:"ufsRoot" yaml:"ufs_root"`
}

// NewPersistCmd builds and validates a persist command. paths is copied.
func NewPersistCmd(paths []string, mountID int64, overwrite bool, ufsRoot string) (PersistCmdConfig, error) {
	c := PersistCmdConfig{
		Paths:     append([]string(nil), paths...),
		MountID:   mountID,
		Overwrite: overwrite,
		UfsRoot:   ufsRoot,
	}
	if err := c.Validate(); err != nil {
		return PersistCmdConfig{}, err
	}
	return c, nil
}

func (c PersistCmdConfig) Name() string                     { return PersistCmdName }
func (c PersistCmdConfig) JobSource() core.JobSource        { return core.SourceSystem }
func (c PersistCmdConfig) OperationType() core.OperationType { return core.OperationPersist }

func (c PersistCmdConfig) AffectedPaths() []string {
	return append([]string(nil), c.Paths...)
}

// Validate checks the paths and the ufs root.
func (c PersistCmdConfig) Validate() error {
	if strings.TrimSpace(c.UfsRoot) == "" {
		return core.ErrMissingUfsRoot
	}
	return ValidatePaths(c.Paths)
}

// JobConfigFor maps target to a PersistConfig under the ufs root.
func (c PersistCmdConfig) JobConfigFor(target string) (core.JobConfig, error) {
	if !contains(c.Paths, target) {
		return nil, fmt.Errorf("%w: %s", core.ErrTargetNotAffected, target)
	}
	return PersistConfig{
		FilePath:  target,
		MountID:   c.MountID,
		Overwrite: c.Overwrite,
		UfsPath:   strings.TrimSuffix(c.UfsRoot, "/") + target,
	}, nil
}

// PersistConfig persists one file.
type PersistConfig struct {
	FilePath  string `json:"filePath"`
	MountID   int64  `json:"mountId"`
	Overwrite bool   `json:"overwrite"`
	UfsPath   string `json:"ufsPath"`
}

func (c PersistConfig) Name() string   { return PersistJobName }
func (c PersistConfig) Target() string { return c.FilePath }

// Validate checks the file path and the destination.
func (c PersistConfig) Validate() error {
	if c.UfsPath == "" {
		return core.ErrMissingUfsRoot
	}
	return security.ValidatePath(c.FilePath)
}
