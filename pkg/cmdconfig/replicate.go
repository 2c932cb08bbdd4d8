package cmdconfig

import (
	"fmt"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
)

const (
	ReplicateCmdName  = "ReplicateCmdConfig"
	SetReplicaJobName = "SetReplica"
)

// ReplicateCmdConfig sets the replication level of a set of files.
type ReplicateCmdConfig struct {
	Paths    []string `json:"paths" yaml:"paths"`
	Replicas int      `json:"replicas" yaml:"replicas"`
}

// NewReplicateCmd builds and validates a replicate command. paths is copied.
func NewReplicateCmd(paths []string, replicas int) (ReplicateCmdConfig, error) {
	c := ReplicateCmdConfig{Paths: append([]string(nil), paths...), Replicas: replicas}
	if err := c.Validate(); err != nil {
		return ReplicateCmdConfig{}, err
	}
	return c, nil
}

func (c ReplicateCmdConfig) Name() string                     { return ReplicateCmdName }
func (c ReplicateCmdConfig) JobSource() core.JobSource        { return core.SourceUser }
func (c ReplicateCmdConfig) OperationType() core.OperationType { return core.OperationReplicate }

func (c ReplicateCmdConfig) AffectedPaths() []string {
	return append([]string(nil), c.Paths...)
}

// Validate rejects negative replica counts and bad paths.
func (c ReplicateCmdConfig) Validate() error {
	if c.Replicas < 0 {
		return core.ErrNegativeReplicas
	}
	return ValidatePaths(c.Paths)
}

// JobConfigFor maps target to a SetReplicaConfig.
func (c ReplicateCmdConfig) JobConfigFor(target string) (core.JobConfig, error) {
	if !contains(c.Paths, target) {
		return nil, fmt.Errorf("%w: %s", core.ErrTargetNotAffected, target)
	}
	return NewSetReplica(target, c.Replicas)
}

// SetReplicaConfig sets the replica count of one file. It runs as one task
// per replica; zero replicas means no tasks.
type SetReplicaConfig struct {
	Path     string `json:"path"`
	Replicas int    `json:"replicas"`
}

// NewSetReplica builds a SetReplicaConfig, rejecting negative replica counts.
func NewSetReplica(path string, replicas int) (SetReplicaConfig, error) {
	c := SetReplicaConfig{Path: path, Replicas: replicas}
	if err := c.Validate(); err != nil {
		return SetReplicaConfig{}, err
	}
	return c, nil
}

func (c SetReplicaConfig) Name() string   { return SetReplicaJobName }
func (c SetReplicaConfig) Target() string { return c.Path }
func (c SetReplicaConfig) TaskCount() int { return c.Replicas }

func (c SetReplicaConfig) Validate() error {
	if c.Replicas < 0 {
		return core.ErrNegativeReplicas
	}
	return security.ValidatePath(c.Path)
}
