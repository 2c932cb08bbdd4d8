package cmdconfig

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
)

// decoder fills a fresh value from whichever codec is in use.
type decoder func(into any) error

type validator interface {
	Validate() error
}

var (
	mu       sync.RWMutex
	cmdTypes = make(map[string]func(decoder) (core.CmdConfig, error))
	jobTypes = make(map[string]func(decoder) (core.JobConfig, error))
	aliases  = make(map[string]string)
)

func init() {
	RegisterCmd[PersistCmdConfig](PersistCmdName, "persist")
	RegisterCmd[ReplicateCmdConfig](ReplicateCmdName, "replicate")
	RegisterJob[PersistConfig](PersistJobName)
	RegisterJob[SetReplicaConfig](SetReplicaJobName)
}

// RegisterCmd makes the command variant T decodable under name and any
// aliases. T must be a value type whose Name() returns name.
// Panics if the name is invalid.
func RegisterCmd[T core.CmdConfig](name string, alias ...string) {
	if err := security.ValidateConfigName(name); err != nil {
		panic(fmt.Sprintf("cmdconfig: invalid command name %q: %v", name, err))
	}

	mu.Lock()
	defer mu.Unlock()
	cmdTypes[name] = func(decode decoder) (core.CmdConfig, error) {
		var c T
		if err := decodeValid(decode, &c); err != nil {
			return nil, err
		}
		return c, nil
	}
	for _, a := range alias {
		aliases[strings.ToLower(a)] = name
	}
}

// RegisterJob makes the job variant T decodable under name.
// Panics if the name is invalid.
func RegisterJob[T core.JobConfig](name string) {
	if err := security.ValidateConfigName(name); err != nil {
		panic(fmt.Sprintf("cmdconfig: invalid job name %q: %v", name, err))
	}

	mu.Lock()
	defer mu.Unlock()
	jobTypes[name] = func(decode decoder) (core.JobConfig, error) {
		var c T
		if err := decodeValid(decode, &c); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func decodeValid(decode decoder, v any) error {
	if err := decode(v); err != nil {
		return err
	}
	if val, ok := v.(validator); ok {
		return val.Validate()
	}
	return nil
}

// CommandTypes returns the registered command names in sorted order.
func CommandTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(cmdTypes))
	for n := range cmdTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupCmd(name string) (func(decoder) (core.CmdConfig, error), error) {
	mu.RLock()
	defer mu.RUnlock()
	if canonical, ok := aliases[strings.ToLower(name)]; ok {
		name = canonical
	}
	fn, ok := cmdTypes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownConfigType, name)
	}
	return fn, nil
}

func lookupJob(name string) (func(decoder) (core.JobConfig, error), error) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := jobTypes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownConfigType, name)
	}
	return fn, nil
}
