package cmdconfig

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
)

// TypeField is the JSON property carrying the config variant name.
const TypeField = "@type"

var errConfigTooLarge = errors.New("cmdconfig: serialized config exceeds size limit")

// MarshalCmd encodes a command as JSON with its variant name under TypeField.
func MarshalCmd(c core.CmdConfig) ([]byte, error) {
	return marshalTagged(c.Name(), c)
}

// UnmarshalCmd decodes a command produced by MarshalCmd. Unknown properties
// are ignored.
func UnmarshalCmd(data []byte) (core.CmdConfig, error) {
	name, err := readType(data)
	if err != nil {
		return nil, err
	}
	fn, err := lookupCmd(name)
	if err != nil {
		return nil, err
	}
	return fn(func(into any) error { return json.Unmarshal(data, into) })
}

// MarshalJob encodes a job config as JSON with its variant name under
// TypeField.
func MarshalJob(c core.JobConfig) ([]byte, error) {
	return marshalTagged(c.Name(), c)
}

// UnmarshalJob decodes a job config produced by MarshalJob.
func UnmarshalJob(data []byte) (core.JobConfig, error) {
	name, err := readType(data)
	if err != nil {
		return nil, err
	}
	fn, err := lookupJob(name)
	if err != nil {
		return nil, err
	}
	return fn(func(into any) error { return json.Unmarshal(data, into) })
}

func marshalTagged(name string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cmdconfig: marshal %s: %w", name, err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("cmdconfig: marshal %s: %w", name, err)
	}
	tag, _ := json.Marshal(name)
	fields[TypeField] = tag

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if len(out) > security.MaxConfigSize {
		return nil, errConfigTooLarge
	}
	return out, nil
}

func readType(data []byte) (string, error) {
	if len(data) > security.MaxConfigSize {
		return "", errConfigTooLarge
	}
	var head struct {
		Type string `json:"@type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("cmdconfig: decode: %w", err)
	}
	if head.Type == "" {
		return "", fmt.Errorf("%w: missing %s", core.ErrUnknownConfigType, TypeField)
	}
	return head.Type, nil
}
