package cmdconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// commandFile is the layout of a YAML command file:
//
//	commands:
//	  - type: persist
//	    paths: [/data/a, /data/b]
//	    ufs_root: /mnt/ufs
type commandFile struct {
	Commands []yaml.Node `yaml:"commands"`
}

// LoadCommands reads every command from a YAML file.
func LoadCommands(path string) ([]core.CmdConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read command file: %w", err)
	}
	return ParseCommands(data)
}

// ParseCommands decodes a YAML command document.
func ParseCommands(data []byte) ([]core.CmdConfig, error) {
	var f commandFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse command file: %w", err)
	}

	cmds := make([]core.CmdConfig, 0, len(f.Commands))
	for i := range f.Commands {
		c, err := DecodeYAML(&f.Commands[i])
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

// DecodeYAML decodes one command mapping. The variant is named by its "type"
// key; unknown keys are ignored.
func DecodeYAML(node *yaml.Node) (core.CmdConfig, error) {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return nil, err
	}
	fn, err := lookupCmd(head.Type)
	if err != nil {
		return nil, err
	}
	return fn(node.Decode)
}
