package config

import (
	"os"
	"strings"

	"emperror.dev/errors"
	"gopkg.in/yaml.v3"
)

// SetValue changes a single key of the configuration file at path, given in
// dot notation such as "rule.name", while keeping the comments and layout of
// the rest of the file. The file is created when it does not exist. The
// result has to load as a valid configuration before it is written.
func SetValue(path, key, value string) error {
	_writeLock.Lock()
	defer _writeLock.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "config: failed to read config file")
	}

	var root yaml.Node
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &root); err != nil {
			return errors.Wrap(err, "config: failed to parse config file")
		}
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return errors.New("config: unexpected document structure")
	}

	if err := setNodeAtPath(root.Content[0], strings.Split(key, "."), value); err != nil {
		return errors.WithDetails(err, "key", key)
	}

	out, err := yaml.Marshal(&root)
	if err != nil {
		return errors.Wrap(err, "config: failed to marshal config file")
	}
	if _, err := parse(path, out); err != nil {
		return errors.WithMessage(err, "config: refusing to write invalid configuration")
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return errors.Wrap(err, "config: failed to write config file")
	}
	return nil
}

// setNodeAtPath walks the mapping nodes along parts, creating missing ones,
// and stores value as a plain scalar so YAML resolves its type on load.
func setNodeAtPath(node *yaml.Node, parts []string, value string) error {
	if node.Kind != yaml.MappingNode {
		return errors.New("config: path traverses through non-mapping node")
	}
	key := parts[0]

	var child *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			child = node.Content[i+1]
			break
		}
	}
	if child == nil {
		child = &yaml.Node{Kind: yaml.MappingNode}
		if len(parts) == 1 {
			child = &yaml.Node{Kind: yaml.ScalarNode}
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
	}

	if len(parts) > 1 {
		// A section left empty in the file, such as "rule:", parses as null.
		if child.Kind == yaml.ScalarNode && child.ShortTag() == "!!null" {
			child.Kind = yaml.MappingNode
			child.Tag = ""
			child.Value = ""
			child.Style = 0
		}
		return setNodeAtPath(child, parts[1:], value)
	}
	if child.Kind != yaml.ScalarNode {
		return errors.Errorf("config: %s is not a single value", key)
	}
	child.Value = value
	child.Tag = ""
	child.Style = 0
	return nil
}
