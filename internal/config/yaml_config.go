package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetYamlConfig sets a dotted key (e.g. "store.backend") in the yaml file at
// path, creating the file and any intermediate mappings. Comments and the
// order of other keys are preserved.
func SetYamlConfig(path, key, value string) error {
	if key == "" || strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return fmt.Errorf("invalid key %q", key)
	}

	data, err := os.ReadFile(path) // #nosec G304 - config file path from caller
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var root yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	// Empty or comment-only files have no document content.
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}

	mapping := root.Content[0]
	parts := strings.Split(key, ".")
	for i, part := range parts {
		last := i == len(parts)-1
		child := lookupKey(mapping, part)
		switch {
		case last && child != nil:
			*child = yaml.Node{Kind: yaml.ScalarNode, Value: value, HeadComment: child.HeadComment, LineComment: child.LineComment}
		case last:
			mapping.Content = append(mapping.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: part},
				&yaml.Node{Kind: yaml.ScalarNode, Value: value},
			)
		case child == nil:
			child = &yaml.Node{Kind: yaml.MappingNode}
			mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part}, child)
			mapping = child
		case child.Kind != yaml.MappingNode:
			return fmt.Errorf("cannot set %s: %s is not a mapping", key, strings.Join(parts[:i+1], "."))
		default:
			mapping = child
		}
	}

	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	if err := os.WriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// Pick the change up immediately when this is the file in use.
	if v != nil && v.ConfigFileUsed() == path {
		_ = v.ReadInConfig()
	}
	return nil
}

func lookupKey(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
