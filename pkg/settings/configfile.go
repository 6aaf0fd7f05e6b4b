package settings

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is where SetConfigValue writes when no config file was
// loaded.
func DefaultConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// SetConfigValue sets the top-level scalar key to value in the YAML file at
// path, keeping the rest of the document and its comments. A missing file is
// created.
func SetConfigValue(path string, key string, value string) error {
	root, err := readConfigNode(path)
	if err != nil {
		return err
	}

	valueNode := findOrCreateScalar(root, key)
	valueNode.Value = value
	valueNode.Tag = "!!str"
	valueNode.Style = 0

	return writeConfigNode(path, root)
}

func readConfigNode(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &yaml.Node{Kind: yaml.DocumentNode}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config file %s", path)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrapf(err, "could not parse config file %s", path)
	}
	if root.Kind == 0 {
		root.Kind = yaml.DocumentNode
	}
	return &root, nil
}

func findOrCreateScalar(root *yaml.Node, key string) *yaml.Node {
	var mapNode *yaml.Node
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.MappingNode {
		mapNode = root.Content[0]
	} else {
		mapNode = &yaml.Node{Kind: yaml.MappingNode}
		root.Content = []*yaml.Node{mapNode}
	}

	for i := 0; i+1 < len(mapNode.Content); i += 2 {
		if mapNode.Content[i].Value == key {
			if mapNode.Content[i+1].Kind != yaml.ScalarNode {
				mapNode.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode}
			}
			return mapNode.Content[i+1]
		}
	}

	valueNode := &yaml.Node{Kind: yaml.ScalarNode}
	mapNode.Content = append(mapNode.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, valueNode)
	return valueNode
}

func writeConfigNode(path string, root *yaml.Node) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "could not create config directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not open config file %s for writing", path)
	}
	defer func() {
		_ = f.Close()
	}()

	encoder := yaml.NewEncoder(f)
	encoder.SetIndent(2)
	if err := encoder.Encode(root); err != nil {
		return errors.Wrapf(err, "could not write config file %s", path)
	}
	return encoder.Close()
}
