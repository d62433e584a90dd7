package spec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	yamlv3 "gopkg.in/yaml.v3"
	"sigs.k8s.io/yaml"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

const ManifestFileName = "rdf.yaml"

// Unmarshal decodes manifest YAML into the generic form Validate accepts.
// Unbounded floats such as ".inf" decode to the strings "inf" and "-inf".
func Unmarshal(content []byte) (map[string]any, error) {
	node := &yamlv3.Node{}
	if err := yamlv3.Unmarshal(content, node); err != nil {
		return nil, errors.NewSchemaError(errors.FieldError{Message: fmt.Sprintf("invalid yaml: %v", err)})
	}
	decoded, err := decodeNode(node)
	if err != nil {
		return nil, errors.NewSchemaError(errors.FieldError{Message: fmt.Sprintf("invalid yaml: %v", err)})
	}
	switch raw := decoded.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return raw, nil
	default:
		return nil, errors.NewSchemaError(errors.FieldError{Message: fmt.Sprintf("expected a mapping, got %s", typeName(raw))})
	}
}

// Parse decodes and validates manifest YAML.
func Parse(content []byte, opts ...Option) (*types.ResourceDescriptor, error) {
	raw, err := Unmarshal(content)
	if err != nil {
		return nil, err
	}
	return Validate(raw, opts...)
}

// Load reads and validates the manifest at path. A directory is looked up for rdf.yaml.
// Relative references of the result resolve against the manifest directory.
func Load(ctx context.Context, path string, opts ...Option) (*types.ResourceDescriptor, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("manifest", path)

	if fi, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingFileError(path)
		}
		return nil, err
	} else if fi.IsDir() {
		path = filepath.Join(path, ManifestFileName)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingFileError(path)
		}
		return nil, err
	}
	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithLogger(log), WithRoot(root)}, opts...)
	desc, err := Parse(content, opts...)
	if err != nil {
		return nil, err
	}
	log.V(1).Info("manifest loaded", "name", desc.Name, "format_version", desc.FormatVersion)
	return desc, nil
}

// Marshal encodes a descriptor as manifest YAML. Validating the result yields an
// identical descriptor.
func Marshal(desc *types.ResourceDescriptor) ([]byte, error) {
	return yaml.Marshal(desc)
}
