package spec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	yamlv3 "gopkg.in/yaml.v3"
)

// decodeNode converts a YAML node into the generic form Validate reads: mappings
// become map[string]any, sequences []any and numbers json.Number holding the literal
// text, so "pytorch_version: 1.10" keeps its trailing zero. Non-finite floats become
// the strings "inf", "-inf" and "nan".
func decodeNode(n *yamlv3.Node) (any, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yamlv3.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return decodeNode(n.Content[0])
	case yamlv3.AliasNode:
		return decodeNode(n.Alias)
	case yamlv3.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := decodeNode(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yamlv3.MappingNode:
		out := map[string]any{}
		if err := decodeMapping(n, out); err != nil {
			return nil, err
		}
		return out, nil
	case yamlv3.ScalarNode:
		return decodeScalar(n)
	default:
		return nil, fmt.Errorf("line %d: unexpected yaml node", n.Line)
	}
}

func decodeMapping(n *yamlv3.Node, into map[string]any) error {
	var merges []*yamlv3.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if key.ShortTag() == "!!merge" {
			merges = append(merges, val)
			continue
		}
		v, err := decodeNode(val)
		if err != nil {
			return err
		}
		into[key.Value] = v
	}
	// explicit keys win over merged ones
	for _, m := range merges {
		if m.Kind == yamlv3.AliasNode {
			m = m.Alias
		}
		sources := []*yamlv3.Node{m}
		if m.Kind == yamlv3.SequenceNode {
			sources = m.Content
		}
		for _, src := range sources {
			if src.Kind == yamlv3.AliasNode {
				src = src.Alias
			}
			if src.Kind != yamlv3.MappingNode {
				return fmt.Errorf("line %d: merge value is not a mapping", src.Line)
			}
			merged := map[string]any{}
			if err := decodeMapping(src, merged); err != nil {
				return err
			}
			for k, v := range merged {
				if _, ok := into[k]; !ok {
					into[k] = v
				}
			}
		}
	}
	return nil
}

func decodeScalar(n *yamlv3.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		err := n.Decode(&b)
		return b, err
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		switch {
		case math.IsNaN(f):
			return "nan", nil
		case math.IsInf(f, 1):
			return "inf", nil
		case math.IsInf(f, -1):
			return "-inf", nil
		}
		if json.Valid([]byte(n.Value)) {
			return json.Number(n.Value), nil
		}
		return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
	default:
		// strings, timestamps and binary keep their text
		return n.Value, nil
	}
}
