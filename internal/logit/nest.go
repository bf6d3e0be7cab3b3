package logit

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// NestSpec is the YAML form of a nested-logit tree: a named nest with a
// scale coefficient and a list of alternatives, each either a leaf name or a
// sub-nest.
type NestSpec struct {
	Name         string            `yaml:"name"`
	Coefficient  float64           `yaml:"coefficient"`
	Alternatives []NestAlternative `yaml:"alternatives"`
}

// NestAlternative is either a leaf alternative name or a nested NestSpec.
type NestAlternative struct {
	Leaf string
	Nest *NestSpec
}

// UnmarshalYAML accepts a plain string (leaf) or a mapping (sub-nest).
func (a *NestAlternative) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&a.Leaf)
	case yaml.MappingNode:
		a.Nest = &NestSpec{}
		return value.Decode(a.Nest)
	default:
		return eris.New("logit: nest alternative must be a name or a nest mapping")
	}
}

// Nest is one node of the flattened tree, carrying the accumulated position
// data a nested-logit estimator needs at that node.
type Nest struct {
	Name                  string
	Level                 int
	Coefficient           float64
	ProductOfCoefficients float64
	Ancestors             []string
	Alternatives          []string // nil for leaves
}

// IsLeaf reports whether the nest is a leaf alternative.
func (n Nest) IsLeaf() bool { return n.Alternatives == nil }

// LoadNestSpec reads and validates a nest tree from a YAML file.
func LoadNestSpec(path string) (*NestSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "logit: read nest spec %s", path)
	}
	var spec NestSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, eris.Wrapf(err, "logit: parse nest spec %s", path)
	}
	if err := ValidateNestSpec(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// WalkNests visits every node of the tree. With postOrder false a node is
// visited before its alternatives, with postOrder true after them.
func WalkNests(spec *NestSpec, postOrder bool, fn func(Nest) error) error {
	root := Nest{ProductOfCoefficients: 1}
	return walkNode(spec, root, postOrder, fn)
}

func walkNode(spec *NestSpec, parent Nest, postOrder bool, fn func(Nest) error) error {
	n := Nest{
		Name:                  spec.Name,
		Level:                 parent.Level + 1,
		Coefficient:           spec.Coefficient,
		ProductOfCoefficients: parent.ProductOfCoefficients * spec.Coefficient,
		Ancestors:             append(append([]string(nil), parent.Ancestors...), spec.Name),
		Alternatives:          alternativeNames(spec),
	}

	if !postOrder {
		if err := fn(n); err != nil {
			return err
		}
	}

	for _, alt := range spec.Alternatives {
		if alt.Nest != nil {
			if err := walkNode(alt.Nest, n, postOrder, fn); err != nil {
				return err
			}
			continue
		}
		leaf := Nest{
			Name:                  alt.Leaf,
			Level:                 n.Level + 1,
			ProductOfCoefficients: n.ProductOfCoefficients,
			Ancestors:             append(append([]string(nil), n.Ancestors...), alt.Leaf),
		}
		if err := fn(leaf); err != nil {
			return err
		}
	}

	if postOrder {
		return fn(n)
	}
	return nil
}

func alternativeNames(spec *NestSpec) []string {
	names := make([]string, 0, len(spec.Alternatives))
	for _, alt := range spec.Alternatives {
		if alt.Nest != nil {
			names = append(names, alt.Nest.Name)
		} else {
			names = append(names, alt.Leaf)
		}
	}
	return names
}

// Leaves returns the leaf alternatives of the tree in pre-order.
func Leaves(spec *NestSpec) []Nest {
	var leaves []Nest
	_ = WalkNests(spec, false, func(n Nest) error {
		if n.IsLeaf() {
			leaves = append(leaves, n)
		}
		return nil
	})
	return leaves
}

// ValidateNestSpec checks the structural invariants the estimation math
// relies on: named nests, scale coefficients in (0, 1], at least one
// alternative per nest, and globally unique leaf names.
func ValidateNestSpec(spec *NestSpec) error {
	seen := make(map[string]bool)
	return WalkNests(spec, false, func(n Nest) error {
		if n.Name == "" {
			return eris.New("logit: nest with empty name")
		}
		if n.IsLeaf() {
			if seen[n.Name] {
				return eris.Errorf("logit: duplicate leaf %q", n.Name)
			}
			seen[n.Name] = true
			return nil
		}
		if n.Coefficient <= 0 || n.Coefficient > 1 {
			return eris.Errorf("logit: nest %q coefficient %v outside (0, 1]", n.Name, n.Coefficient)
		}
		if len(n.Alternatives) == 0 {
			return eris.Errorf("logit: nest %q has no alternatives", n.Name)
		}
		return nil
	})
}
