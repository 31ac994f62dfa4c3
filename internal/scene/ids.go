package scene

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// IDFunc returns a candidate save id for the entity at index of scope.
// attempt grows when an earlier candidate was already taken.
type IDFunc func(scope, template string, index, attempt int) string

// RandomIDs hands out uuids.
func RandomIDs(_, _ string, _, _ int) string {
	return uuid.NewString()
}

// HashedIDs derives ids from the scope, template and position of the entity,
// so rerunning on an unchanged file yields the same ids.
func HashedIDs(scope, template string, index, attempt int) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(norm.NFC.String(scope)))
	h.Write([]byte{0})
	h.Write([]byte(template))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(index)))
	if attempt > 0 {
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(attempt)))
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}

// Result reports what AssignIDs changed.
type Result struct {
	Assigned   int // entities that had no id
	Duplicates int // entities whose id repeated an earlier one
}

// AssignIDs fills in missing and duplicate save_id fields of a scene
// document in place. Other fields, ordering and comments are kept.
func AssignIDs(doc *yaml.Node, gen IDFunc) (Result, error) {
	var res Result
	root := doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return res, nil
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return res, fmt.Errorf("scene root is not a mapping")
	}
	scope := ""
	if n := mapValue(root, "scope"); n != nil {
		scope = n.Value
	}
	entities := mapValue(root, "entities")
	if entities == nil {
		return res, nil
	}
	if entities.Kind != yaml.SequenceNode {
		return res, fmt.Errorf("entities is not a list")
	}

	seen := make(map[string]struct{}, len(entities.Content))
	// ids already present win over generated ones
	for _, e := range entities.Content {
		if e.Kind != yaml.MappingNode {
			continue
		}
		if n := mapValue(e, "save_id"); n != nil && n.Value != "" {
			if _, dup := seen[n.Value]; !dup {
				seen[n.Value] = struct{}{}
			}
		}
	}

	kept := make(map[string]struct{}, len(seen))
	for i, e := range entities.Content {
		if e.Kind != yaml.MappingNode {
			return res, fmt.Errorf("entity %d is not a mapping", i)
		}
		idNode := mapValue(e, "save_id")
		if idNode != nil && idNode.Value != "" {
			if _, dup := kept[idNode.Value]; !dup {
				kept[idNode.Value] = struct{}{}
				continue
			}
			res.Duplicates++
		} else {
			res.Assigned++
		}

		template := ""
		if n := mapValue(e, "template"); n != nil {
			template = n.Value
		}
		id := ""
		for attempt := 0; ; attempt++ {
			id = gen(scope, template, i, attempt)
			if _, taken := seen[id]; !taken {
				break
			}
		}
		seen[id] = struct{}{}
		kept[id] = struct{}{}

		if idNode == nil {
			e.Content = append(e.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "save_id"},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: id})
		} else {
			idNode.Value = id
			idNode.Tag = "!!str"
			idNode.Style = 0
		}
	}
	return res, nil
}

func mapValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
