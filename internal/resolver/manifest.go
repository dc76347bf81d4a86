package resolver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tailscale/hujson"
)

// Kind identifies the JSON type of a Node
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindObject
	KindArray
	KindOther // numbers and booleans
)

// Node is a decoded JSON value that keeps object keys in document order.
// Export conditions are matched in the order the manifest declares them,
// which a Go map cannot preserve.
type Node struct {
	Kind   Kind
	Str    string
	Keys   []string // object keys, parallel to Values
	Values []*Node  // object values or array elements
}

// Get returns the value stored under key, or nil
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	for i, k := range n.Keys {
		if k == key {
			return n.Values[i]
		}
	}
	return nil
}

// Manifest is the subset of package.json / jsr.json / deno.json used for resolution
type Manifest struct {
	Name    string
	Version string
	Exports *Node
	Browser *Node
	Module  string
	Main    string
}

// ParseManifest decodes a manifest. When jsonc is set, comments and trailing
// commas are accepted.
func ParseManifest(data []byte, jsonc bool) (*Manifest, error) {
	if jsonc {
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("invalid jsonc manifest: %w", err)
		}
		data = standardized
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	root, err := decodeNode(dec)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if root.Kind != KindObject {
		return nil, errors.New("invalid manifest: not a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid manifest: trailing data")
	}

	return &Manifest{
		Name:    root.Get("name").stringValue(),
		Version: root.Get("version").stringValue(),
		Exports: root.Get("exports"),
		Browser: root.Get("browser"),
		Module:  root.Get("module").stringValue(),
		Main:    root.Get("main").stringValue(),
	}, nil
}

func (n *Node) stringValue() string {
	if n == nil || n.Kind != KindString {
		return ""
	}
	return n.Str
}

func decodeNode(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			node := &Node{Kind: KindObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				node.Keys = append(node.Keys, key)
				node.Values = append(node.Values, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		case '[':
			node := &Node{Kind: KindArray}
			for dec.More() {
				value, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				node.Values = append(node.Values, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case string:
		return &Node{Kind: KindString, Str: t}, nil
	case nil:
		return &Node{Kind: KindNull}, nil
	default:
		return &Node{Kind: KindOther}, nil
	}
}
