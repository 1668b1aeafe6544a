// Package evolution は変異(エボリューション)ノードの静的カタログを提供します。
// カタログは起動時に一度だけ構築され、以後は変更されないためロックなしで並行に読み取れます。
package evolution

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
)

//go:embed content/*.json
var content embed.FS

// Shape はカタログの形状です。
type Shape uint8

const (
	// ShapeTree は children を持つ木構造のカタログです。
	ShapeTree Shape = iota
	// ShapeFlat は id から効果を直接引くフラットなカタログです。
	ShapeFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeTree:
		return "tree"
	case ShapeFlat:
		return "flat"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

var (
	ErrDuplicateNode = errors.New("evolution: duplicate node id")
	ErrEmptyCatalog  = errors.New("evolution: catalog has no nodes")
	ErrInvalidNodeID = errors.New("evolution: node id must not be empty")
)

// Node は1つの変異ノードです。Effects は取得時に形質へ加算されます。
type Node struct {
	ID          string             `json:"id"`
	Label       string             `json:"label"`
	Description string             `json:"description"`
	Effects     map[string]float64 `json:"effects,omitempty"`
	Children    map[string]*Node   `json:"children,omitempty"`
}

// Catalog は読み取り専用の変異カタログです。
type Catalog struct {
	shape Shape
	roots map[string]*Node
	index map[string]*Node
	order []string
}

// Default は埋め込まれた既定のカタログを返します。
func Default(shape Shape) (*Catalog, error) {
	name := "content/tree.json"
	if shape == ShapeFlat {
		name = "content/flat.json"
	}
	data, err := content.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("evolution: read embedded %s: %w", name, err)
	}
	return Load(bytes.NewReader(data), shape)
}

// Load は JSON からカタログを構築します。
func Load(r io.Reader, shape Shape) (*Catalog, error) {
	var roots map[string]*Node
	if err := json.NewDecoder(r).Decode(&roots); err != nil {
		return nil, fmt.Errorf("evolution: decode catalog: %w", err)
	}
	return New(roots, shape)
}

// New はノード群からカタログを構築します。木構造の場合は全階層をidで索引します。
func New(roots map[string]*Node, shape Shape) (*Catalog, error) {
	if len(roots) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		shape: shape,
		roots: roots,
		index: make(map[string]*Node),
	}
	for _, id := range slices.Sorted(maps.Keys(roots)) {
		if err := c.register(id, roots[id]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) register(id string, node *Node) error {
	if id == "" {
		return ErrInvalidNodeID
	}
	if _, exists := c.index[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	if node == nil {
		node = &Node{}
	}
	node.ID = id
	if c.shape == ShapeFlat {
		node.Children = nil
	}
	c.index[id] = node
	c.order = append(c.order, id)
	for _, childID := range slices.Sorted(maps.Keys(node.Children)) {
		if err := c.register(childID, node.Children[childID]); err != nil {
			return err
		}
	}
	return nil
}

// Shape はカタログの形状を返します。
func (c *Catalog) Shape() Shape { return c.shape }

// Lookup は id に対応するノードを返します。
func (c *Catalog) Lookup(id string) (Node, bool) {
	node, ok := c.index[id]
	if !ok {
		return Node{}, false
	}
	return *node, true
}

// EffectsOf は id の効果ベクトルのコピーを返します。未知の id なら空のマップです。
func (c *Catalog) EffectsOf(id string) map[string]float64 {
	node, ok := c.index[id]
	if !ok {
		return map[string]float64{}
	}
	return maps.Clone(node.Effects)
}

// IDs は全ノードの id を決定的な順序で返します。
func (c *Catalog) IDs() []string {
	return slices.Clone(c.order)
}

// Len はノード数を返します。
func (c *Catalog) Len() int { return len(c.index) }

// MarshalJSON はクライアントへ渡すルート構造をエンコードします。
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.roots)
}
