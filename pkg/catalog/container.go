package catalog

import (
	"github.com/beevik/etree"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Relation kinds used to scope relation keys
const (
	RelationKindNode      = "NodeRelation"
	RelationKindNodeEntry = "NodeEntryRelation"
	RelationKindEntry     = "EntryRelation"
)

// ElementContainer holds the elements of one catalog document keyed by their generated key.
// Each collection keeps insertion order so the same input always serializes the same way.
// Not safe for concurrent writers.
type ElementContainer struct {
	nodes             *orderedmap.OrderedMap[string, *etree.Element]
	entries           *orderedmap.OrderedMap[string, *etree.Element]
	relations         *orderedmap.OrderedMap[string, *etree.Element]
	associations      *orderedmap.OrderedMap[string, *etree.Element]
	associationLeaves map[string]struct{}
}

// NewElementContainer creates an empty container
func NewElementContainer() *ElementContainer {
	return &ElementContainer{
		nodes:             orderedmap.New[string, *etree.Element](),
		entries:           orderedmap.New[string, *etree.Element](),
		relations:         orderedmap.New[string, *etree.Element](),
		associations:      orderedmap.New[string, *etree.Element](),
		associationLeaves: make(map[string]struct{}),
	}
}

// RelationKey scopes a relation name by its kind
func RelationKey(kind, relationName string) string {
	return kind + ":" + relationName
}

// HasNode reports whether a node with the code was added
func (c *ElementContainer) HasNode(code string) bool {
	_, ok := c.nodes.Get(code)
	return ok
}

// GetNode returns the node with the code
func (c *ElementContainer) GetNode(code string) (*etree.Element, bool) {
	return c.nodes.Get(code)
}

// AddNode adds a node unless its code is already present
func (c *ElementContainer) AddNode(code string, node *etree.Element) bool {
	if code == "" || node == nil || c.HasNode(code) {
		return false
	}
	c.nodes.Set(code, node)
	return true
}

// HasEntry reports whether an entry with the code was added
func (c *ElementContainer) HasEntry(code string) bool {
	_, ok := c.entries.Get(code)
	return ok
}

// GetEntry returns the entry with the code
func (c *ElementContainer) GetEntry(code string) (*etree.Element, bool) {
	return c.entries.Get(code)
}

// AddEntry adds an entry unless its code is already present
func (c *ElementContainer) AddEntry(code string, entry *etree.Element) bool {
	if code == "" || entry == nil || c.HasEntry(code) {
		return false
	}
	c.entries.Set(code, entry)
	return true
}

// HasRelation reports whether a relation with the key was added
func (c *ElementContainer) HasRelation(key string) bool {
	_, ok := c.relations.Get(key)
	return ok
}

// AddRelation adds a relation unless its key is already present
func (c *ElementContainer) AddRelation(key string, relation *etree.Element) bool {
	if key == "" || relation == nil || c.HasRelation(key) {
		return false
	}
	c.relations.Set(key, relation)
	return true
}

// HasAssociation reports whether the association leaf with the key was added
func (c *ElementContainer) HasAssociation(leafKey string) bool {
	_, ok := c.associationLeaves[leafKey]
	return ok
}

// AddAssociation adds an association leaf below the catalog association identified by
// wrapperKey. The wrapper is created on first use, later leaves with the same wrapper key
// are merged into it. Returns false when the leaf key was already present.
func (c *ElementContainer) AddAssociation(wrapperKey string, newWrapper func() *etree.Element, leafKey string, leaf *etree.Element) bool {
	if c.HasAssociation(leafKey) || leaf == nil {
		return false
	}

	wrapper, ok := c.associations.Get(wrapperKey)
	if !ok {
		wrapper = newWrapper()
		c.associations.Set(wrapperKey, wrapper)
	}
	wrapper.AddChild(leaf)
	c.associationLeaves[leafKey] = struct{}{}
	return true
}

// Nodes returns the nodes in insertion order
func (c *ElementContainer) Nodes() []*etree.Element {
	return values(c.nodes)
}

// Entries returns the entries in insertion order
func (c *ElementContainer) Entries() []*etree.Element {
	return values(c.entries)
}

// Relations returns the relations in insertion order
func (c *ElementContainer) Relations() []*etree.Element {
	return values(c.relations)
}

// Associations returns the catalog associations in insertion order
func (c *ElementContainer) Associations() []*etree.Element {
	return values(c.associations)
}

// EntryCodes returns the codes of all entries in insertion order
func (c *ElementContainer) EntryCodes() []string {
	codes := make([]string, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		codes = append(codes, pair.Key)
	}
	return codes
}

func values(m *orderedmap.OrderedMap[string, *etree.Element]) []*etree.Element {
	elements := make([]*etree.Element, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		elements = append(elements, pair.Value)
	}
	return elements
}
