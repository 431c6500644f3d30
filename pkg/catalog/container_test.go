package catalog

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func element(tag, code string) *etree.Element {
	el := etree.NewElement(tag)
	el.CreateElement("Code").SetText(code)
	return el
}

func TestElementContainer_Entries(t *testing.T) {
	c := NewElementContainer()

	assert.True(t, c.AddEntry("B", element("Entry", "B")))
	assert.True(t, c.AddEntry("A", element("Entry", "A")))
	assert.False(t, c.AddEntry("B", element("Entry", "B2")))
	assert.False(t, c.AddEntry("", element("Entry", "")))
	assert.False(t, c.AddEntry("C", nil))

	assert.Equal(t, []string{"B", "A"}, c.EntryCodes())
	entry, ok := c.GetEntry("B")
	require.True(t, ok)
	assert.Equal(t, "B", childText(entry, "Code"))
	assert.True(t, c.HasEntry("A"))
	assert.False(t, c.HasEntry("C"))
}

func TestElementContainer_NodesAndRelations(t *testing.T) {
	c := NewElementContainer()

	assert.True(t, c.AddNode("N1", element("Node", "N1")))
	assert.False(t, c.AddNode("N1", element("Node", "N1")))
	assert.Len(t, c.Nodes(), 1)

	nodeKey := RelationKey(RelationKindNode, "N1_N2")
	entryKey := RelationKey(RelationKindEntry, "N1_N2")
	assert.True(t, c.AddRelation(nodeKey, etree.NewElement("NodeRelation")))
	assert.True(t, c.AddRelation(entryKey, etree.NewElement("EntryRelation")))
	assert.False(t, c.AddRelation(nodeKey, etree.NewElement("NodeRelation")))

	relations := c.Relations()
	require.Len(t, relations, 2)
	assert.Equal(t, "NodeRelation", relations[0].Tag)
	assert.Equal(t, "EntryRelation", relations[1].Tag)
}

func TestElementContainer_Associations(t *testing.T) {
	c := NewElementContainer()
	wrappers := 0
	newWrapper := func() *etree.Element {
		wrappers++
		return etree.NewElement("CatalogAssociation")
	}

	assert.True(t, c.AddAssociation("Accessory_P1", newWrapper, "E1_P1_Accessory", element("Association", "E1")))
	assert.True(t, c.AddAssociation("Accessory_P1", newWrapper, "E2_P1_Accessory", element("Association", "E2")))
	assert.False(t, c.AddAssociation("Accessory_P1", newWrapper, "E1_P1_Accessory", element("Association", "E1")))
	assert.True(t, c.AddAssociation("Upsell_P1", newWrapper, "E1_P1_Upsell", element("Association", "E1")))

	assert.Equal(t, 2, wrappers)
	associations := c.Associations()
	require.Len(t, associations, 2)
	assert.Len(t, associations[0].SelectElements("Association"), 2)
	assert.Len(t, associations[1].SelectElements("Association"), 1)
	assert.True(t, c.HasAssociation("E2_P1_Accessory"))
	assert.False(t, c.HasAssociation("E2_P1_Upsell"))
}
