package catalog

import (
	"strconv"

	"github.com/Gobusters/ectolinq"
	"github.com/beevik/etree"
)

// VerifyDocument removes every entry whose meta class is excluded, together with the
// relations and associations that reference it, and refreshes the totalCount attributes.
// Returns the codes of the removed entries.
func VerifyDocument(doc *etree.Document, excludedMetaClasses []string) []string {
	catalog := doc.FindElement("Catalogs/Catalog")
	if catalog == nil || len(excludedMetaClasses) == 0 {
		return nil
	}

	removed := make(map[string]struct{})
	var removedCodes []string

	if entries := catalog.SelectElement("Entries"); entries != nil {
		for _, entry := range entries.SelectElements("Entry") {
			metaClass := ""
			if name := entry.FindElement("MetaData/MetaClass/Name"); name != nil {
				metaClass = name.Text()
			}
			if !ectolinq.Contains(excludedMetaClasses, metaClass) {
				continue
			}
			code := childText(entry, "Code")
			removed[code] = struct{}{}
			removedCodes = append(removedCodes, code)
			entries.RemoveChild(entry)
		}
	}

	if len(removed) > 0 {
		isRemoved := func(el *etree.Element, tags ...string) bool {
			for _, tag := range tags {
				if _, ok := removed[childText(el, tag)]; ok {
					return true
				}
			}
			return false
		}

		if relations := catalog.SelectElement("Relations"); relations != nil {
			for _, relation := range relations.ChildElements() {
				if isRemoved(relation, "EntryCode", "ParentEntryCode", "ChildEntryCode") {
					relations.RemoveChild(relation)
				}
			}
		}

		if associations := catalog.SelectElement("Associations"); associations != nil {
			for _, wrapper := range associations.SelectElements("CatalogAssociation") {
				if isRemoved(wrapper, "EntryCode") {
					associations.RemoveChild(wrapper)
					continue
				}
				for _, leaf := range wrapper.SelectElements("Association") {
					if isRemoved(leaf, "EntryCode") {
						wrapper.RemoveChild(leaf)
					}
				}
				if len(wrapper.SelectElements("Association")) == 0 {
					associations.RemoveChild(wrapper)
				}
			}
		}
	}

	if len(removed) > 0 {
		doc.Indent(2)
	}

	for _, tag := range []string{"Nodes", "Entries", "Relations", "Associations"} {
		if collection := catalog.SelectElement(tag); collection != nil {
			collection.CreateAttr("totalCount", strconv.Itoa(len(collection.ChildElements())))
		}
	}

	return removedCodes
}

// CountElements counts the elements of each collection of a catalog document
func CountElements(doc *etree.Document) Counts {
	catalog := doc.FindElement("Catalogs/Catalog")
	if catalog == nil {
		return Counts{}
	}
	count := func(tag string) int {
		collection := catalog.SelectElement(tag)
		if collection == nil {
			return 0
		}
		return len(collection.ChildElements())
	}
	return Counts{
		Nodes:        count("Nodes"),
		Entries:      count("Entries"),
		Relations:    count("Relations"),
		Associations: count("Associations"),
	}
}
