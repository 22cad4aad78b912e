package discounts

// Catalog resolves discount SKUs and expands kits. Lookups are exact and case
// sensitive; SKUs here are canonical backend identifiers.
type Catalog struct {
	products map[string]int64
	kits     map[string][]string
}

// NewCatalog indexes mappings and kit rules. A later duplicate replaces an
// earlier one.
func NewCatalog(mappings []Mapping, kits []KitRule) *Catalog {
	c := &Catalog{
		products: make(map[string]int64, len(mappings)),
		kits:     make(map[string][]string, len(kits)),
	}
	for _, m := range mappings {
		c.products[m.SKU] = m.ProductID
	}
	for _, k := range kits {
		c.kits[k.KitSKU] = append([]string(nil), k.Components...)
	}
	return c
}

// ResolveSKU returns the product id of a discount eligible SKU.
func (c *Catalog) ResolveSKU(sku string) (int64, bool) {
	id, ok := c.products[sku]
	return id, ok
}

// ExpandKit returns the component SKUs of a kit, or an empty slice.
func (c *Catalog) ExpandKit(sku string) []string {
	components := c.kits[sku]
	out := make([]string, len(components))
	copy(out, components)
	return out
}

// Kits returns the number of kit rules indexed.
func (c *Catalog) Kits() int {
	return len(c.kits)
}
