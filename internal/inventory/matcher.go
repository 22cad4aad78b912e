package inventory

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FindExact returns the product whose SKU equals sku, ignoring case and
// surrounding spaces.
func FindExact(products []Product, sku string) (Product, bool) {
	want := strings.TrimSpace(sku)
	if want == "" {
		return Product{}, false
	}
	for _, p := range products {
		if strings.EqualFold(strings.TrimSpace(p.SKU), want) {
			return cloneProduct(p), true
		}
	}
	return Product{}, false
}

// FindApprox lists products whose SKU contains query, either after lower
// casing or after also dropping whitespace on both sides. Prefix matches come
// first, then shorter SKUs. No edit distance is involved.
func FindApprox(products []Product, query string) []Product {
	lower := cases.Lower(language.Und)
	q := lower.String(strings.TrimSpace(query))
	if q == "" {
		return []Product{}
	}
	qCompact := stripSpaces(q)

	type candidate struct {
		product Product
		prefix  bool
		length  int
		order   int
	}
	var candidates []candidate
	for i, p := range products {
		sku := lower.String(p.SKU)
		compact := stripSpaces(sku)
		if !strings.Contains(sku, q) && (qCompact == "" || !strings.Contains(compact, qCompact)) {
			continue
		}
		candidates = append(candidates, candidate{
			product: p,
			prefix:  strings.HasPrefix(sku, q) || strings.HasPrefix(compact, qCompact),
			length:  len([]rune(p.SKU)),
			order:   i,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.prefix != b.prefix {
			return a.prefix
		}
		if a.length != b.length {
			return a.length < b.length
		}
		return a.order < b.order
	})

	out := make([]Product, len(candidates))
	for i, c := range candidates {
		out[i] = cloneProduct(c.product)
	}
	return out
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
