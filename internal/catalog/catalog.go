// Package catalog holds the static product and cluster-affinity reference
// tables consumed by the recommendation engine.
package catalog

import (
	"go.uber.org/zap"

	"github.com/helios-advisory/nbo-cli/internal/model"
)

// ProductInfo describes one sellable product.
type ProductInfo struct {
	Name          string         `json:"name" yaml:"name"`
	NeedArea      model.NeedArea `json:"need_area" yaml:"need_area"`
	AnnualMargin  float64        `json:"annual_margin" yaml:"annual_margin"`
	Profitability float64        `json:"profitability" yaml:"profitability"`
}

// NeutralScore is returned for reference-table misses. The engine must always
// produce a ranking for the full client base, so a missing entry degrades to
// the midpoint instead of failing the run.
const NeutralScore = 50.0

// Catalog is the loaded reference data: the product table plus the
// per-cluster, per-need-area affinity coefficients.
type Catalog struct {
	products []ProductInfo
	byKey    map[string]ProductInfo
	affinity map[affinityKey]float64
}

type affinityKey struct {
	cluster int
	area    model.NeedArea
}

// New builds a Catalog from a product list and affinity table. Product names
// are indexed under their normalized form so lookups tolerate case and accent
// differences.
func New(products []ProductInfo, affinity map[int]map[model.NeedArea]float64) *Catalog {
	c := &Catalog{
		products: append([]ProductInfo(nil), products...),
		byKey:    make(map[string]ProductInfo, len(products)),
		affinity: make(map[affinityKey]float64),
	}
	for _, p := range products {
		c.byKey[NormalizeName(p.Name)] = p
	}
	for cluster, areas := range affinity {
		for area, coeff := range areas {
			c.affinity[affinityKey{cluster, area}] = coeff
		}
	}
	return c
}

// Products returns the product table in its declared order.
func (c *Catalog) Products() []ProductInfo {
	return c.products
}

// Product looks up a product by name, tolerating case and accent differences.
func (c *Catalog) Product(name string) (ProductInfo, bool) {
	p, ok := c.byKey[NormalizeName(name)]
	return p, ok
}

// AreaOf adapts the catalog into a model.AreaLookup.
func (c *Catalog) AreaOf(product string) (model.NeedArea, bool) {
	p, ok := c.Product(product)
	if !ok {
		return "", false
	}
	return p.NeedArea, true
}

// SameProduct reports whether two product names refer to the same product.
func (c *Catalog) SameProduct(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}

// AffinityScore returns the cluster-affinity component score in [0,100] for a
// (cluster, need area) pair. An unmapped pair resolves to NeutralScore; that
// is a deliberate degradation for out-of-range clusters, logged once per hit.
func (c *Catalog) AffinityScore(cluster int, area model.NeedArea) float64 {
	coeff, ok := c.affinity[affinityKey{cluster, area}]
	if !ok {
		zap.L().Warn("catalog: no affinity entry, using neutral score",
			zap.Int("cluster", cluster),
			zap.String("need_area", string(area)),
		)
		return NeutralScore
	}
	return coeff * 100
}
