package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/helios-advisory/nbo-cli/internal/model"
)

// catalogFile is the YAML shape of an external catalog override.
type catalogFile struct {
	Products []ProductInfo              `yaml:"products"`
	Affinity map[int]map[string]float64 `yaml:"affinity"`
}

// Default returns the built-in reference catalog: the five sellable products
// and the 7-cluster affinity table.
func Default() *Catalog {
	return New(defaultProducts(), defaultAffinity())
}

// LoadFile reads a catalog override from a YAML file. Both tables must be
// present and valid; a broken reference file is a configuration error, not
// something to degrade around.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}
	if len(f.Products) == 0 {
		return nil, eris.Errorf("catalog: %s has no products", path)
	}

	for _, p := range f.Products {
		switch p.NeedArea {
		case model.NeedProtection, model.NeedSavings, model.NeedPension:
		default:
			return nil, eris.Errorf("catalog: product %q has unknown need area %q", p.Name, p.NeedArea)
		}
		if p.Profitability < 0 || p.Profitability > 1 {
			return nil, eris.Errorf("catalog: product %q profitability %.3f outside [0,1]", p.Name, p.Profitability)
		}
	}

	affinity := make(map[int]map[model.NeedArea]float64, len(f.Affinity))
	for cluster, areas := range f.Affinity {
		m := make(map[model.NeedArea]float64, len(areas))
		for area, coeff := range areas {
			if coeff < 0 || coeff > 1 {
				return nil, eris.Errorf("catalog: affinity for cluster %d area %q is %.3f, outside [0,1]", cluster, area, coeff)
			}
			m[model.NeedArea(area)] = coeff
		}
		affinity[cluster] = m
	}

	return New(f.Products, affinity), nil
}

func defaultProducts() []ProductInfo {
	return []ProductInfo{
		{
			Name:          "Assicurazione Casa e Famiglia: Casa Serena",
			NeedArea:      model.NeedProtection,
			AnnualMargin:  320,
			Profitability: 0.58,
		},
		{
			Name:          "Polizza Salute e Infortuni: Salute Protetta",
			NeedArea:      model.NeedProtection,
			AnnualMargin:  450,
			Profitability: 0.72,
		},
		{
			Name:          "Polizza Vita a Premio Unico: Futuro Sicuro",
			NeedArea:      model.NeedSavings,
			AnnualMargin:  980,
			Profitability: 0.95,
		},
		{
			Name:          "Piano di Accumulo: Crescita Costante",
			NeedArea:      model.NeedSavings,
			AnnualMargin:  610,
			Profitability: 0.81,
		},
		{
			Name:          "Fondo Pensione Aperto: Domani Sereno",
			NeedArea:      model.NeedPension,
			AnnualMargin:  540,
			Profitability: 0.67,
		},
	}
}

// defaultAffinity maps the seven NBA clusters to per-need-area purchase
// affinity coefficients.
func defaultAffinity() map[int]map[model.NeedArea]float64 {
	return map[int]map[model.NeedArea]float64{
		1: {model.NeedProtection: 0.45, model.NeedSavings: 0.82, model.NeedPension: 0.30},
		2: {model.NeedProtection: 0.60, model.NeedSavings: 0.55, model.NeedPension: 0.75},
		3: {model.NeedProtection: 0.92, model.NeedSavings: 0.33, model.NeedPension: 0.48},
		4: {model.NeedProtection: 0.38, model.NeedSavings: 0.70, model.NeedPension: 0.88},
		5: {model.NeedProtection: 0.74, model.NeedSavings: 0.41, model.NeedPension: 0.26},
		6: {model.NeedProtection: 0.52, model.NeedSavings: 0.64, model.NeedPension: 0.57},
		7: {model.NeedProtection: 0.29, model.NeedSavings: 0.90, model.NeedPension: 0.66},
	}
}
