package sources

import "github.com/minasamir1401/werete/internal/items"

// Registry is the static set of built-in adapters, grouped by domain in
// their default priority order.
type Registry struct {
	byDomain map[items.Domain][]Adapter
}

// NewRegistry registers every built-in adapter. The order within a domain is
// the default priority order.
func NewRegistry(c *Client) *Registry {
	return RegistryOf(
		NewGoldEra(c),
		NewIsagha(c),
		NewGoldBullion(c),
		NewEgyptGoldPriceToday(c),
		NewGoldPriceLive(c),
		NewSouqPriceToday(c),

		NewGoldPriceToday(c),

		NewTa3weemBank(c),
		NewEgratesBank(c),
		NewBankLiveBank(c),

		NewTa3weemAllBanks(c),
		NewEgratesAllBanks(c),
		NewBankLiveAllBanks(c),

		NewSafeHavenHub(c),
		NewGoldPriceLiveSilver(c),
	)
}

// RegistryOf builds a registry from adapters, keeping argument order as the
// default order of each domain. Later duplicates of a name are ignored.
func RegistryOf(adapters ...Adapter) *Registry {
	r := &Registry{byDomain: map[items.Domain][]Adapter{}}
	for _, a := range adapters {
		if _, dup := r.Lookup(a.Domain(), a.Name()); dup {
			continue
		}
		r.byDomain[a.Domain()] = append(r.byDomain[a.Domain()], a)
	}
	return r
}

// Defaults returns the domain's adapters in default order.
func (r *Registry) Defaults(d items.Domain) []Adapter {
	src := r.byDomain[d]
	out := make([]Adapter, len(src))
	copy(out, src)
	return out
}

func (r *Registry) DefaultNames(d items.Domain) []string {
	src := r.byDomain[d]
	out := make([]string, 0, len(src))
	for _, a := range src {
		out = append(out, a.Name())
	}
	return out
}

func (r *Registry) Lookup(d items.Domain, name string) (Adapter, bool) {
	for _, a := range r.byDomain[d] {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// All returns every registered adapter, domains in catalog order.
func (r *Registry) All() []Adapter {
	var out []Adapter
	for _, spec := range items.Domains {
		out = append(out, r.byDomain[spec.Domain]...)
	}
	return out
}
