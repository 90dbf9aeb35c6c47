// README: Depot catalog (sources and companies) and customer stations.
package catalog

import (
	"strings"
	"time"

	"fuelhaul/internal/types"
)

type DepotName string

const (
	DepotTanga  DepotName = "Tanga"
	DepotDar    DepotName = "Dar"
	DepotMtwara DepotName = "Mtwara"
)

var knownDepots = []DepotName{DepotTanga, DepotDar, DepotMtwara}

// ParseDepot matches v against the known depots, ignoring case and surrounding space.
func ParseDepot(v string) (DepotName, bool) {
	v = strings.TrimSpace(v)
	for _, d := range knownDepots {
		if strings.EqualFold(string(d), v) {
			return d, true
		}
	}
	return "", false
}

type Company struct {
	Name     string       `json:"name"`
	Location *types.Point `json:"location,omitempty"`
}

type Source struct {
	Name      string    `json:"name"`
	Companies []Company `json:"companies"`
}

type Depot struct {
	Name    DepotName `json:"name"`
	Sources []Source  `json:"sources"`
}

func (d Depot) company(source, company string) (Company, bool) {
	for _, s := range d.Sources {
		if !sameName(s.Name, source) {
			continue
		}
		for _, c := range s.Companies {
			if sameName(c.Name, company) {
				return c, true
			}
		}
	}
	return Company{}, false
}

type Station struct {
	ID         types.ID    `json:"id"`
	CustomerID types.ID    `json:"customer_id"`
	Name       string      `json:"name"`
	Label      string      `json:"label"`
	Region     string      `json:"region"`
	District   string      `json:"district"`
	Location   types.Point `json:"location"`
	CreatedAt  time.Time   `json:"created_at"`
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
