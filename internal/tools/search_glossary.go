package tools

import (
	"context"
	"strings"
)

const glossaryLimit = 3

type glossaryTerm struct {
	term, description string
}

var exoplanetTerms = []glossaryTerm{
	{"pl_orbper", "Orbital Period - The time it takes for a planet to complete one orbit around its host star, in days"},
	{"pl_rade", "Planet Radius - The radius of the planet in Earth radii"},
	{"pl_bmasse", "Planet Mass - The best available mass estimate of the planet in Earth masses"},
	{"pl_eqt", "Equilibrium Temperature - The temperature of the planet modeled as a black body, in Kelvin"},
	{"pl_insol", "Insolation Flux - The stellar flux the planet receives, relative to Earth"},
	{"st_teff", "Stellar Effective Temperature - The surface temperature of the host star"},
	{"st_rad", "Stellar Radius - The radius of the host star in solar radii"},
	{"st_mass", "Stellar Mass - The mass of the host star in solar masses"},
	{"st_logg", "Stellar Surface Gravity - The logarithm of the surface gravity of the host star"},
	{"sy_dist", "System Distance - The distance to the planetary system in parsecs"},
	{"sy_vmag", "V-band Magnitude - The apparent brightness of the system in the V-band"},
	{"sy_kmag", "K-band Magnitude - The apparent brightness of the system in the K-band"},
	{"sy_gaiamag", "Gaia Magnitude - The apparent brightness measured by the Gaia spacecraft"},
	{"disc_facility", "Discovery Facility - The observatory or mission that discovered the planet"},
	{"k2", "K2 Mission - Extended mission of the Kepler Space Telescope"},
	{"toi", "TESS Objects of Interest - Candidate exoplanets identified by TESS"},
	{"tess", "Transiting Exoplanet Survey Satellite - NASA space telescope"},
	{"kepler", "Kepler Space Telescope - NASA mission to discover exoplanets"},
	{"transit", "Transit Method - Detection method where planet passes in front of star"},
	{"habitable zone", "The region around a star where liquid water could exist on a planet surface"},
}

// GlossaryBackend answers from a fixed glossary of archive columns and mission terms.
type GlossaryBackend struct{}

func (GlossaryBackend) Name() string { return "NASA Exoplanet Archive" }
func (GlossaryBackend) Remote() bool { return false }

func (g GlossaryBackend) Search(ctx context.Context, query, hint string) ([]Hit, error) {
	q := strings.ToLower(query)
	words := strings.Fields(q)

	var hits []Hit
	for _, t := range exoplanetTerms {
		if !glossaryMatch(t.term, q, words) {
			continue
		}
		hits = append(hits, Hit{
			Title:   "NASA Exoplanet Archive: " + strings.ToUpper(t.term),
			Snippet: t.description,
			URL:     "https://exoplanetarchive.ipac.caltech.edu/docs/data.html#" + strings.ReplaceAll(t.term, " ", "_"),
			Source:  g.Name(),
		})
		if len(hits) == glossaryLimit {
			break
		}
	}
	return hits, nil
}

// glossaryMatch accepts the term anywhere in the query, or a query word of at least three
// characters inside the term.
func glossaryMatch(term, query string, words []string) bool {
	if strings.Contains(query, term) {
		return true
	}
	for _, w := range words {
		if len(w) >= 3 && strings.Contains(term, w) {
			return true
		}
	}
	return false
}
