package game

import (
	_ "embed"
	"math/rand/v2"
	"strings"
)

var (
	//go:embed words/adjectives.txt
	adjectivesTxt string
	//go:embed words/nouns.txt
	nounsTxt string

	adjectives = strings.Fields(adjectivesTxt)
	nouns      = strings.Fields(nounsTxt)
)

// RandomName returns an "adjective noun" simulation name drawn from r.
func RandomName(r *rand.Rand) string {
	return adjectives[r.IntN(len(adjectives))] + " " + nouns[r.IntN(len(nouns))]
}
