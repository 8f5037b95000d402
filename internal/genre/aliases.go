package genre

// canonicalAliases maps common slug variations to a canonical slug, so a
// book filed under "Sci-Fi" is found by a filter on "Science Fiction".
var canonicalAliases = map[string]string{
	// Science fiction
	"sci-fi":               "science-fiction",
	"scifi":                "science-fiction",
	"sf":                   "science-fiction",
	"science-fiction":      "science-fiction",
	"science-fantasy":      "science-fiction",
	"anticipation":         "science-fiction",
	"space-opera":          "science-fiction",
	"hard-science-fiction": "science-fiction",

	// Fantasy
	"fantasy":        "fantasy",
	"fantastique":    "fantasy",
	"high-fantasy":   "fantasy",
	"epic-fantasy":   "fantasy",
	"heroic-fantasy": "fantasy",

	// Crime
	"policier":  "mystery",
	"polar":     "mystery",
	"crime":     "mystery",
	"detective": "mystery",
	"mystery":   "mystery",
	"thriller":  "thriller",
	"suspense":  "thriller",

	// Young adult
	"ya":          "young-adult",
	"teen":        "young-adult",
	"jeunesse":    "young-adult",
	"young-adult": "young-adult",

	// Non-fiction
	"biographie":              "biography",
	"biography":               "biography",
	"memoir":                  "biography",
	"essai":                   "non-fiction",
	"essay":                   "non-fiction",
	"nonfiction":              "non-fiction",
	"non-fiction":             "non-fiction",
	"self-help":               "self-help",
	"selfhelp":                "self-help",
	"developpement-personnel": "self-help",

	// Literary
	"roman":              "fiction",
	"novel":              "fiction",
	"literary-fiction":   "fiction",
	"litterature":        "fiction",
	"historical":         "historical-fiction",
	"roman-historique":   "historical-fiction",
	"historical-fiction": "historical-fiction",

	// Other
	"horror":         "horror",
	"horreur":        "horror",
	"bd":             "comics",
	"bande-dessinee": "comics",
	"manga":          "comics",
	"comics":         "comics",
	"poesie":         "poetry",
	"poetry":         "poetry",
}

// Normalize returns the canonical slug for a raw genre label. Labels with
// no known alias normalize to their own slug.
func Normalize(raw string) string {
	slug := Slugify(raw)
	if canonical, ok := canonicalAliases[slug]; ok {
		return canonical
	}
	return slug
}
