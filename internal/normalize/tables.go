package normalize

import (
	"sort"
	"strings"
)

// streetAbbreviations maps lower-case street tokens to their canonical form.
// Canonical values never appear as keys once lower-cased, so expansion is
// idempotent.
var streetAbbreviations = map[string]string{
	// Suffixes
	"aly":  "Alley",
	"ave":  "Avenue",
	"av":   "Avenue",
	"blvd": "Boulevard",
	"cir":  "Circle",
	"ct":   "Court",
	"ctr":  "Center",
	"cv":   "Cove",
	"dr":   "Drive",
	"expy": "Expressway",
	"fwy":  "Freeway",
	"hwy":  "Highway",
	"ln":   "Lane",
	"lp":   "Loop",
	"pkwy": "Parkway",
	"pl":   "Place",
	"plz":  "Plaza",
	"pt":   "Point",
	"rd":   "Road",
	"sq":   "Square",
	"st":   "Street",
	"ter":  "Terrace",
	"trl":  "Trail",
	"xing": "Crossing",

	// Units
	"bldg": "Building",
	"fl":   "Floor",
	"ste":  "Suite",

	// Directionals
	"n":  "N",
	"s":  "S",
	"e":  "E",
	"w":  "W",
	"ne": "NE",
	"nw": "NW",
	"se": "SE",
	"sw": "SW",
}

// stateCodes maps lower-case state and territory names to USPS codes.
var stateCodes = map[string]string{
	"alabama":              "AL",
	"alaska":               "AK",
	"arizona":              "AZ",
	"arkansas":             "AR",
	"california":           "CA",
	"colorado":             "CO",
	"connecticut":          "CT",
	"delaware":             "DE",
	"district of columbia": "DC",
	"florida":              "FL",
	"georgia":              "GA",
	"hawaii":               "HI",
	"idaho":                "ID",
	"illinois":             "IL",
	"indiana":              "IN",
	"iowa":                 "IA",
	"kansas":               "KS",
	"kentucky":             "KY",
	"louisiana":            "LA",
	"maine":                "ME",
	"maryland":             "MD",
	"massachusetts":        "MA",
	"michigan":             "MI",
	"minnesota":            "MN",
	"mississippi":          "MS",
	"missouri":             "MO",
	"montana":              "MT",
	"nebraska":             "NE",
	"nevada":               "NV",
	"new hampshire":        "NH",
	"new jersey":           "NJ",
	"new mexico":           "NM",
	"new york":             "NY",
	"north carolina":       "NC",
	"north dakota":         "ND",
	"ohio":                 "OH",
	"oklahoma":             "OK",
	"oregon":               "OR",
	"pennsylvania":         "PA",
	"rhode island":         "RI",
	"south carolina":       "SC",
	"south dakota":         "SD",
	"tennessee":            "TN",
	"texas":                "TX",
	"utah":                 "UT",
	"vermont":              "VT",
	"virginia":             "VA",
	"washington":           "WA",
	"west virginia":        "WV",
	"wisconsin":            "WI",
	"wyoming":              "WY",

	// Territories
	"american samoa":           "AS",
	"guam":                     "GU",
	"northern mariana islands": "MP",
	"puerto rico":              "PR",
	"u.s. virgin islands":      "VI",
	"virgin islands":           "VI",
}

// countrySynonyms are the spellings folded into the canonical "US" code.
var countrySynonyms = map[string]string{
	"UNITED STATE":  "US",
	"UNITED STATES": "US",
	"US":            "US",
	"USA":           "US",
}

// equivalents groups every lower-case spelling that the abbreviation table
// treats as the same token, keyed by each member.
var equivalents = buildEquivalents(streetAbbreviations)

func buildEquivalents(abbr map[string]string) map[string][]string {
	groups := make(map[string]map[string]struct{})
	for k, v := range abbr {
		canon := strings.ToLower(v)
		g, ok := groups[canon]
		if !ok {
			g = map[string]struct{}{canon: {}}
			groups[canon] = g
		}
		g[k] = struct{}{}
	}

	out := make(map[string][]string)
	for _, g := range groups {
		members := make([]string, 0, len(g))
		for m := range g {
			members = append(members, m)
		}
		sort.Strings(members)
		for _, m := range members {
			out[m] = members
		}
	}
	return out
}
