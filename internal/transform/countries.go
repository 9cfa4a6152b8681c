package transform

import "strings"

// countryNames maps the ISO codes seen on marketplace addresses to
// the human-readable names the accounting API expects. Unknown codes
// pass through unchanged.
var countryNames = map[string]string{
	"RO": "Romania",
	"BG": "Bulgaria",
	"HU": "Hungary",
	"MD": "Moldova",
	"DE": "Germany",
	"AT": "Austria",
	"FR": "France",
	"IT": "Italy",
	"ES": "Spain",
	"PT": "Portugal",
	"PL": "Poland",
	"CZ": "Czech Republic",
	"SK": "Slovakia",
	"NL": "Netherlands",
	"BE": "Belgium",
	"GR": "Greece",
	"TR": "Turkey",
	"GB": "United Kingdom",
	"US": "United States",
}

func countryName(code string) string {
	if name, ok := countryNames[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return name
	}
	return code
}
