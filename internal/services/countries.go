package services

// Display names for the country codes the provider sells numbers in.
// Unknown codes fall back to the code itself.
var countryDisplayNames = map[string]string{
	"US": "United States",
	"UK": "United Kingdom",
	"CA": "Canada",
	"AU": "Australia",
	"FR": "France",
	"DE": "Germany",
	"IT": "Italy",
	"ES": "Spain",
	"NL": "Netherlands",
	"SE": "Sweden",
	"NO": "Norway",
	"RU": "Russia",
	"IN": "India",
	"BR": "Brazil",
	"MX": "Mexico",
	"JP": "Japan",
	"CN": "China",
	"KR": "South Korea",
	"SG": "Singapore",
	"HK": "Hong Kong",
	"TH": "Thailand",
	"PH": "Philippines",
	"ID": "Indonesia",
	"MY": "Malaysia",
	"VN": "Vietnam",
	"PK": "Pakistan",
	"BD": "Bangladesh",
	"TR": "Turkey",
	"AE": "United Arab Emirates",
	"SA": "Saudi Arabia",
	"EG": "Egypt",
	"ZA": "South Africa",
	"NG": "Nigeria",
	"KE": "Kenya",
	"GH": "Ghana",
	"UA": "Ukraine",
	"PL": "Poland",
	"CZ": "Czech Republic",
	"HU": "Hungary",
	"RO": "Romania",
	"GR": "Greece",
	"PT": "Portugal",
	"BE": "Belgium",
	"AT": "Austria",
	"CH": "Switzerland",
	"DK": "Denmark",
	"FI": "Finland",
	"IE": "Ireland",
	"NZ": "New Zealand",
}

func countryName(code string) string {
	if name, ok := countryDisplayNames[code]; ok {
		return name
	}
	return code
}
