package question

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed countries.yaml
var countriesYAML []byte

// Country is one entry in the fixed reference list questions are drawn from.
type Country struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// countries is the shared reference list. Every client ships the same list,
// so the same seed selects the same entries everywhere.
var countries = mustLoadCountries()

// Countries returns a copy of the reference list.
func Countries() []Country {
	out := make([]Country, len(countries))
	copy(out, countries)
	return out
}

func mustLoadCountries() []Country {
	var doc struct {
		Countries []Country `yaml:"countries"`
	}
	if err := yaml.Unmarshal(countriesYAML, &doc); err != nil {
		panic(fmt.Sprintf("question: parse embedded country list: %v", err))
	}
	if len(doc.Countries) < OptionsPerRound+RoundsPerMatch {
		panic(fmt.Sprintf("question: embedded country list too small: %d entries", len(doc.Countries)))
	}
	return doc.Countries
}
