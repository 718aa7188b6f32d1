package identity

import "fmt"

// SeatCategory is one appointment type offered by the provider. The value is
// the opaque option code the category dropdown submits.
type SeatCategory string

// Category codes from the provider's appointment form.
const (
	Legalization   SeatCategory = "1174" // Legalization and notary certificates
	Passport       SeatCategory = "1173" // Passport/ID card
	PopulationData SeatCategory = "1175" // Registration for population data
	Student        SeatCategory = "1172" // Residence permit STUDENT
	Family         SeatCategory = "1205" // Residence permit FAMILY
	Work           SeatCategory = "1171" // Residence permit WORK
	Visa           SeatCategory = "1206" // Schengen visa
)

var categoryNames = map[SeatCategory]string{
	Legalization:   "LEGALIZATION",
	Passport:       "PASSPORT",
	PopulationData: "POPULATION DATA",
	Student:        "STUDENT",
	Family:         "FAMILY",
	Work:           "WORK",
	Visa:           "SCHENGEN VISA",
}

// Name returns the human-readable label used in notifications.
func (c SeatCategory) Name() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

// ParseCategory resolves a config label like "student" or a raw code to a
// known category.
func ParseCategory(s string) (SeatCategory, error) {
	for code, name := range categoryNames {
		if name == s || string(code) == s {
			return code, nil
		}
	}
	switch s {
	case "family":
		return Family, nil
	case "student":
		return Student, nil
	case "work":
		return Work, nil
	case "visa":
		return Visa, nil
	case "legalization":
		return Legalization, nil
	case "passport":
		return Passport, nil
	case "population_data":
		return PopulationData, nil
	}
	return "", fmt.Errorf("unknown seat category %q", s)
}
