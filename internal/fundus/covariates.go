package fundus

import "fmt"

// Sex is encoded the way the CIMT model was trained: 0 female, 1 male.
type Sex int

const (
	SexFemale Sex = 0
	SexMale   Sex = 1
)

func (s Sex) String() string {
	switch s {
	case SexFemale:
		return "female"
	case SexMale:
		return "male"
	}
	return fmt.Sprintf("Sex(%d)", int(s))
}

// ParseSex accepts "female"/"male", "f"/"m" or "0"/"1".
func ParseSex(s string) (Sex, error) {
	switch s {
	case "female", "f", "F", "0":
		return SexFemale, nil
	case "male", "m", "M", "1":
		return SexMale, nil
	}
	return 0, &InvalidInputError{Field: "sex", Reason: fmt.Sprintf("unknown value %q", s)}
}

// Age bounds accepted by the pipeline.
const (
	MinAge = 1
	MaxAge = 150
)

// ClinicalCovariates are the non-image inputs consumed by the CIMT model.
type ClinicalCovariates struct {
	Age int
	Sex Sex
}

// Validate checks the age range and sex enumeration.
func (c ClinicalCovariates) Validate() error {
	if c.Age < MinAge || c.Age > MaxAge {
		return &InvalidInputError{Field: "age", Reason: fmt.Sprintf("%d outside [%d, %d]", c.Age, MinAge, MaxAge)}
	}
	if c.Sex != SexFemale && c.Sex != SexMale {
		return &InvalidInputError{Field: "sex", Reason: fmt.Sprintf("unknown value %d", int(c.Sex))}
	}
	return nil
}

// Vector returns the clinical tensor layout used by the CIMT model:
// [age/100, 1 if male else 0, 0].
func (c ClinicalCovariates) Vector() []float32 {
	male := float32(0)
	if c.Sex == SexMale {
		male = 1
	}
	return []float32{float32(c.Age) / 100, male, 0}
}
