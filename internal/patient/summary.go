package patient

const (
	GenderMale   = "Male"
	GenderFemale = "Female"
)

// Summary holds dashboard counts. Male+Female may be less than Total because
// gender is free text.
type Summary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	Male     int `json:"male"`
	Female   int `json:"female"`
}

// Summarize counts patients in a snapshot.
func Summarize(patients []*Patient) Summary {
	var s Summary
	for _, p := range patients {
		s.Total++
		if p.Critical {
			s.Critical++
		}
		switch p.Gender {
		case GenderMale:
			s.Male++
		case GenderFemale:
			s.Female++
		}
	}
	return s
}
