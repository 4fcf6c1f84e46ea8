package patient

import "time"

// Demographics holds the modifiable fields of a patient.
type Demographics struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	DateOfBirth   string `json:"dateOfBirth"`
	Gender        string `json:"gender"`
	ContactNumber string `json:"contactNumber"`
	MedicalID     string `json:"medicalId"`
	Critical      bool   `json:"critical"`
}

// Record is one medical encounter. It has no identity outside its patient.
type Record struct {
	Diagnosis      string `json:"diagnosis"`
	Admitted       bool   `json:"admitted"`
	AdmittedDays   int    `json:"admittedDays"`
	Discharged     bool   `json:"discharged"`
	DateDischarged string `json:"dateDischarged"`
	Medication     string `json:"medication"`
	TestsDone      bool   `json:"testsDone"`
	TestsDetails   string `json:"testsDetails"`
}

// Patient is the aggregate root persisted by a Store.
type Patient struct {
	ID string `json:"id"`
	Demographics
	Records   []Record  `json:"records"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share the records slice.
func (p *Patient) Clone() *Patient {
	if p == nil {
		return nil
	}
	c := *p
	c.Records = make([]Record, len(p.Records))
	copy(c.Records, p.Records)
	return &c
}

// Draft is the payload accepted when registering a patient.
type Draft struct {
	Demographics
	Records []Record `json:"records,omitempty"`
}

// Patch carries the fields an update wants to change. Nil fields keep the
// current value; a patch with every field set behaves as a full replace.
type Patch struct {
	FirstName     *string `json:"firstName,omitempty"`
	LastName      *string `json:"lastName,omitempty"`
	DateOfBirth   *string `json:"dateOfBirth,omitempty"`
	Gender        *string `json:"gender,omitempty"`
	ContactNumber *string `json:"contactNumber,omitempty"`
	MedicalID     *string `json:"medicalId,omitempty"`
	Critical      *bool   `json:"critical,omitempty"`

	// Version, when set, must match the stored version or the update fails
	// with ErrVersionConflict.
	Version *int64 `json:"version,omitempty"`
}

// Apply merges the patch onto d.
func (p Patch) Apply(d Demographics) Demographics {
	if p.FirstName != nil {
		d.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		d.LastName = *p.LastName
	}
	if p.DateOfBirth != nil {
		d.DateOfBirth = *p.DateOfBirth
	}
	if p.Gender != nil {
		d.Gender = *p.Gender
	}
	if p.ContactNumber != nil {
		d.ContactNumber = *p.ContactNumber
	}
	if p.MedicalID != nil {
		d.MedicalID = *p.MedicalID
	}
	if p.Critical != nil {
		d.Critical = *p.Critical
	}
	return d
}
