package patient

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used for dateOfBirth.
const DateLayout = "2006-01-02"

// MaxMedicalIDLen bounds medicalId in bytes. Every backend indexes or keys on
// it, and 200 fits the Couchbase key limit and the Postgres btree row limit.
const MaxMedicalIDLen = 200

// noNUL rejects strings that Postgres TEXT and JSONB cannot store.
func noNUL(field, v string) error {
	if strings.ContainsRune(v, 0) {
		return invalid(field, "must not contain NUL characters")
	}
	return nil
}

// NormalizeRecord returns the canonical form of a submitted record. Fields that
// only make sense under a flag are cleared when the flag is off.
func NormalizeRecord(r Record) (Record, error) {
	if !r.Admitted {
		r.AdmittedDays = 0
		r.Discharged = false
		r.DateDischarged = ""
	} else {
		if r.AdmittedDays < 0 {
			return Record{}, invalid("admittedDays", "must not be negative")
		}
		if !r.Discharged {
			r.DateDischarged = ""
		}
	}
	if !r.TestsDone {
		r.TestsDetails = ""
	}
	for _, f := range []struct{ name, value string }{
		{"diagnosis", r.Diagnosis},
		{"dateDischarged", r.DateDischarged},
		{"medication", r.Medication},
		{"testsDetails", r.TestsDetails},
	} {
		if err := noNUL(f.name, f.value); err != nil {
			return Record{}, err
		}
	}
	return r, nil
}

// ValidateDemographics checks the field rules shared by create and update.
// now is used for the date-of-birth check.
func ValidateDemographics(d Demographics, now time.Time) error {
	if strings.TrimSpace(d.FirstName) == "" {
		return invalid("firstName", "is required")
	}
	if strings.TrimSpace(d.LastName) == "" {
		return invalid("lastName", "is required")
	}
	if strings.TrimSpace(d.MedicalID) == "" {
		return invalid("medicalId", "is required")
	}
	if len(d.MedicalID) > MaxMedicalIDLen {
		return invalid("medicalId", fmt.Sprintf("must be at most %d bytes", MaxMedicalIDLen))
	}
	for _, f := range []struct{ name, value string }{
		{"firstName", d.FirstName},
		{"lastName", d.LastName},
		{"gender", d.Gender},
		{"medicalId", d.MedicalID},
	} {
		if err := noNUL(f.name, f.value); err != nil {
			return err
		}
	}
	if d.DateOfBirth != "" {
		dob, err := time.Parse(DateLayout, d.DateOfBirth)
		if err != nil {
			return invalid("dateOfBirth", "must be a YYYY-MM-DD date")
		}
		today := now.UTC().Truncate(24 * time.Hour)
		if dob.After(today) {
			return invalid("dateOfBirth", "must not be in the future")
		}
	}
	for _, c := range d.ContactNumber {
		if c < '0' || c > '9' {
			return invalid("contactNumber", "must contain digits only")
		}
	}
	return nil
}
