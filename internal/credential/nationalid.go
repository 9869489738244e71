package credential

import (
	"strings"
	"time"
)

// NationalIDResult carries the decoded fields of a valid national identity
// number. Invalid numbers carry only the reason.
type NationalIDResult struct {
	Valid       bool      `json:"valid"`
	BirthDate   time.Time `json:"birth_date,omitempty"`
	Sex         string    `json:"sex,omitempty"`
	Citizenship string    `json:"citizenship,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// ValidateNationalID validates a 13-digit national identity number:
// checksum first, then the embedded birth date must be a real calendar date.
// Two-digit years up to 30 map to the 2000s, the rest to the 1900s. Digit 7
// encodes sex (5-9 male), digit 11 citizenship (0 citizen).
func ValidateNationalID(input string) NationalIDResult {
	id := strings.TrimSpace(input)
	if len(id) != 13 {
		return NationalIDResult{Reason: "identity number must be exactly 13 digits"}
	}
	digits := make([]int, 13)
	for i, r := range id {
		if r < '0' || r > '9' {
			return NationalIDResult{Reason: "identity number must contain only digits"}
		}
		digits[i] = int(r - '0')
	}

	if !checksumValid(digits) {
		return NationalIDResult{Reason: "identity number checksum failed"}
	}

	year := digits[0]*10 + digits[1]
	month := digits[2]*10 + digits[3]
	day := digits[4]*10 + digits[5]
	if year <= 30 {
		year += 2000
	} else {
		year += 1900
	}
	birth := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if birth.Year() != year || birth.Month() != time.Month(month) || birth.Day() != day {
		return NationalIDResult{Reason: "identity number encodes an invalid birth date"}
	}

	sex := "female"
	if digits[6] >= 5 {
		sex = "male"
	}
	citizenship := "permanent_resident"
	if digits[10] == 0 {
		citizenship = "citizen"
	}

	return NationalIDResult{
		Valid:       true,
		BirthDate:   birth,
		Sex:         sex,
		Citizenship: citizenship,
	}
}

// checksumValid runs the Luhn variant over the first 12 digits: every second
// digit doubled with digits above 9 folded back, check digit is the tens
// complement of the sum.
func checksumValid(digits []int) bool {
	sum := 0
	for i := 0; i < 12; i++ {
		d := digits[i]
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return (10-sum%10)%10 == digits[12]
}
