// Package identity generates throwaway registration identities and holds the
// applicant data submitted to the booking form.
package identity

import (
	"fmt"
	"strings"

	"github.com/bxcodec/faker/v4"
	random "github.com/mazen160/go-random"
)

// Identity is one throwaway account. Generated fresh per registration attempt
// and discarded when its session ends.
type Identity struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Password    string
}

// ApplicantInfo is the data entered into the applicant form. Supplied once
// per booking attempt and immutable for the session.
type ApplicantInfo struct {
	PassportNumber string
	DateOfBirth    string // DD/MM/YYYY
	PassportExpiry string // DD/MM/YYYY
	Nationality    string
	FirstName      string
	LastName       string
	Gender         Gender
	DialCode       string
	ContactNumber  string
	Email          string
}

// Gender holds the provider's option value for the gender dropdown.
type Gender string

// Gender codes used by the applicant form.
const (
	Male   Gender = "1"
	Female Gender = "2"
	Other  Gender = "3"
)

const (
	passwordLength  = 11
	passwordCharset = "$@#$!%*?&" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"abcdefghijklmnopqrstuvwxyz" +
		"0123456789"
)

// New generates a fresh fake person with a strong random password.
func New() (Identity, error) {
	first := faker.FirstName()
	last := faker.LastName()

	password, err := random.Random(passwordLength, passwordCharset, true)
	if err != nil {
		return Identity{}, fmt.Errorf("generate password: %w", err)
	}
	digits, err := random.Random(10, "0123456789", true)
	if err != nil {
		return Identity{}, fmt.Errorf("generate phone number: %w", err)
	}

	return Identity{
		FirstName:   first,
		LastName:    last,
		Email:       email(first, last),
		PhoneNumber: digits,
		Password:    password,
	}, nil
}

// email builds an address from the person's name so the registration form
// fields stay consistent with each other.
func email(first, last string) string {
	suffix, err := random.Random(4, "0123456789", false)
	if err != nil {
		suffix = "1234"
	}
	user := strings.ToLower(first + "." + last + suffix)
	user = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			return r
		default:
			return -1
		}
	}, user)
	return user + "@gmail.com"
}
