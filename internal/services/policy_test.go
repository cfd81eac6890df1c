package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", "Abc12345!", true},
		{"valid with brackets", "pass0word[", true},
		{"too short", "Ab1!", false},
		{"no digit", "Abcdefg!", false},
		{"no letter", "12345678!", false},
		{"no symbol", "Abc12345", false},
		{"symbol outside the set", "Abc12345 ", false},
		{"exactly eight", "a1!bcdef", true},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateUsernameFormat(t *testing.T) {
	assert.NoError(t, ValidateUsernameFormat("abc123"))
	assert.NoError(t, ValidateUsernameFormat("a_b_c"))
	assert.NoError(t, ValidateUsernameFormat("A"))

	assert.Error(t, ValidateUsernameFormat(""))
	assert.Error(t, ValidateUsernameFormat("12345"), "must contain a letter")
	assert.Error(t, ValidateUsernameFormat("____"), "must contain a letter")
	assert.Error(t, ValidateUsernameFormat("with space"))
	assert.Error(t, ValidateUsernameFormat("dash-ed"))
}

func TestValidateEmailDomain(t *testing.T) {
	allowed := []string{"gmail.com", "yahoo.com"}

	assert.NoError(t, ValidateEmailDomain("a@gmail.com", allowed))
	assert.NoError(t, ValidateEmailDomain("a@GMAIL.COM", allowed))
	assert.NoError(t, ValidateEmailDomain("b@yahoo.com", allowed))

	assert.Error(t, ValidateEmailDomain("a@outlook.com", allowed))
	assert.Error(t, ValidateEmailDomain("not-an-email", allowed))
	assert.Error(t, ValidateEmailDomain("@gmail.com", allowed))
	assert.Error(t, ValidateEmailDomain("a@", allowed))
}

func TestPasswordsMatch(t *testing.T) {
	assert.True(t, PasswordsMatch("same", "same"))
	assert.False(t, PasswordsMatch("same", "different"))
}
