package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRegisterInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   RegisterInput
		msg  string // empty means valid
	}{
		{"valid", RegisterInput{Username: "alice", Email: "alice@x.com", Password: "s3cretpass"}, ""},
		{"missing username", RegisterInput{Email: "alice@x.com", Password: "s3cretpass"}, "username is required"},
		{"username punctuation", RegisterInput{Username: "al.ice", Email: "alice@x.com", Password: "s3cretpass"}, "username may only contain letters and digits"},
		{"long username", RegisterInput{Username: strings.Repeat("a", 33), Email: "alice@x.com", Password: "s3cretpass"}, "username must be at most 32 characters"},
		{"bad email", RegisterInput{Username: "alice", Email: "alice", Password: "s3cretpass"}, "email must be a valid email"},
		{"no digit", RegisterInput{Username: "alice", Email: "alice@x.com", Password: "secretpass"}, "password must be 8-128 characters"},
		{"too short", RegisterInput{Username: "alice", Email: "alice@x.com", Password: "s3cret"}, "password must be 8-128 characters"},
		{"too long", RegisterInput{Username: "alice", Email: "alice@x.com", Password: strings.Repeat("a1", 65)}, "password must be 8-128 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStruct(tt.in)
			if tt.msg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidation)
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestValidate_MultipleFailures(t *testing.T) {
	t.Parallel()

	err := validateStruct(RegisterInput{})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "username is required")
	require.Contains(t, err.Error(), "email is required")
	require.Contains(t, err.Error(), "password is required")
}
