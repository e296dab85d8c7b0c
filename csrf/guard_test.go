package csrf

import (
	"errors"
	"testing"
)

func TestNewTokenProperties(t *testing.T) {
	first, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	second, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	if len(first) != 43 {
		t.Fatalf("token length = %d, want 43", len(first))
	}
	if first == second {
		t.Fatal("two tokens must not collide")
	}
}

func TestValidate(t *testing.T) {
	session, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	other, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	cases := []struct {
		name    string
		session string
		header  string
		body    string
		wantOK  bool
	}{
		{"header match", session, session, "", true},
		{"body match", session, "", session, true},
		{"both match", session, session, session, true},
		{"header wrong body right", session, other, session, true},
		{"both wrong", session, other, other, false},
		{"both empty", session, "", "", false},
		{"empty session rejects everything", "", session, session, false},
		{"empty session empty copies", "", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.session, tc.header, tc.body)
			if tc.wantOK && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.wantOK && !errors.Is(err, ErrMismatch) {
				t.Fatalf("got %v, want ErrMismatch", err)
			}
		})
	}
}
