package smtp

import "testing"

func TestAuthenticator_Enabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{"both set", "user", "pass", true},
		{"username only", "user", "", false},
		{"password only", "", "pass", false},
		{"neither", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := NewAuthenticator(tt.username, tt.password)
			if got := a.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthenticator_Verify(t *testing.T) {
	t.Parallel()

	a := NewAuthenticator("testuser", "testpass")

	tests := []struct {
		name     string
		identity string
		username string
		password string
		wantErr  bool
	}{
		{"valid", "", "testuser", "testpass", false},
		{"identity matches username", "testuser", "testuser", "testpass", false},
		{"identity differs", "admin", "testuser", "testpass", true},
		{"wrong password", "", "testuser", "wrongpass", true},
		{"wrong username", "", "wronguser", "testpass", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := a.Verify(tt.identity, tt.username, tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
