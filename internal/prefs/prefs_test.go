package prefs

import "testing"

func TestNewInMemoryStore_SeedsDefaults(t *testing.T) {
	s := NewInMemoryStore()
	if got := s.GetInt(KeyCDPPort); got != 9000 {
		t.Errorf("KeyCDPPort default = %d, want 9000", got)
	}
	if got := s.GetInt(KeyMCPPort); got != 9100 {
		t.Errorf("KeyMCPPort default = %d, want 9100", got)
	}
	if got := s.GetInt(KeyExtensionPort); got != 9300 {
		t.Errorf("KeyExtensionPort default = %d, want 9300", got)
	}
	if s.GetBool(KeyAllowRemoteInMCP) {
		t.Error("KeyAllowRemoteInMCP default should be false")
	}
	if s.GetBool(KeyRestartRequested) {
		t.Error("KeyRestartRequested default should be false")
	}
	if s.GetString(KeyVersion) != "" {
		t.Error("KeyVersion default should be empty")
	}
}

func TestInMemoryStore_SetThenGet(t *testing.T) {
	s := NewInMemoryStore()
	s.SetInt(KeyMCPPort, 9101)
	if got := s.GetInt(KeyMCPPort); got != 9101 {
		t.Errorf("GetInt after SetInt = %d, want 9101", got)
	}

	s.SetBool(KeyRestartRequested, true)
	if !s.GetBool(KeyRestartRequested) {
		t.Error("GetBool after SetBool(true) should be true")
	}

	s.SetString(KeyVersion, "2.1.0")
	if got := s.GetString(KeyVersion); got != "2.1.0" {
		t.Errorf("GetString after SetString = %q, want 2.1.0", got)
	}
}

func TestInMemoryStore_MissingKeyReturnsZeroValue(t *testing.T) {
	s := NewInMemoryStore()
	if got := s.GetInt("no.such.key"); got != 0 {
		t.Errorf("GetInt on missing key = %d, want 0", got)
	}
	if s.GetBool("no.such.key") {
		t.Error("GetBool on missing key should be false")
	}
	if got := s.GetString("no.such.key"); got != "" {
		t.Errorf("GetString on missing key = %q, want empty", got)
	}
}

func TestInMemoryStore_TypeMismatchReturnsZeroValue(t *testing.T) {
	s := NewInMemoryStore()
	// KeyVersion is stored as a string; asking for it as an int should not
	// panic and should fall back to the zero value.
	if got := s.GetInt(KeyVersion); got != 0 {
		t.Errorf("GetInt on a string-valued key = %d, want 0", got)
	}
}
