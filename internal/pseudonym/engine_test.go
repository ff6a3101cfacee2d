package pseudonym

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

const testKey = "super-secret-key-at-least-32-chars-long"

// goldenDefault is the canonical pseudonym for
// Derive("user123", "shopping-app", "default") under testKey. Recorded as a
// regression fixture; changing it breaks output compatibility.
const goldenDefault = "ck_LXG3lkaA_4kKGJzy"

func mustEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testKey)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestNew(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		e, err := New(testKey)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if e == nil {
			t.Fatal("New() returned nil engine")
		}
	})

	t.Run("empty key", func(t *testing.T) {
		if _, err := New(""); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("New(\"\") error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("short key", func(t *testing.T) {
		if _, err := New("short"); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("New(short key) error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("exactly 32 characters", func(t *testing.T) {
		if _, err := New(strings.Repeat("k", 32)); err != nil {
			t.Errorf("New(32-char key) error = %v", err)
		}
	})
}

func TestDerive(t *testing.T) {
	e := mustEngine(t)

	t.Run("golden vector", func(t *testing.T) {
		got, err := e.Derive("user123", "shopping-app", "default")
		if err != nil {
			t.Fatalf("Derive() error = %v", err)
		}
		if got != goldenDefault {
			t.Errorf("Derive() = %q, want %q", got, goldenDefault)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		first, err := e.Derive("user123", "shopping-app", "id")
		if err != nil {
			t.Fatalf("Derive() error = %v", err)
		}
		for i := 0; i < 10; i++ {
			got, err := e.Derive("user123", "shopping-app", "id")
			if err != nil {
				t.Fatalf("Derive() error = %v", err)
			}
			if got != first {
				t.Errorf("Derive() = %q on repeat, want %q", got, first)
			}
		}
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		trimmed, _ := e.Derive("user123", "shopping-app", "default")
		padded, err := e.Derive("  user123  ", "\tshopping-app\n", " default ")
		if err != nil {
			t.Fatalf("Derive() error = %v", err)
		}
		if padded != trimmed {
			t.Errorf("Derive() with padding = %q, want %q", padded, trimmed)
		}
	})

	t.Run("client isolation", func(t *testing.T) {
		a, _ := e.Derive("user123", "shopping-app", "default")
		b, _ := e.Derive("user123", "billing-app", "default")
		if a == b {
			t.Errorf("same pseudonym %q across different clients", a)
		}
	})

	t.Run("data type isolation", func(t *testing.T) {
		a, _ := e.Derive("user123", "shopping-app", "email")
		b, _ := e.Derive("user123", "shopping-app", "name")
		if a == b {
			t.Errorf("same pseudonym %q across different data types", a)
		}
	})

	t.Run("key sensitivity", func(t *testing.T) {
		other, err := New("another-secret-key-that-is-32-chars!!")
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		a, _ := e.Derive("user123", "shopping-app", "default")
		b, _ := other.Derive("user123", "shopping-app", "default")
		if a == b {
			t.Errorf("same pseudonym %q under different keys", a)
		}
	})

	t.Run("format invariant", func(t *testing.T) {
		inputs := [][3]string{
			{"user123", "shopping-app", "default"},
			{"a", "b", "c"},
			{"user with spaces", "client/with/slashes", "data.type"},
			{"ünïcödé", "клиент", "数据"},
		}
		for _, in := range inputs {
			got, err := e.Derive(in[0], in[1], in[2])
			if err != nil {
				t.Fatalf("Derive(%q, %q, %q) error = %v", in[0], in[1], in[2], err)
			}
			if !e.Verify(got) {
				t.Errorf("Verify(%q) = false for derived pseudonym", got)
			}
		}
	})
}

func TestDeriveValidation(t *testing.T) {
	e := mustEngine(t)

	tests := []struct {
		name     string
		userID   string
		clientID string
		dataType string
		field    string
	}{
		{"empty userID", "", "app", "id", "userId"},
		{"whitespace userID", "   ", "app", "id", "userId"},
		{"empty clientID", "user", "", "id", "clientId"},
		{"whitespace clientID", "user", "\t\n", "id", "clientId"},
		{"empty dataType", "user", "app", "", "dataType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Derive(tt.userID, tt.clientID, tt.dataType)
			if !errors.Is(err, ErrEmptyField) {
				t.Fatalf("Derive() error = %v, want ErrEmptyField", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name field %q", err, tt.field)
			}
		})
	}
}

func TestDeriveDefault(t *testing.T) {
	e := mustEngine(t)

	explicit, _ := e.Derive("user123", "shopping-app", DataTypeDefault)
	got, err := e.DeriveDefault("user123", "shopping-app")
	if err != nil {
		t.Fatalf("DeriveDefault() error = %v", err)
	}
	if got != explicit {
		t.Errorf("DeriveDefault() = %q, want %q", got, explicit)
	}
}

func TestVerify(t *testing.T) {
	e := mustEngine(t)

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"valid pseudonym", goldenDefault, true},
		{"valid with dash and underscore", "ck_abcDEF123-_xyz9Z", true},
		{"empty string", "", false},
		{"missing prefix", "LXG3lkaA_4kKGJzy", false},
		{"wrong prefix", "pk_LXG3lkaA_4kKGJzy", false},
		{"too short", "ck_LXG3lkaA", false},
		{"too long", goldenDefault + "x", false},
		{"invalid character plus", "ck_LXG3lkaA+4kKGJzy", false},
		{"invalid character slash", "ck_LXG3lkaA/4kKGJzy", false},
		{"invalid character equals", "ck_LXG3lkaA_4kKGJz=", false},
		{"prefix only", "ck_", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Verify(tt.candidate); got != tt.want {
				t.Errorf("Verify(%q) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}

// Verify is a format check only: a well-formed candidate that this engine
// never produced still verifies, because the truncated digest cannot be
// re-checked against the key.
func TestVerifyDoesNotProveProvenance(t *testing.T) {
	e := mustEngine(t)
	if !e.Verify("ck_0000000000000000") {
		t.Error("well-formed foreign candidate should verify")
	}
}

func TestConcurrentDerive(t *testing.T) {
	e := mustEngine(t)

	want, err := e.Derive("user123", "shopping-app", "default")
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := e.Derive("user123", "shopping-app", "default")
				if err != nil {
					t.Errorf("Derive() error = %v", err)
					return
				}
				if got != want {
					t.Errorf("Derive() = %q, want %q", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
}
