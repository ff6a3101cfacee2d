package masker

import (
	"strings"
	"testing"

	"github.com/consentkeys/pseudomask/internal/config"
	"github.com/consentkeys/pseudomask/internal/profile"
	"github.com/consentkeys/pseudomask/internal/pseudonym"
)

const testKey = "super-secret-key-at-least-32-chars-long"

func newMasker(t *testing.T, cfg *config.Config) *Masker {
	t.Helper()
	cfg.SecretKey = testKey
	if cfg.ClientID == "" {
		cfg.ClientID = "export-job"
	}
	engine, err := pseudonym.New(cfg.SecretKey)
	if err != nil {
		t.Fatalf("pseudonym.New() error = %v", err)
	}
	synth, err := profile.New(engine, cfg.SynthesizerOptions()...)
	if err != nil {
		t.Fatalf("profile.New() error = %v", err)
	}
	return New(cfg, engine, synth)
}

func TestMaskRow(t *testing.T) {
	t.Run("no config for table", func(t *testing.T) {
		m := newMasker(t, &config.Config{})

		row := map[string]any{"id": 1, "email": "john@example.com"}
		result, err := m.MaskRow("users", row)
		if err != nil {
			t.Fatalf("MaskRow() error = %v", err)
		}
		if result["email"] != "john@example.com" {
			t.Errorf("email should be unchanged, got %v", result["email"])
		}
	})

	t.Run("derive pseudonym rule", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{"external_id": "{{derive.pseudonym}}"}},
			},
		})

		row := map[string]any{"id": 1, "external_id": "user123"}
		result, err := m.MaskRow("users", row)
		if err != nil {
			t.Fatalf("MaskRow() error = %v", err)
		}
		got, ok := result["external_id"].(string)
		if !ok || !strings.HasPrefix(got, pseudonym.Prefix) {
			t.Errorf("external_id = %v, want ck_ pseudonym", result["external_id"])
		}
		if result["id"] != 1 {
			t.Errorf("id should be unchanged, got %v", result["id"])
		}
	})

	t.Run("derive rules are deterministic across tables", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users":  {Columns: map[string]string{"email": "{{derive.email}}"}},
				"orders": {Columns: map[string]string{"customer_email": "{{derive.email}}"}},
			},
		})

		users, err := m.MaskRow("users", map[string]any{"email": "john@example.com"})
		if err != nil {
			t.Fatalf("MaskRow(users) error = %v", err)
		}
		orders, err := m.MaskRow("orders", map[string]any{"customer_email": "john@example.com"})
		if err != nil {
			t.Fatalf("MaskRow(orders) error = %v", err)
		}
		if users["email"] != orders["customer_email"] {
			t.Errorf("same source value masked differently: %v vs %v",
				users["email"], orders["customer_email"])
		}
	})

	t.Run("derive name and address rules", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{
					"name":    "{{derive.name}}",
					"address": "{{derive.address}}",
				}},
			},
		})

		result, err := m.MaskRow("users", map[string]any{
			"name":    "John Smith",
			"address": "1 Real Road",
		})
		if err != nil {
			t.Fatalf("MaskRow() error = %v", err)
		}
		name, _ := result["name"].(string)
		if name == "" || name == "John Smith" {
			t.Errorf("name = %v, want masked value", result["name"])
		}
		addr, _ := result["address"].(string)
		if !strings.Contains(addr, ",") {
			t.Errorf("address = %v, want single-line address", result["address"])
		}
	})

	t.Run("derive rule on empty value yields NULL", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{"email": "{{derive.email}}"}},
			},
		})

		result, err := m.MaskRow("users", map[string]any{"email": ""})
		if err != nil {
			t.Fatalf("MaskRow() error = %v", err)
		}
		if result["email"] != nil {
			t.Errorf("email = %v, want nil", result["email"])
		}
	})

	t.Run("derive rule on non-string value yields NULL", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{"email": "{{derive.email}}"}},
			},
		})

		result, err := m.MaskRow("users", map[string]any{"email": 42})
		if err != nil {
			t.Fatalf("MaskRow() error = %v", err)
		}
		if result["email"] != nil {
			t.Errorf("email = %v, want nil", result["email"])
		}
	})

	t.Run("faker rule", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{"phone": "{{faker.phone}}"}},
			},
		})

		result, err := m.MaskRow("users", map[string]any{"phone": "123-456-7890"})
		if err != nil {
			t.Fatalf("MaskRow() error = %v", err)
		}
		if result["phone"] == "123-456-7890" || result["phone"] == "" {
			t.Errorf("phone = %v, want faked value", result["phone"])
		}
	})

	t.Run("null rule", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{"notes": "null"}},
			},
		})

		result, err := m.MaskRow("users", map[string]any{"notes": "sensitive"})
		if err != nil {
			t.Fatalf("MaskRow() error = %v", err)
		}
		if result["notes"] != nil {
			t.Errorf("notes = %v, want nil", result["notes"])
		}
	})

	t.Run("static value replacement", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{"role": "user"}},
			},
		})

		result, err := m.MaskRow("users", map[string]any{"role": "admin"})
		if err != nil {
			t.Fatalf("MaskRow() error = %v", err)
		}
		if result["role"] != "user" {
			t.Errorf("role = %v, want 'user'", result["role"])
		}
	})

	t.Run("column not in row is skipped", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{"missing": "{{derive.email}}"}},
			},
		})

		result, err := m.MaskRow("users", map[string]any{"id": 1})
		if err != nil {
			t.Fatalf("MaskRow() error = %v", err)
		}
		if _, exists := result["missing"]; exists {
			t.Error("missing column should not be added")
		}
	})
}

func TestShouldTruncate(t *testing.T) {
	m := newMasker(t, &config.Config{
		Tables: map[string]*config.TableConfig{
			"logs": {Truncate: true},
		},
	})

	if !m.ShouldTruncate("logs") {
		t.Error("ShouldTruncate(logs) = false, want true")
	}
	if m.ShouldTruncate("users") {
		t.Error("ShouldTruncate(users) = true, want false")
	}
}

func TestHasMasking(t *testing.T) {
	m := newMasker(t, &config.Config{
		Tables: map[string]*config.TableConfig{
			"users": {Columns: map[string]string{"email": "{{derive.email}}"}},
			"logs":  {Truncate: true},
		},
	})

	if !m.HasMasking("users") {
		t.Error("HasMasking(users) = false, want true")
	}
	if m.HasMasking("logs") {
		t.Error("HasMasking(logs) = true, want false")
	}
}

func TestValidateRules(t *testing.T) {
	t.Run("valid rules", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{
					"external_id": "{{derive.pseudonym}}",
					"email":       "{{derive.email}}",
					"phone":       "{{faker.phone}}",
					"notes":       "null",
					"role":        "user",
				}},
			},
		})
		if errs := m.ValidateRules(); len(errs) != 0 {
			t.Errorf("ValidateRules() = %v, want none", errs)
		}
	})

	t.Run("unknown derive field", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{"email": "{{derive.ssn}}"}},
			},
		})
		errs := m.ValidateRules()
		if len(errs) != 1 || !strings.Contains(errs[0], "ssn") {
			t.Errorf("ValidateRules() = %v, want unknown derive field error", errs)
		}
	})

	t.Run("unknown faker function", func(t *testing.T) {
		m := newMasker(t, &config.Config{
			Tables: map[string]*config.TableConfig{
				"users": {Columns: map[string]string{"phone": "{{faker.nope}}"}},
			},
		})
		errs := m.ValidateRules()
		if len(errs) != 1 || !strings.Contains(errs[0], "nope") {
			t.Errorf("ValidateRules() = %v, want unknown faker function error", errs)
		}
	})
}

func TestListFakerFunctions(t *testing.T) {
	names := ListFakerFunctions()
	if len(names) == 0 {
		t.Fatal("ListFakerFunctions() returned no names")
	}
	for _, name := range names {
		if GetFakerFunc(name) == nil {
			t.Errorf("GetFakerFunc(%q) = nil for listed function", name)
		}
	}
}
