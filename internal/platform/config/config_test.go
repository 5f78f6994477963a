package config

import (
	"context"
	"errors"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.PSP.Currency != "INR" {
		t.Fatalf("expected default currency INR, got %q", cfg.PSP.Currency)
	}
	if cfg.PSP.DefaultProvider != "razorpay" {
		t.Fatalf("expected default provider razorpay, got %q", cfg.PSP.DefaultProvider)
	}
	if cfg.Shipping.PhoneLength != 10 {
		t.Fatalf("expected default phone length 10, got %d", cfg.Shipping.PhoneLength)
	}
	if cfg.Shipping.PhoneLeading != "6789" {
		t.Fatalf("expected default phone leading digits, got %q", cfg.Shipping.PhoneLeading)
	}
}

func TestLoadEnvMapPrecedence(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_SERVER_PORT":               "9090",
			"API_FIREBASE_PROJECT_ID":       "demo-project",
			"API_SHIPPING_ALLOWED_PINCODES": "110001, 110002 ,110003",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected env map port, got %q", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "demo-project" {
		t.Fatalf("expected firestore project to default to firebase project, got %q", cfg.Firestore.ProjectID)
	}
	if len(cfg.Shipping.AllowedPincodes) != 3 || cfg.Shipping.AllowedPincodes[1] != "110002" {
		t.Fatalf("unexpected allowed pincodes: %v", cfg.Shipping.AllowedPincodes)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://psp/razorpay-key" {
			t.Fatalf("unexpected secret ref %q", ref)
		}
		return "resolved-secret", nil
	})

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithEnvMap(map[string]string{
			"API_PSP_RAZORPAY_KEY_SECRET": "sm://psp/razorpay-key",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.PSP.RazorpayKeySecret != "resolved-secret" {
		t.Fatalf("expected resolved secret, got %q", cfg.PSP.RazorpayKeySecret)
	}
}

func TestLoadSecretResolverFailure(t *testing.T) {
	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})

	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithEnvMap(map[string]string{
			"API_PSP_STRIPE_API_KEY": "secret://psp/stripe",
		}),
	)

	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://psp/stripe" {
		t.Fatalf("unexpected ref %q", secretErr.Ref)
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_SHIPPING_PHONE_LENGTH": "-1",
		}),
	)

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validationErr.Fields()
	if len(fields) != 1 || fields[0] != "Shipping.PhoneLength" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestLoadRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.RazorpayKeySecret"),
	)

	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	names := missing.Names()
	if len(names) != 1 || names[0] != "PSP.RazorpayKeySecret" {
		t.Fatalf("unexpected missing secrets: %v", names)
	}
}
