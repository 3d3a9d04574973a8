package auth

import (
	"errors"
	"testing"
	"time"

	"hrops.org/internal/access"
)

func withSecret(t *testing.T) {
	t.Helper()
	t.Setenv(secretEnvVariable, "unit-test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func managerSession() access.Session {
	return access.Session{
		UserID:               "u-mgr",
		Role:                 access.RoleManager,
		RoleLevel:            access.RoleManager.Level(),
		OrganizationUnitID:   "bcvh-hn",
		OrganizationUnitType: "BCVH",
	}
}

func TestGenerateAndParseRoundTrip(t *testing.T) {
	withSecret(t)

	token, err := GenerateToken(managerSession(), 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "u-mgr" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Issuer != issuer {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}

	session, err := claims.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if session.Role != access.RoleManager || session.RoleLevel != access.RoleManager.Level() {
		t.Fatalf("role not preserved: %+v", session)
	}
	if session.OrganizationUnitID != "bcvh-hn" {
		t.Fatalf("org unit not preserved: %+v", session)
	}
}

func TestSessionRederivesRoleLevel(t *testing.T) {
	withSecret(t)

	token, err := GenerateToken(managerSession(), time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}

	// A tampered level claim must not survive: the level comes from the role.
	claims.RoleLevel = 0
	session, err := claims.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if session.RoleLevel != access.RoleManager.Level() {
		t.Fatalf("role level must derive from the role, got %d", session.RoleLevel)
	}
}

func TestParseRejectsGarbageAndEmpty(t *testing.T) {
	withSecret(t)

	for _, token := range []string{"", "   ", "not-a-jwt", "aaa.bbb.ccc"} {
		if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	withSecret(t)
	token, err := GenerateToken(managerSession(), time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	t.Setenv(secretEnvVariable, "another-secret")
	ResetSecretForTests()
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestGenerateRequiresSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken(managerSession(), time.Minute); !errors.Is(err, errMissingSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestEnsureSecretFailsFastWhenUnset(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if err := EnsureSecret(); !errors.Is(err, errMissingSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}

	t.Setenv(secretEnvVariable, "boot-secret")
	ResetSecretForTests()
	if err := EnsureSecret(); err != nil {
		t.Fatalf("EnsureSecret with secret set: %v", err)
	}
}

func TestGenerateValidatesInput(t *testing.T) {
	withSecret(t)

	if _, err := GenerateToken(access.Session{}, time.Minute); err == nil {
		t.Fatal("expected error for empty session")
	}
	if _, err := GenerateToken(managerSession(), 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "s3cret-pw"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
