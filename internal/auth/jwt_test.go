package auth

import (
	"testing"
)

// TestGenerateAndValidateAccessToken tests the sign/verify round-trip.
func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc := NewJWTService("test-secret")

	token, err := svc.GenerateAccessToken("u1", RoleCustomer)
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.Subject != "u1" {
		t.Errorf("expected subject u1, got %s", claims.Subject)
	}
	if claims.Role != RoleCustomer {
		t.Errorf("expected role customer, got %s", claims.Role)
	}
	if claims.Type != TokenTypeAccess {
		t.Errorf("expected access type, got %s", claims.Type)
	}
}

// TestGenerateAccessToken_EmptyUserID tests rejection of empty subjects.
func TestGenerateAccessToken_EmptyUserID(t *testing.T) {
	svc := NewJWTService("test-secret")
	if _, err := svc.GenerateAccessToken("", RoleCustomer); err != ErrEmptyUserID {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
}

// TestValidateToken_WrongSecret tests rejection of foreign tokens.
func TestValidateToken_WrongSecret(t *testing.T) {
	signer := NewJWTService("secret-a")
	verifier := NewJWTService("secret-b")

	token, err := signer.GenerateAccessToken("u1", RolePhotographer)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := verifier.ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

// TestValidateToken_RotationAcceptsPreviousSecret tests dual-key validation.
func TestValidateToken_RotationAcceptsPreviousSecret(t *testing.T) {
	oldSvc := NewJWTService("old-secret")
	token, err := oldSvc.GenerateAccessToken("u1", RolePhotographer)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	rotated := NewJWTServiceWithRotation("new-secret", "old-secret")
	claims, err := rotated.ValidateToken(token)
	if err != nil {
		t.Fatalf("expected previous-secret token to validate, got %v", err)
	}
	if claims.Subject != "u1" {
		t.Errorf("expected subject u1, got %s", claims.Subject)
	}
}

// TestValidateToken_Garbage tests rejection of malformed input.
func TestValidateToken_Garbage(t *testing.T) {
	svc := NewJWTService("test-secret")
	if _, err := svc.ValidateToken("not-a-jwt"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

// TestRefreshToken_CarriesNoRole tests the refresh token shape.
func TestRefreshToken_CarriesNoRole(t *testing.T) {
	svc := NewJWTService("test-secret")

	token, err := svc.GenerateRefreshToken("u1")
	if err != nil {
		t.Fatalf("failed to generate refresh token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate refresh token: %v", err)
	}
	if claims.Type != TokenTypeRefresh {
		t.Errorf("expected refresh type, got %s", claims.Type)
	}
	if claims.Role != "" {
		t.Errorf("expected empty role, got %s", claims.Role)
	}
}
