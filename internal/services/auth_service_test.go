package services

import (
	"context"
	"errors"
	"testing"

	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

func TestAuthService_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "admin", "kim", models.RoleTeacher)

	tests := []struct {
		name     string
		req      LoginRequest
		wantErr  error
		anyError bool
	}{
		{name: "valid", req: LoginRequest{Username: "kim", Password: "secret123"}},
		{name: "surrounding spaces in username", req: LoginRequest{Username: " kim ", Password: "secret123"}},
		{name: "wrong password", req: LoginRequest{Username: "kim", Password: "secret124"}, wantErr: ErrInvalidCredentials},
		{name: "unknown user", req: LoginRequest{Username: "ghost", Password: "secret123"}, wantErr: ErrInvalidCredentials},
		{name: "missing password", req: LoginRequest{Username: "kim"}, anyError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := env.manager.Auth().Login(ctx, &tt.req)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Login() err = %v, want %v", err, tt.wantErr)
				}
			case tt.anyError:
				if err == nil {
					t.Fatal("Login() expected an error")
				}
			default:
				if err != nil {
					t.Fatalf("Login() error = %v", err)
				}
				claims, err := env.manager.Auth().ParseToken(resp.Token)
				if err != nil {
					t.Fatalf("ParseToken() error = %v", err)
				}
				if claims.Subject != "kim" || claims.Role != models.RoleTeacher {
					t.Errorf("claims = %+v", claims)
				}
			}
		})
	}
}

func TestAuthService_ParseTokenRejects(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"", "not-a-token", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJhZG1pbiJ9."} {
		if _, err := env.manager.Auth().ParseToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ParseToken(%q) err = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "admin", "kim", models.RoleTeacher)

	err := env.manager.Auth().ChangePassword(ctx, "kim", &ChangePasswordRequest{
		CurrentPassword: "wrong", NewPassword: "newpass1", ConfirmPassword: "newpass1",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong current password err = %v", err)
	}

	err = env.manager.Auth().ChangePassword(ctx, "kim", &ChangePasswordRequest{
		CurrentPassword: "secret123", NewPassword: "newpass1", ConfirmPassword: "newpass2",
	})
	if err == nil {
		t.Error("mismatched confirmation accepted")
	}

	err = env.manager.Auth().ChangePassword(ctx, "kim", &ChangePasswordRequest{
		CurrentPassword: "secret123", NewPassword: "newpass1", ConfirmPassword: "newpass1",
	})
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := env.manager.Auth().Login(ctx, &LoginRequest{Username: "kim", Password: "newpass1"}); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}
}

func TestAuthService_ProvisionExternalUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	identity := ExternalIdentity{Provider: "casdoor", Username: "sso-user", Name: "SSO", Role: "unknown"}
	user, err := env.manager.Auth().ProvisionExternalUser(ctx, identity)
	if err != nil {
		t.Fatalf("ProvisionExternalUser() error = %v", err)
	}
	if user.Role != models.RoleStudent || user.Provider != "casdoor" {
		t.Errorf("user = %+v", user)
	}

	again, err := env.manager.Auth().ProvisionExternalUser(ctx, identity)
	if err != nil || again.Username != "sso-user" {
		t.Fatalf("second ProvisionExternalUser() = %v, %v", again, err)
	}
	if got := len(env.publisher.EventsOfType(events.UserRegistered)); got != 1 {
		t.Errorf("UserRegistered events = %d, want 1", got)
	}

	if _, err := env.manager.Auth().Login(ctx, &LoginRequest{Username: "sso-user", Password: ""}); err == nil {
		t.Error("provisioned user logged in without a password")
	}
	if _, err := env.manager.Auth().ProvisionExternalUser(ctx, ExternalIdentity{Provider: "casdoor"}); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty username err = %v, want ErrInvalidToken", err)
	}
}

func TestAuthService_ProvisionExternalUserCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		identity ExternalIdentity
	}{
		{name: "local bootstrap admin", identity: ExternalIdentity{Provider: "casdoor", Username: "admin", Role: models.RoleAdmin}},
		{name: "account of another provider", identity: ExternalIdentity{Provider: "other-sso", Username: "sso-user"}},
	}

	if _, err := env.manager.Auth().ProvisionExternalUser(ctx, ExternalIdentity{Provider: "casdoor", Username: "sso-user"}); err != nil {
		t.Fatalf("ProvisionExternalUser() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := env.manager.Auth().ProvisionExternalUser(ctx, tt.identity)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("ProvisionExternalUser() = %+v, %v, want ErrInvalidToken", user, err)
			}
		})
	}

	admin, err := env.manager.Auth().Me(ctx, "admin")
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if admin.Role != models.RoleAdmin {
		t.Errorf("local admin role = %s", admin.Role)
	}
}

func TestAuthService_LogoutDropsSession(t *testing.T) {
	env, problems := quizFixture(t)
	ctx := context.Background()
	startOrdered(t, env, problems)

	if err := env.manager.Auth().Logout(ctx, "minji"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := env.manager.Quiz().Current(ctx, "minji"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Current() after logout err = %v, want ErrSessionNotFound", err)
	}
}
