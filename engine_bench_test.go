package schoolauth

import (
	"context"
	"testing"
)

func BenchmarkValidate(b *testing.B) {
	te := newTestEngine(b)
	res := te.login(b, "t@b.com", "plain-pass", RoleTeacher)
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		if _, err := te.Validate(ctx, res.AccessToken); err != nil {
			b.Fatalf("validate: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	te := newTestEngine(b)
	token := te.login(b, "t@b.com", "plain-pass", RoleTeacher).RefreshToken
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		pair, err := te.Refresh(ctx, token)
		if err != nil {
			b.Fatalf("refresh: %v", err)
		}
		token = pair.RefreshToken
	}
}

func BenchmarkLogin(b *testing.B) {
	te := newTestEngine(b)
	ctx := context.Background()
	req := LoginRequest{Email: "t@b.com", Password: "plain-pass", Role: RoleTeacher}

	b.ReportAllocs()
	for b.Loop() {
		if _, err := te.Login(ctx, req); err != nil {
			b.Fatalf("login: %v", err)
		}
	}
}
