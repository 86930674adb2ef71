package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/maxmusicschool/schoolauth/jwt"
)

var errNotFound = errors.New("not found")

type fakeSessions struct {
	stored  map[string]string
	removed []string
	rotErr  error
}

func (f *fakeSessions) store(_ context.Context, uid, token string) error {
	f.stored[uid] = token
	return nil
}

func (f *fakeSessions) rotate(_ context.Context, uid, presented, next string) error {
	if f.rotErr != nil {
		return f.rotErr
	}
	if f.stored[uid] != presented {
		return errors.New("mismatch")
	}
	f.stored[uid] = next
	return nil
}

func (f *fakeSessions) remove(_ context.Context, uid string) error {
	delete(f.stored, uid)
	f.removed = append(f.removed, uid)
	return nil
}

func testLoginDeps(users map[string]User, sessions *fakeSessions) (LoginDeps, *int) {
	dummyCalls := 0
	return LoginDeps{
		LookupByEmail: func(_ context.Context, role, email string) (User, error) {
			u, ok := users[role+"/"+email]
			if !ok {
				return User{}, errNotFound
			}
			return u, nil
		},
		IsNotFound:     func(err error) bool { return errors.Is(err, errNotFound) },
		VerifyPassword: func(pw, stored string) (bool, error) { return "hash:"+pw == stored, nil },
		VerifyDummy:    func(string) { dummyCalls++ },
		NeedsRehash:    func(string) bool { return false },
		HashPassword:   func(pw string) (string, error) { return "hash:" + pw, nil },
		IssueAccess:    func(uid, _, role string) (string, error) { return "access-" + uid + "-" + role, nil },
		IssueRefresh:   func(uid string) (string, error) { return "refresh-" + uid, nil },
		StoreRefresh:   sessions.store,
	}, &dummyCalls
}

func TestRunLoginSuccess(t *testing.T) {
	sessions := &fakeSessions{stored: map[string]string{}}
	deps, _ := testLoginDeps(map[string]User{
		"student/a@b.com": {ID: "s1", Email: "a@b.com", Role: "student", PasswordHash: "hash:pw1"},
	}, sessions)

	res := RunLogin(context.Background(), "student", " a@b.com ", "pw1", deps)
	if res.Failure != LoginFailureNone {
		t.Fatalf("expected success, got failure %d (%v)", res.Failure, res.Err)
	}
	if res.AccessToken != "access-s1-student" || res.RefreshToken != "refresh-s1" {
		t.Fatalf("unexpected tokens %q %q", res.AccessToken, res.RefreshToken)
	}
	if sessions.stored["s1"] != "refresh-s1" {
		t.Fatal("refresh token not stored")
	}
}

func TestRunLoginUnknownUserRunsDummyVerify(t *testing.T) {
	sessions := &fakeSessions{stored: map[string]string{}}
	deps, dummy := testLoginDeps(map[string]User{}, sessions)

	res := RunLogin(context.Background(), "student", "nobody@b.com", "pw1", deps)
	if res.Failure != LoginFailureUnknownUser {
		t.Fatalf("expected unknown user, got %d", res.Failure)
	}
	if *dummy != 1 {
		t.Fatalf("expected one dummy verification, got %d", *dummy)
	}
	if len(sessions.stored) != 0 {
		t.Fatal("no session expected")
	}
}

func TestRunLoginStatusCheckedAfterPassword(t *testing.T) {
	sessions := &fakeSessions{stored: map[string]string{}}
	deps, _ := testLoginDeps(map[string]User{
		"student/hold@b.com": {ID: "s2", Role: "student", PasswordHash: "hash:pw", Status: StatusHold, PendingAmount: 1200},
		"student/off@b.com":  {ID: "s3", Role: "student", PasswordHash: "hash:pw", Status: StatusInactive},
	}, sessions)

	if res := RunLogin(context.Background(), "student", "hold@b.com", "wrong", deps); res.Failure != LoginFailurePassword {
		t.Fatalf("wrong password on held account must not reveal status, got %d", res.Failure)
	}
	res := RunLogin(context.Background(), "student", "hold@b.com", "pw", deps)
	if res.Failure != LoginFailureHold || res.User.PendingAmount != 1200 {
		t.Fatalf("expected hold failure with amount, got %+v", res)
	}
	if res := RunLogin(context.Background(), "student", "off@b.com", "pw", deps); res.Failure != LoginFailureInactive {
		t.Fatalf("expected inactive failure, got %d", res.Failure)
	}
	if len(sessions.stored) != 0 {
		t.Fatal("no session expected")
	}
}

func TestRunLoginUpgradesLegacyHash(t *testing.T) {
	sessions := &fakeSessions{stored: map[string]string{}}
	deps, _ := testLoginDeps(map[string]User{
		"teacher/t@b.com": {ID: "t1", Role: "teacher", PasswordHash: "hash:pw"},
	}, sessions)
	deps.NeedsRehash = func(string) bool { return true }
	var stored string
	deps.UpgradeHash = func(_ context.Context, uid, role, hash string) error {
		stored = uid + "/" + role + "/" + hash
		return nil
	}

	res := RunLogin(context.Background(), "teacher", "t@b.com", "pw", deps)
	if res.Failure != LoginFailureNone || !res.Upgraded {
		t.Fatalf("expected upgraded login, got %+v", res)
	}
	if stored != "t1/teacher/hash:pw" {
		t.Fatalf("unexpected upgrade call %q", stored)
	}
}

func TestRunLoginLookupFailure(t *testing.T) {
	sessions := &fakeSessions{stored: map[string]string{}}
	deps, _ := testLoginDeps(nil, sessions)
	deps.LookupByEmail = func(context.Context, string, string) (User, error) {
		return User{}, errors.New("store down")
	}

	if res := RunLogin(context.Background(), "student", "a@b.com", "pw", deps); res.Failure != LoginFailureLookup {
		t.Fatalf("expected lookup failure, got %d", res.Failure)
	}
}

func testRefreshDeps(users map[string]User, sessions *fakeSessions) RefreshDeps {
	n := 0
	return RefreshDeps{
		VerifyRefresh: func(token string) (string, error) {
			rest, ok := strings.CutPrefix(token, "refresh-")
			if !ok || rest == "" {
				return "", jwt.ErrInvalidToken
			}
			uid, _, _ := strings.Cut(rest, "#")
			return uid, nil
		},
		LookupByID: func(_ context.Context, id string) (User, error) {
			u, ok := users[id]
			if !ok {
				return User{}, errNotFound
			}
			return u, nil
		},
		IsNotFound:  func(err error) bool { return errors.Is(err, errNotFound) },
		IssueAccess: func(uid, _, role string) (string, error) { return "access-" + uid, nil },
		IssueRefresh: func(uid string) (string, error) {
			n++
			return fmt.Sprintf("refresh-%s#%d", uid, n), nil
		},
		RotateRefresh: sessions.rotate,
		RemoveRefresh: sessions.remove,
	}
}

func TestRunRefreshRotates(t *testing.T) {
	sessions := &fakeSessions{stored: map[string]string{"s1": "refresh-s1"}}
	deps := testRefreshDeps(map[string]User{"s1": {ID: "s1", Role: "student"}}, sessions)

	res := RunRefresh(context.Background(), "refresh-s1", deps)
	if res.Failure != RefreshFailureNone {
		t.Fatalf("expected success, got %d (%v)", res.Failure, res.Err)
	}
	if sessions.stored["s1"] != res.RefreshToken || res.RefreshToken == "refresh-s1" {
		t.Fatalf("session not rotated: stored=%q new=%q", sessions.stored["s1"], res.RefreshToken)
	}

	again := RunRefresh(context.Background(), "refresh-s1", deps)
	if again.Failure != RefreshFailureRotate || again.AccessToken != "" {
		t.Fatalf("replayed token must fail without tokens, got %+v", again)
	}
}

func TestRunRefreshInactiveRemovesSession(t *testing.T) {
	sessions := &fakeSessions{stored: map[string]string{"s1": "refresh-s1"}}
	deps := testRefreshDeps(map[string]User{"s1": {ID: "s1", Status: StatusInactive}}, sessions)

	res := RunRefresh(context.Background(), "refresh-s1", deps)
	if res.Failure != RefreshFailureStatus {
		t.Fatalf("expected status failure, got %d", res.Failure)
	}
	if _, ok := sessions.stored["s1"]; ok {
		t.Fatal("session should be removed")
	}
}

func TestRunRefreshUnknownUserAndBadToken(t *testing.T) {
	sessions := &fakeSessions{stored: map[string]string{"gone": "refresh-gone"}}
	deps := testRefreshDeps(map[string]User{}, sessions)

	if res := RunRefresh(context.Background(), "refresh-gone", deps); res.Failure != RefreshFailureUnknownUser {
		t.Fatalf("expected unknown user, got %d", res.Failure)
	}
	if len(sessions.removed) != 1 {
		t.Fatalf("expected session removal, got %v", sessions.removed)
	}
	if res := RunRefresh(context.Background(), "garbage", deps); res.Failure != RefreshFailureDecode {
		t.Fatalf("expected decode failure, got %d", res.Failure)
	}
}

func TestRunRefreshRejectsUserWithOtherID(t *testing.T) {
	sessions := &fakeSessions{stored: map[string]string{"email:mia@b.com": "refresh-email:mia@b.com"}}
	deps := testRefreshDeps(map[string]User{
		"email:mia@b.com": {ID: "s1", Email: "mia@b.com", Role: "student"},
	}, sessions)

	res := RunRefresh(context.Background(), "refresh-email:mia@b.com", deps)
	if res.Failure != RefreshFailureUnknownUser {
		t.Fatalf("expected unknown user, got %d", res.Failure)
	}
	if res.AccessToken != "" || res.RefreshToken != "" {
		t.Fatalf("no tokens expected, got %+v", res)
	}
	if _, ok := sessions.stored["email:mia@b.com"]; ok {
		t.Fatal("session should be removed")
	}
}

func TestRunLogoutPermissions(t *testing.T) {
	sessions := &fakeSessions{stored: map[string]string{"s1": "x", "s2": "y"}}
	deps := LogoutDeps{
		RemoveRefresh:   sessions.remove,
		MayLogoutOthers: func(role string) bool { return role == "admin" },
	}

	if res := RunLogout(context.Background(), "s1", "student", "", deps); res.Failure != LogoutFailureNone || res.UserID != "s1" {
		t.Fatalf("self logout failed: %+v", res)
	}
	if res := RunLogout(context.Background(), "s1", "student", "s2", deps); res.Failure != LogoutFailureForbidden {
		t.Fatalf("expected forbidden, got %d", res.Failure)
	}
	if res := RunLogout(context.Background(), "t1", "admin", "s2", deps); res.Failure != LogoutFailureNone {
		t.Fatalf("admin logout failed: %+v", res)
	}
	if len(sessions.stored) != 0 {
		t.Fatalf("expected all sessions removed, got %v", sessions.stored)
	}
}

func TestRunValidate(t *testing.T) {
	deps := ValidateDeps{
		ParseAccess: func(tok string) (*jwt.AccessClaims, error) {
			if tok == "bad" {
				return nil, jwt.ErrInvalidToken
			}
			return &jwt.AccessClaims{UID: "u", Role: tok}, nil
		},
		ValidRole: func(r string) bool { return r == "student" },
	}

	if res := RunValidate(context.Background(), "bad", deps); res.Failure != ValidateFailureUnauthorized {
		t.Fatalf("expected unauthorized, got %d", res.Failure)
	}
	if res := RunValidate(context.Background(), "root", deps); res.Failure != ValidateFailureRole {
		t.Fatalf("expected role failure, got %d", res.Failure)
	}
	if res := RunValidate(context.Background(), "student", deps); res.Claims == nil || res.Claims.UID != "u" {
		t.Fatalf("expected claims, got %+v", res)
	}
}
