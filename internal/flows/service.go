package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil && s.deps.Login.LookupByEmail != nil
}

func (s Service) Login(ctx context.Context, role, email, password string) LoginResult {
	return RunLogin(ctx, role, email, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, token string) RefreshResult {
	return RunRefresh(ctx, token, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, callerID, callerRole, target string) LogoutResult {
	return RunLogout(ctx, callerID, callerRole, target, s.deps.Logout)
}

func (s Service) Validate(ctx context.Context, tokenStr string) ValidateResult {
	return RunValidate(ctx, tokenStr, s.deps.Validate)
}
