package flows

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Login    LoginDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
	Validate ValidateDeps
}

// UserStatus mirrors the engine's account status without importing it.
type UserStatus uint8

const (
	StatusActive UserStatus = iota
	StatusInactive
	StatusHold
)

// User is the flow-local view of a directory record.
type User struct {
	ID            string
	Email         string
	Name          string
	Role          string
	PasswordHash  string
	Status        UserStatus
	PendingAmount float64
}
