// Package password hashes new passwords with Argon2id and verifies the
// stored credential formats found in school records.
//
// # Output format
//
// New hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # Verification
//
// [Verifier] dispatches on the stored prefix: argon2id PHC strings, bcrypt
// ($2a$, $2b$, $2y$), and, only when explicitly enabled, legacy plaintext
// compared in constant time. [Verifier.NeedsRehash] tells the caller to
// replace anything that is not a current argon2id hash.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other schoolauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
