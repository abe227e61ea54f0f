// Package password implements argon2id password hashing and verification.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and hash use standard base64 with padding. Verification reads the
// cost parameters from the stored string, so raising [DefaultConfig] never
// invalidates existing hashes; [Argon2.NeedsUpgrade] reports when a stored
// hash is weaker than the current profile.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
