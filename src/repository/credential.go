package repository

import (
	"os"
	"sync"

	"emperror.dev/errors"
)

const (
	credentialPrefix = "resticapi-password-"
	secureFileMode   = 0600
)

// Credential is a password written to a private temporary file so that it
// can be handed to restic with --password-file instead of appearing in the
// process arguments. The file exists until Close is called.
type Credential struct {
	path string
	once sync.Once
	err  error
}

// Materialize writes secret to a new, uniquely named file in dir (or the
// system temporary directory when dir is empty) that only the current user
// can read. Callers must defer Close on the returned credential.
func Materialize(dir string, secret string) (*Credential, error) {
	f, err := os.CreateTemp(dir, credentialPrefix)
	if err != nil {
		return nil, wrapError(KindCredential, err, "Failed to create temp file for password")
	}
	c := &Credential{path: f.Name()}

	if err := f.Chmod(secureFileMode); err != nil {
		f.Close()
		c.Close()
		return nil, wrapError(KindCredential, err, "Failed to create temp file for password")
	}
	if _, err := f.WriteString(secret); err != nil {
		f.Close()
		c.Close()
		return nil, wrapError(KindCredential, err, "Failed to write password to temp file")
	}
	if err := f.Close(); err != nil {
		c.Close()
		return nil, wrapError(KindCredential, err, "Failed to write password to temp file")
	}
	return c, nil
}

// Path returns the location of the password file.
func (c *Credential) Path() string {
	return c.path
}

// Close removes the password file. It is safe to call more than once.
func (c *Credential) Close() error {
	c.once.Do(func() {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			c.err = errors.Wrap(err, "failed to remove password file")
		}
	})
	return c.err
}
