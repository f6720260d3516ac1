// SPDX-License-Identifier: MIT

// Package signing prepares GPG commit signing for the update job. The
// armored private key and passphrase arrive from the environment; the key
// is parsed for its metadata, imported into an ephemeral GNUPGHOME, and a
// gpg wrapper is generated so git can sign non-interactively.
package signing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/certbundle/cabot/internal/log"
)

var (
	ErrNoKey      = errors.New("no private key found in armored input")
	ErrNoIdentity = errors.New("private key carries no identity")
)

// KeyInfo is the metadata git needs from the signing key.
type KeyInfo struct {
	KeyID string // 16-hex-digit long key ID, used as user.signingkey
	Name  string
	Email string
}

// ParseKey extracts key metadata from an armored OpenPGP private key.
func ParseKey(armored string) (KeyInfo, error) {
	ring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return KeyInfo{}, fmt.Errorf("read armored key: %w", err)
	}

	for _, entity := range ring {
		if entity.PrivateKey == nil {
			continue
		}
		info := KeyInfo{KeyID: entity.PrimaryKey.KeyIdString()}
		for _, ident := range entity.Identities {
			if ident.UserId == nil {
				continue
			}
			info.Name = ident.UserId.Name
			info.Email = ident.UserId.Email
			break
		}
		if info.Name == "" && info.Email == "" {
			return KeyInfo{}, ErrNoIdentity
		}
		return info, nil
	}
	return KeyInfo{}, ErrNoKey
}

// Keyring is an imported signing key bound to an ephemeral GNUPGHOME.
type Keyring struct {
	Info    KeyInfo
	Home    string
	Wrapper string

	passphrase string
}

// passphraseEnv is the variable the gpg wrapper reads. The passphrase never
// touches the filesystem.
const passphraseEnv = "CABOT_GPG_WRAPPER_PASSPHRASE"

// Setup imports the armored key into a fresh GNUPGHOME under dir and writes
// the gpg wrapper script. Callers must Cleanup() when the run finishes.
func Setup(ctx context.Context, dir, armored, passphrase string) (*Keyring, error) {
	info, err := ParseKey(armored)
	if err != nil {
		return nil, err
	}

	home, err := os.MkdirTemp(dir, "gnupg-")
	if err != nil {
		return nil, fmt.Errorf("create gnupg home: %w", err)
	}
	if err := os.Chmod(home, 0o700); err != nil {
		_ = os.RemoveAll(home)
		return nil, fmt.Errorf("chmod gnupg home: %w", err)
	}

	kr := &Keyring{Info: info, Home: home, passphrase: passphrase}

	if err := kr.importKey(ctx, armored); err != nil {
		_ = os.RemoveAll(home)
		return nil, err
	}
	if err := kr.writeWrapper(); err != nil {
		_ = os.RemoveAll(home)
		return nil, err
	}

	logger := log.WithComponentFromContext(ctx, "signing")
	logger.Info().
		Str("event", "signing.key_imported").
		Str("key_id", info.KeyID).
		Str("identity", info.Email).
		Msg("signing key ready")
	return kr, nil
}

func (k *Keyring) importKey(ctx context.Context, armored string) error {
	cmd := exec.CommandContext(ctx, "gpg", "--batch", "--no-tty", "--import")
	cmd.Stdin = strings.NewReader(armored)
	cmd.Env = append(os.Environ(), "GNUPGHOME="+k.Home)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("gpg import: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// writeWrapper emits a shell script git uses as gpg.program. Loopback
// pinentry with the passphrase from the environment keeps signing
// non-interactive inside a container.
func (k *Keyring) writeWrapper() error {
	k.Wrapper = filepath.Join(k.Home, "gpg-wrapper.sh")
	script := fmt.Sprintf(`#!/bin/sh
exec gpg --batch --no-tty --pinentry-mode loopback --passphrase "$%s" "$@"
`, passphraseEnv)
	if err := os.WriteFile(k.Wrapper, []byte(script), 0o700); err != nil {
		return fmt.Errorf("write gpg wrapper: %w", err)
	}
	return nil
}

// GitEnv returns the extra environment git commands need for signing.
func (k *Keyring) GitEnv() []string {
	return []string{
		"GNUPGHOME=" + k.Home,
		passphraseEnv + "=" + k.passphrase,
	}
}

// Cleanup removes the ephemeral keyring.
func (k *Keyring) Cleanup() error {
	if k.Home == "" {
		return nil
	}
	return os.RemoveAll(k.Home)
}
