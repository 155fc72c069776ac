package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"golang.org/x/term"
)

// validateKeyFile runs the interactive setup when path does not exist yet,
// then insists the file is private to its owner.
func validateKeyFile(path string) error {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Printf("key file \"%s\" does not exist\n", path)
		if err := runSetup(path); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}
	return verifyPermissions(path)
}

func runSetup(path string) error {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return errors.New("no key file and stdin is not a terminal; create the key file first")
	}
	logger.Println("running setup")
	fmt.Printf("Enter Cloudflare API Key: \n")
	bytekey, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	key := string(bytekey)

	api, err := cloudflare.NewWithAPIToken(key)
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Println("verifying token...")
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	logger.Println("token verified successfully")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, key); err != nil {
		return fmt.Errorf("unable to write \"%s\": %w", path, err)
	}
	logger.Printf("token written to \"%s\"\n", path)
	return nil
}

// ErrEmptyKey means the key file has no token on its first non-blank line.
var ErrEmptyKey = errors.New("key file holds no token")

// readKey returns the first non-blank line of the key file, trimmed.
func readKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if key := strings.TrimSpace(sc.Text()); key != "" {
			return key, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return "", fmt.Errorf("%s: %w", path, ErrEmptyKey)
}

// verifyPermissions rejects a key file that anyone but its owner can read or write.
// Owner read-only files are fine.
func verifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 || perm&0o400 == 0 {
		return fmt.Errorf("key file %s is %s; chmod 600 it so only the owner can read the token", path, perm)
	}
	return nil
}
