package emaps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveToken loads an Electricity Maps API token from the first
// available source:
//  1. EMAPS_TOKEN environment variable
//  2. ~/.carbonshift/credentials.json
//  3. ~/.emaps_token file
//
// The token is read once at setup and treated as opaque; callers must
// never log it.
func ResolveToken() (string, error) {
	if tok := os.Getenv("EMAPS_TOKEN"); tok != "" {
		return strings.TrimSpace(tok), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve token: %w", err)
	}

	if tok, err := readCredentialsJSON(filepath.Join(home, ".carbonshift", "credentials.json")); err == nil && tok != "" {
		return tok, nil
	}

	if tok, err := readTokenFile(filepath.Join(home, ".emaps_token")); err == nil && tok != "" {
		return tok, nil
	}

	return "", fmt.Errorf("no Electricity Maps token found (set EMAPS_TOKEN)")
}

// readCredentialsJSON reads a token from a JSON file with shape {"token":"..."}.
func readCredentialsJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var creds struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", err
	}
	return strings.TrimSpace(creds.Token), nil
}

// readTokenFile reads a plain-text token from a file, trimming whitespace.
func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
