package scrub

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

var (
	// ErrInvalidTOML indicates the allowlist file is not valid TOML.
	ErrInvalidTOML = errors.New("invalid allowlist TOML")

	// ErrInvalidRegex indicates an allowlist pattern does not compile.
	ErrInvalidRegex = errors.New("invalid allowlist regex")
)

// Allowlist holds content regex patterns excluded from secret detection,
// for values that look like secrets but are not (test fixtures, documented
// examples).
type Allowlist struct {
	Regexes []string
}

// LoadAllowlist reads an allowlist TOML file. A missing file yields an
// empty allowlist; an unreadable or invalid one is an error.
//
// Schema:
//
//	[allowlist]
//	regexes = ['example-key-[0-9]+']
func LoadAllowlist(path string) (*Allowlist, error) {
	empty := &Allowlist{Regexes: []string{}}
	if path == "" {
		return empty, nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var file struct {
		Allowlist struct {
			Regexes []string
		}
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	// Validate patterns fail-fast so a bad file is caught at startup, not
	// on the first scrub.
	for _, pattern := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: pattern %q in %s: %v",
				ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{Regexes: file.Allowlist.Regexes}, nil
}
