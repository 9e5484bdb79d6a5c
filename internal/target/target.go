// Package target turns profile and thread URLs into export targets.
package target

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ibeckermayer/msgdump/internal/types"
)

// ErrInvalidTarget is returned for inputs that do not name a user
var ErrInvalidTarget = errors.New("invalid target")

// Parse derives a target id from a profile URL.
//
//	https://www.facebook.com/profile.php?id=123  -> 123
//	https://www.facebook.com/jane.doe            -> jane.doe
//	https://www.facebook.com/messages/t/jane.doe -> jane.doe
//
// Input without a scheme is taken as the id itself.
func Parse(raw string) (types.Target, error) {
	raw = strings.TrimSpace(raw)
	id, err := parseID(raw)
	if err != nil {
		return types.Target{}, err
	}
	if err := checkID(id); err != nil {
		return types.Target{}, fmt.Errorf("%w %q: %v", ErrInvalidTarget, raw, err)
	}
	return types.Target{ID: id, URL: raw}, nil
}

func parseID(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidTarget, raw, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch {
	case len(segments) == 1 && segments[0] == "profile.php":
		return u.Query().Get("id"), nil
	case len(segments) == 3 && segments[0] == "messages" && segments[1] == "t":
		return segments[2], nil
	case len(segments) == 1:
		return segments[0], nil
	default:
		return "", fmt.Errorf("%w %q: unrecognized profile path", ErrInvalidTarget, raw)
	}
}

func checkID(id string) error {
	switch {
	case id == "":
		return errors.New("empty id")
	case id == "." || id == "..":
		return errors.New("reserved id")
	case strings.ContainsAny(id, `/\`):
		return errors.New("id contains a path separator")
	}
	return nil
}

// ParseAll parses raw inputs in order and fails on the first invalid one.
func ParseAll(raws []string) ([]types.Target, error) {
	targets := make([]types.Target, 0, len(raws))
	for _, raw := range raws {
		t, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}
