// Package caller identifies the owner a match or placement request acts for.
package caller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

// Header carries the caller identity as an RFC 8941 dictionary:
//
//	Router-Caller: owner="user-42"
const Header = "Router-Caller"

type contextKey struct{}

// ParseHeader extracts the owner id from a Router-Caller header.
// Other dictionary members and parameters are ignored.
func ParseHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("empty Router-Caller header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return "", fmt.Errorf("invalid Router-Caller header: %w", err)
	}

	member, ok := dict.Get("owner")
	if !ok {
		return "", errors.New("owner key not found in Router-Caller header")
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", errors.New("owner value must be an item")
	}

	var owner string
	switch v := item.Value.(type) {
	case string:
		owner = v
	case httpsfv.Token:
		owner = string(v)
	default:
		return "", errors.New("owner value must be a string or token")
	}
	if strings.TrimSpace(owner) == "" {
		return "", errors.New("owner value is empty")
	}
	return owner, nil
}

// WithOwner returns a context carrying the owner id.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, contextKey{}, owner)
}

// OwnerFrom returns the owner stored by WithOwner or the middleware.
func OwnerFrom(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(contextKey{}).(string)
	return owner, ok && owner != ""
}
