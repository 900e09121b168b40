// Package sessionstore persists session records across the ephemeral and durable
// key-value stores using the storefront's five-key layout.
package sessionstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fastygo/storefront-session/domain"
)

// Persisted keys. All five are written together and cleared together.
const (
	KeyToken     = "auth_token"
	KeyUser      = "user_data"
	KeySessionID = "session_id"
	KeyExpiry    = "token_expiry"
	KeyRemember  = "remember_me"
)

// Keys lists every persisted key.
var Keys = []string{KeyToken, KeyUser, KeySessionID, KeyExpiry, KeyRemember}

// Encode flattens a record into its persisted key/value form.
func Encode(rec domain.Record) (map[string]string, error) {
	user, err := json.Marshal(rec.Identity)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		KeyToken:     rec.Token,
		KeyUser:      string(user),
		KeySessionID: rec.SessionID,
		KeyExpiry:    strconv.FormatInt(rec.ExpiresAt, 10),
		KeyRemember:  strconv.FormatBool(rec.Durable),
	}, nil
}

// Decode rebuilds a record. Any missing or unparsable field yields ErrMalformedRecord.
func Decode(values map[string]string) (domain.Record, error) {
	var rec domain.Record

	token := values[KeyToken]
	if token == "" {
		return rec, malformed("missing %s", KeyToken)
	}

	user := bytes.TrimSpace([]byte(values[KeyUser]))
	if len(user) == 0 || user[0] != '{' {
		return rec, malformed("%s is not a JSON object", KeyUser)
	}
	var identity domain.Identity
	if err := json.Unmarshal(user, &identity); err != nil {
		return rec, malformed("%s: %v", KeyUser, err)
	}

	sessionID := values[KeySessionID]
	if sessionID == "" {
		return rec, malformed("missing %s", KeySessionID)
	}

	expiry, err := strconv.ParseInt(values[KeyExpiry], 10, 64)
	if err != nil {
		return rec, malformed("%s is not numeric", KeyExpiry)
	}

	var durable bool
	switch values[KeyRemember] {
	case "true":
		durable = true
	case "false":
	default:
		return rec, malformed("%s must be true or false", KeyRemember)
	}

	return domain.Record{
		Token:     token,
		Identity:  identity,
		SessionID: sessionID,
		ExpiresAt: expiry,
		Durable:   durable,
	}, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedRecord, fmt.Sprintf(format, args...))
}
