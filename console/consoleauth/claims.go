// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package consoleauth

import (
	"encoding/json"
	"time"

	"storj.io/common/uuid"
)

// Claims represents data signed by server and used for authentication.
type Claims struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email,omitempty"`
	Expiration time.Time `json:"expires,omitempty"`
}

// JSON returns json representation of Claims.
func (c *Claims) JSON() ([]byte, error) {
	return json.Marshal(c)
}

// FromJSON returns Claims instance, parsed from JSON.
func FromJSON(data []byte) (*Claims, error) {
	claims := new(Claims)

	if err := json.Unmarshal(data, claims); err != nil {
		return nil, err
	}

	return claims, nil
}
