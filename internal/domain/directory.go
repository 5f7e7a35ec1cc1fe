/**
 * @description
 * This file defines the bank directory, the record a user creates to link one of
 * their bank logins to the service, together with the credentials it protects.
 *
 * @notes
 * - EncryptedCredentials is never serialized; callers only ever see the projection.
 * - A nil Name means the directory has no display name.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Directory is a user-owned record binding a bank provider to encrypted credentials.
type Directory struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               int64      `json:"-"`
	Name                 *string    `json:"name"`
	ProviderName         string     `json:"provider_name"`
	EncryptedCredentials string     `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at"`
}

// Credentials are the bank login values for one directory. They only exist in
// plaintext in memory while a login is being performed.
type Credentials struct {
	Username         string            `json:"username"`
	Password         string            `json:"password"`
	Type             string            `json:"type,omitempty"`
	DocumentNumber   string            `json:"document_number,omitempty"`
	AdditionalFields map[string]string `json:"additional_fields,omitempty"`
}

// Field returns the value supplied for a provider auth field name.
func (c Credentials) Field(name string) (string, bool) {
	switch name {
	case "username":
		return c.Username, c.Username != ""
	case "password":
		return c.Password, c.Password != ""
	case "type":
		return c.Type, c.Type != ""
	case "document_number":
		return c.DocumentNumber, c.DocumentNumber != ""
	}
	v, ok := c.AdditionalFields[name]
	return v, ok && v != ""
}

// SetupDirectoryInput carries the caller supplied values for a new directory.
type SetupDirectoryInput struct {
	Name         *string     `json:"name"`
	ProviderName string      `json:"provider_name"`
	Credentials  Credentials `json:"credentials"`
}
