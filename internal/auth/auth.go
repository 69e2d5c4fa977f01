// Package auth decides whether a station may open a session. The
// connection manager only sees the Authenticator interface; credentials
// themselves live in the database.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"github.com/voltbridge/ocpp-gateway/internal/db/models"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("invalid station credentials")

// Authenticator validates the basic-auth credentials a station presents on
// security profiles 1 and 2.
type Authenticator interface {
	Authenticate(ctx context.Context, stationID, password string) error
}

// DatabaseAuthenticator checks credentials against the station_credentials
// table.
type DatabaseAuthenticator struct {
	db *gorm.DB
}

func NewDatabaseAuthenticator(db *gorm.DB) *DatabaseAuthenticator {
	return &DatabaseAuthenticator{db: db}
}

func (a *DatabaseAuthenticator) Authenticate(ctx context.Context, stationID, password string) error {
	credential, err := models.FindCredentialByStationID(a.db.WithContext(ctx), stationID)
	if err != nil {
		// Unknown station and lookup failure look the same to the caller;
		// fail closed either way.
		return ErrInvalidCredentials
	}

	digest := sha256.Sum256([]byte(password))
	presented := hex.EncodeToString(digest[:])
	if subtle.ConstantTimeCompare([]byte(presented), []byte(credential.PasswordDigest)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// StaticAuthenticator is a fixed credential set for tests.
type StaticAuthenticator struct {
	Credentials map[string]string
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, stationID, password string) error {
	expected, ok := a.Credentials[stationID]
	if !ok || subtle.ConstantTimeCompare([]byte(expected), []byte(password)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
