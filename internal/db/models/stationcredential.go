package models

import (
	"time"

	"gorm.io/gorm"
)

// StationCredential holds the basic-auth secret a station presents on
// security profiles 1 and 2. The password is stored as a hex SHA-256
// digest, never in the clear.
type StationCredential struct {
	ID              uint   `json:"-" gorm:"primaryKey" binding:"required"`
	StationID       string `json:"station_id" gorm:"uniqueIndex" binding:"required"`
	PasswordDigest  string `json:"-" binding:"required"`
	SecurityProfile uint8  `json:"security_profile" gorm:"default:1"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (c StationCredential) TableName() string {
	return "station_credentials"
}

func FindCredentialByStationID(db *gorm.DB, stationID string) (StationCredential, error) {
	var credential StationCredential
	err := db.Where(&StationCredential{StationID: stationID}).First(&credential).Error
	return credential, err
}

func CredentialExists(db *gorm.DB, stationID string) (bool, error) {
	var count int64
	err := db.Model(&StationCredential{}).Where(&StationCredential{StationID: stationID}).Limit(1).Count(&count).Error
	return count > 0, err
}
