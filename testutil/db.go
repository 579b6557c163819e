// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"rental-backend/config"
	"rental-backend/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection is used, so code under test must only touch tx inside transactions.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig(logger.Silent))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := config.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Date parses a YYYY-MM-DD string as UTC midnight.
func Date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

// SeedRoom creates a structure with one available room.
func SeedRoom(t *testing.T, db *gorm.DB, name string, cost float64, maxPeople int) models.Room {
	t.Helper()
	st := models.Structure{Name: "Casa " + name, Address: "Via Roma 1", CIS: "CIS-" + uuid.NewString()[:8]}
	if err := db.Create(&st).Error; err != nil {
		t.Fatalf("create structure: %v", err)
	}
	room := models.Room{
		StructureID:  st.ID,
		RoomStatus:   models.RoomAvailable,
		Name:         name,
		CostPerNight: cost,
		MaxPeople:    maxPeople,
	}
	if err := db.Create(&room).Error; err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

// SeedUser creates an active, verified, profile-complete user.
func SeedUser(t *testing.T, db *gorm.DB, email, userType string) models.User {
	t.Helper()
	u := models.User{
		Username:      email,
		Email:         email,
		FirstName:     "Mario",
		LastName:      "Rossi",
		Status:        models.ProfileComplete,
		Type:          userType,
		IsActive:      true,
		EmailVerified: true,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}
