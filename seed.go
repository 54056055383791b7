package main

import (
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"progitek/server/internal/models"
	"progitek/server/internal/services"
)

var demoUsers = []struct {
	email     string
	name      string
	role      models.UserRole
	specialty string
}{
	{"dg@progitek.local", "Direction Générale", models.RoleDG, ""},
	{"commercial@progitek.local", "Service Commercial", models.RoleCommercial, ""},
	{"comptable@progitek.local", "Comptabilité", models.RoleComptable, ""},
	{"technicien@progitek.local", "Technicien Réseau", models.RoleTechnicien, "réseau"},
}

// seedDemo creates one account per role (sharing password) and a client.
// Existing e-mails are left untouched.
func seedDemo(db *gorm.DB, password string) error {
	hash, err := services.HashPassword(password)
	if err != nil {
		return err
	}

	for _, d := range demoUsers {
		user := models.User{
			Email:        d.email,
			Name:         d.name,
			PasswordHash: hash,
			Role:         d.role,
			Specialty:    d.specialty,
			IsActive:     true,
		}
		res := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).Create(&user)
		if res.Error != nil {
			return fmt.Errorf("seed user %s: %w", d.email, res.Error)
		}
		if res.RowsAffected > 0 {
			log.Printf("✅ Demo user created: %s (%s)", d.email, d.role)
		}
	}

	var count int64
	if err := db.Model(&models.Client{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count clients: %w", err)
	}
	if count == 0 {
		client := models.Client{
			Name:     "Client Démo SARL",
			Email:    "contact@client-demo.local",
			City:     "Cotonou",
			IsActive: true,
		}
		if err := db.Create(&client).Error; err != nil {
			return fmt.Errorf("seed client: %w", err)
		}
		log.Printf("✅ Demo client created: %s", client.Name)
	}
	return nil
}
