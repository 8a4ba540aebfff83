package models

import "gorm.io/gorm"

// Operator roles. Managers may cancel sales and move stock by hand. A
// device account is a till's sync identity: it relays sales that cashiers
// rang up offline, under their operator ids.
const (
	RoleCashier = "cashier"
	RoleManager = "manager"
	RoleAdmin   = "admin"
	RoleDevice  = "device"
)

// MayRecordFor reports whether a caller with role may commit a sale under
// another operator's id.
func MayRecordFor(role string) bool {
	switch role {
	case RoleManager, RoleAdmin, RoleDevice:
		return true
	}
	return false
}

// User is a till operator.
type User struct {
	gorm.Model
	Username string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Name     string `gorm:"size:255;not null"            json:"name"`
	Password string `gorm:"size:255;not null"            json:"-"` // bcrypt hash
	Role     string `gorm:"size:32;default:cashier"      json:"role"`
}
