package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
	RoleUser    = "user"
)

// User is a till operator account. Role drives the route guards.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	DisplayName  string             `bson:"displayName" json:"displayName"`
	Role         string             `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// UserUpdate carries the editable fields of a user; nil means unchanged.
type UserUpdate struct {
	Email       *string
	DisplayName *string
	Role        *string
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleCashier, RoleUser:
		return true
	}
	return false
}
