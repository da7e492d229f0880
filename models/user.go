package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User represents a shopper or an operations staff member
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `json:"name"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	Phone        string         `json:"phone"`
	Role         string         `gorm:"not null;default:'customer'" json:"role"` // "customer" or "admin"
	PasswordHash string         `json:"-"`                                       // admins only
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// Session is a server-side login session referenced by an opaque cookie token
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Token     string    `gorm:"uniqueIndex;not null" json:"token"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}

// Address is a saved shipping address of a user
type Address struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Name      string         `gorm:"not null" json:"name"`
	Phone     string         `gorm:"not null" json:"phone"`
	Line1     string         `gorm:"not null" json:"line1"`
	Line2     string         `json:"line2"`
	City      string         `gorm:"not null" json:"city"`
	State     string         `json:"state"`
	Pincode   string         `gorm:"not null" json:"pincode"`
	Country   string         `gorm:"not null;default:'India'" json:"country"`
	IsDefault bool           `gorm:"not null;default:false" json:"is_default"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Address model
func (Address) TableName() string {
	return "addresses"
}

// ToShippingAddress converts a saved address into an order snapshot
func (a Address) ToShippingAddress(email string) ShippingAddress {
	return ShippingAddress{
		Name:    a.Name,
		Phone:   a.Phone,
		Email:   email,
		Line1:   a.Line1,
		Line2:   a.Line2,
		City:    a.City,
		State:   a.State,
		Pincode: a.Pincode,
		Country: a.Country,
	}
}
