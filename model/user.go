package model

import "time"

type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
	Email     string    `gorm:"not null;uniqueIndex" json:"email"`

	// bcrypt哈希
	Password string `gorm:"not null" json:"-"`
	Avatar   string `json:"avatar"`
}

func (User) TableName() string {
	return "user"
}
