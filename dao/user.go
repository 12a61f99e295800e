package dao

import (
	"errors"

	"drive-agent-backend/model"

	"gorm.io/gorm"
)

func CreateUser(user *model.User) error {
	return DB.Create(user).Error
}

func GetUserByEmail(email string) (*model.User, error) {
	var user model.User
	if err := DB.Where("email = ?", email).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
