package auth

import (
	"errors"
	"fmt"

	"drive-agent-backend/dao"
	"drive-agent-backend/model"
	"drive-agent-backend/request"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

func UserRegister(req request.UserRegisterRequest) (*model.User, error) {
	existing, err := dao.GetUserByEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("user %s already exists", req.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %v", err)
	}

	user := &model.User{
		Email:    req.Email,
		Password: string(hash),
	}
	if err := dao.CreateUser(user); err != nil {
		return nil, err
	}

	return user, nil
}

func UserLogin(req request.UserLoginRequest) (*model.User, error) {
	user, err := dao.GetUserByEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
