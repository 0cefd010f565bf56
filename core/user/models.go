package user

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/classdrive/core"
)

// NewAccount contains information needed to create a new account.
type NewAccount struct {
	Username        string `json:"username" validate:"required,max=64,username_"`
	FullName        string `json:"fullName" validate:"required,notblank,max=128"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Username = core.CleanString(na.Username)
	na.FullName = core.CleanString(na.FullName)
	return validate.Struct(na)
}

// PasswordChange is a new password chosen by a logged in account.
type PasswordChange struct {
	Username        string `json:"-"`
	FullName        string `json:"-"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (pc *PasswordChange) Validate(validate *validator.Validate) error { return validate.Struct(pc) }

// DefaultPasswordReset asks for the password of Username to be reset to the default one.
type DefaultPasswordReset struct {
	Username string `json:"username" validate:"required"`
	FullName string `json:"fullName" validate:"required"`
}

func (dr *DefaultPasswordReset) Validate(validate *validator.Validate) error {
	dr.Username = core.CleanString(dr.Username)
	dr.FullName = core.CleanString(dr.FullName)
	return validate.Struct(dr)
}

// ResetPassword sets a new password using a reset token.
type ResetPassword struct {
	Username        string `json:"username" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (rp *ResetPassword) Validate(validate *validator.Validate) error {
	rp.Username = core.CleanString(rp.Username)
	rp.Token = core.CleanString(rp.Token)
	return validate.Struct(rp)
}
