// Package directory resolves email addresses to accounts. It is the leaf
// dependency of the invitation flow: a registered email is attached to a
// contract directly, an unregistered one goes through the invite ledger.
package directory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"contracthub/models"
)

type Directory struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// FindByEmail returns the account for email, or nil when no account
// exists. A nil user with a nil error signals "unregistered".
func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID loads a user or reports not found via gorm.ErrRecordNotFound.
func (d *Directory) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
