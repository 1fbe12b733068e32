package repository

import (
	"github.com/MatiasHerrera/PagoLink/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	SetProviderCustomerID(userID uint, customerID string) error
	Update(user *models.User) error
	Delete(id uint) error
}
