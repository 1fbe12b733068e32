package repository

import (
	"gorm.io/gorm"

	"github.com/MatiasHerrera/PagoLink/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByAPIKeyHash retrieves a user by the SHA-256 hash of their API key
func (r *userRepository) GetByAPIKeyHash(hash string) (*models.User, error) {
	var user models.User
	err := r.db.Where("api_key_hash = ?", hash).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetProviderCustomerID stores the provider-side customer id for a user
func (r *userRepository) SetProviderCustomerID(userID uint, customerID string) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("provider_customer_id", customerID).Error
}

// Update updates an existing user
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// Delete removes a user by ID (soft delete)
func (r *userRepository) Delete(id uint) error {
	return r.db.Delete(&models.User{}, id).Error
}
