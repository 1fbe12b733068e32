package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// Repositories bundles all repository implementations
type Repositories struct {
	User UserRepository
}

// NewRepositories creates all repositories backed by the given DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User: NewUserRepository(db),
	}
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

var (
	globalFactory   *Factory
	globalFactoryMu sync.Mutex
)

// SetGlobalFactory installs the process-wide repository factory
func SetGlobalFactory(f *Factory) {
	globalFactoryMu.Lock()
	defer globalFactoryMu.Unlock()
	globalFactory = f
}

// GetGlobalFactory returns the process-wide repository factory
func GetGlobalFactory() *Factory {
	globalFactoryMu.Lock()
	defer globalFactoryMu.Unlock()
	return globalFactory
}
