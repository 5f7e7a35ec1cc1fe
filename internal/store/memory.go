package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Qompa-Fi/banking-service/internal/domain"
)

// InMemoryDirectoryRepository keeps directories in process memory. It backs local
// runs without DATABASE_URL and the service tests.
type InMemoryDirectoryRepository struct {
	mu          sync.RWMutex
	directories map[uuid.UUID]domain.Directory
	now         func() time.Time
}

// NewInMemoryDirectoryRepository creates an empty repository.
func NewInMemoryDirectoryRepository() *InMemoryDirectoryRepository {
	return &InMemoryDirectoryRepository{
		directories: make(map[uuid.UUID]domain.Directory),
		now:         time.Now,
	}
}

func (s *InMemoryDirectoryRepository) CreateDirectory(ctx context.Context, directory *domain.Directory) (*domain.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if directory.ID == uuid.Nil {
		directory.ID = uuid.New()
	}
	directory.CreatedAt = s.now().UTC()
	directory.UpdatedAt = nil
	s.directories[directory.ID] = cloneDirectory(*directory)
	return directory, nil
}

func (s *InMemoryDirectoryRepository) FindDirectory(ctx context.Context, userID int64, directoryID uuid.UUID) (*domain.Directory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.directories[directoryID]
	if !ok || d.UserID != userID {
		return nil, ErrDirectoryNotFound
	}
	out := cloneDirectory(d)
	return &out, nil
}

func (s *InMemoryDirectoryRepository) ListDirectories(ctx context.Context, userID int64) ([]domain.Directory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Directory{}
	for _, d := range s.directories {
		if d.UserID == userID {
			out = append(out, cloneDirectory(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryDirectoryRepository) CountDirectories(ctx context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, d := range s.directories {
		if d.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryDirectoryRepository) RenameDirectory(ctx context.Context, userID int64, directoryID uuid.UUID, name *string) (*domain.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.directories[directoryID]
	if !ok || d.UserID != userID {
		return nil, ErrDirectoryNotFound
	}
	d.Name = copyString(name)
	updated := s.now().UTC()
	d.UpdatedAt = &updated
	s.directories[directoryID] = d

	out := cloneDirectory(d)
	return &out, nil
}

func (s *InMemoryDirectoryRepository) DeleteDirectory(ctx context.Context, userID int64, directoryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.directories[directoryID]
	if !ok || d.UserID != userID {
		return ErrDirectoryNotFound
	}
	delete(s.directories, directoryID)
	return nil
}

func (s *InMemoryDirectoryRepository) DeleteDirectoriesByUser(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, d := range s.directories {
		if d.UserID == userID {
			delete(s.directories, id)
			deleted++
		}
	}
	return deleted, nil
}

// InMemoryProviderCache keeps the provider catalog in process memory when Redis
// is not configured.
type InMemoryProviderCache struct {
	mu        sync.RWMutex
	providers []domain.Provider
	expiresAt time.Time
	now       func() time.Time
}

func NewInMemoryProviderCache() *InMemoryProviderCache {
	return &InMemoryProviderCache{now: time.Now}
}

func (c *InMemoryProviderCache) GetProviders(ctx context.Context) ([]domain.Provider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.providers) == 0 || !c.now().Before(c.expiresAt) {
		return nil, false
	}
	return append([]domain.Provider(nil), c.providers...), true
}

func (c *InMemoryProviderCache) PutProviders(ctx context.Context, providers []domain.Provider, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.providers = append([]domain.Provider(nil), providers...)
	c.expiresAt = c.now().Add(ttl)
}

func cloneDirectory(d domain.Directory) domain.Directory {
	d.Name = copyString(d.Name)
	if d.UpdatedAt != nil {
		t := *d.UpdatedAt
		d.UpdatedAt = &t
	}
	return d
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
