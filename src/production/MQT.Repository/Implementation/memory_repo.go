package implementation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
)

// MemoryStateRepository is a process-local StateRepository for tests and
// single-instance development runs.
type MemoryStateRepository struct {
	mu     sync.Mutex
	states map[string]mqtmodels.DeviceState
	now    func() time.Time
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{states: make(map[string]mqtmodels.DeviceState), now: time.Now}
}

func (r *MemoryStateRepository) GetOrCreate(_ context.Context, deviceID string) (*mqtmodels.DeviceState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[deviceID]
	if !ok {
		now := r.now().UTC()
		state = mqtmodels.DeviceState{DeviceID: deviceID, CreatedAt: now, UpdatedAt: now}
		r.states[deviceID] = state
	}
	return &state, nil
}

func (r *MemoryStateRepository) Set(_ context.Context, deviceID string, bitmask uint16) (*mqtmodels.DeviceState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	state, ok := r.states[deviceID]
	if !ok {
		state = mqtmodels.DeviceState{DeviceID: deviceID, CreatedAt: now}
	}
	state.Bitmask = bitmask
	state.Version++
	state.UpdatedAt = now
	r.states[deviceID] = state
	return &state, nil
}

func (r *MemoryStateRepository) CompareAndSwap(_ context.Context, deviceID string, expectedVersion int64, bitmask uint16) (*mqtmodels.DeviceState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[deviceID]
	if !ok || state.Version != expectedVersion {
		return nil, nil
	}
	state.Bitmask = bitmask
	state.Version++
	state.UpdatedAt = r.now().UTC()
	r.states[deviceID] = state
	return &state, nil
}

func (r *MemoryStateRepository) List(_ context.Context) ([]*mqtmodels.DeviceState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]*mqtmodels.DeviceState, 0, len(r.states))
	for _, state := range r.states {
		state := state
		states = append(states, &state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].DeviceID < states[j].DeviceID })
	return states, nil
}

type MemoryScheduleRepository struct {
	mu      sync.RWMutex
	entries []mqtmodels.ScheduleEntry
}

func NewMemoryScheduleRepository() *MemoryScheduleRepository {
	return &MemoryScheduleRepository{}
}

func (r *MemoryScheduleRepository) Create(_ context.Context, entry *mqtmodels.ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ID == entry.ID {
			return fmt.Errorf("schedule %s: %w", entry.ID, interfaces.ErrConflict)
		}
	}
	r.entries = append(r.entries, *entry)
	return nil
}

// FindByTime keeps insertion order, which is creation order
func (r *MemoryScheduleRepository) FindByTime(_ context.Context, hhmm string) ([]*mqtmodels.ScheduleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*mqtmodels.ScheduleEntry, 0)
	for _, e := range r.entries {
		if e.Time == hhmm {
			e := e
			entries = append(entries, &e)
		}
	}
	return entries, nil
}

func (r *MemoryScheduleRepository) List(_ context.Context, deviceID string) ([]*mqtmodels.ScheduleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*mqtmodels.ScheduleEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if deviceID == "" || e.DeviceID == deviceID {
			e := e
			entries = append(entries, &e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Time < entries[j].Time })
	return entries, nil
}

func (r *MemoryScheduleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return interfaces.ErrNotFound
}

type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]auth_models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]auth_models.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *auth_models.User) (*auth_models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return nil, fmt.Errorf("username %q: %w", user.Username, interfaces.ErrConflict)
		}
	}
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.users[user.UserID] = *user
	return user, nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, userID string) (*auth_models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (*auth_models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (r *MemoryUserRepository) GetAll(_ context.Context) ([]*auth_models.User, error) {
	return r.filter(func(*auth_models.User) bool { return true }), nil
}

func (r *MemoryUserRepository) GetByRole(_ context.Context, role string) ([]*auth_models.User, error) {
	return r.filter(func(u *auth_models.User) bool { return u.Role == role }), nil
}

func (r *MemoryUserRepository) Update(_ context.Context, user *auth_models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.UserID]; !ok {
		return interfaces.ErrNotFound
	}
	for id, u := range r.users {
		if id != user.UserID && u.Username == user.Username {
			return fmt.Errorf("username %q: %w", user.Username, interfaces.ErrConflict)
		}
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[user.UserID] = *user
	return nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return interfaces.ErrNotFound
	}
	delete(r.users, userID)
	return nil
}

func (r *MemoryUserRepository) filter(keep func(*auth_models.User) bool) []*auth_models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*auth_models.User, 0, len(r.users))
	for _, u := range r.users {
		u := u
		if keep(&u) {
			users = append(users, &u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users
}

type MemoryRoleRepository struct {
	mu    sync.RWMutex
	roles map[string]auth_models.Role
}

func NewMemoryRoleRepository() *MemoryRoleRepository {
	return &MemoryRoleRepository{roles: make(map[string]auth_models.Role)}
}

func (r *MemoryRoleRepository) Create(_ context.Context, role *auth_models.Role) (*auth_models.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stored, ok := r.roles[role.Name]
	if !ok {
		stored = *role
		if stored.RoleID == "" {
			stored.RoleID = uuid.New().String()
		}
		stored.CreatedAt = now
	}
	stored.Description = role.Description
	stored.UpdatedAt = now
	r.roles[role.Name] = stored
	return &stored, nil
}

func (r *MemoryRoleRepository) FindByName(_ context.Context, name string) (*auth_models.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[name]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &role, nil
}

func (r *MemoryRoleRepository) FindAll(_ context.Context) ([]*auth_models.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]*auth_models.Role, 0, len(r.roles))
	for _, role := range r.roles {
		role := role
		roles = append(roles, &role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}
