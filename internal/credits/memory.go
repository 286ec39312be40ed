package credits

import (
	"context"
	"sort"
	"sync"
	"time"

	"facetalk-backend/internal/models"
)

// MemoryRepository is a process-local Repository for development without a
// database and for tests.
type MemoryRepository struct {
	mu          sync.Mutex
	plans       map[string]models.UserPlan
	devices     map[string]models.DeviceCredit
	references  map[string]models.Transaction
	generations []models.GenerationRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		plans:      make(map[string]models.UserPlan),
		devices:    make(map[string]models.DeviceCredit),
		references: make(map[string]models.Transaction),
	}
}

func (r *MemoryRepository) GetPlan(ctx context.Context, userID string) (*models.UserPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &plan, nil
}

func (r *MemoryRepository) CreatePlan(ctx context.Context, plan *models.UserPlan) (*models.UserPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.plans[plan.UserID]; ok {
		return &existing, nil
	}
	p := *plan
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	r.plans[p.UserID] = p
	return &p, nil
}

func (r *MemoryRepository) ResetPlan(ctx context.Context, userID, plan string, points int, startDate time.Time) (*models.UserPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[userID]
	if !ok {
		return nil, ErrNotFound
	}
	p.Plan = plan
	p.PointsLeft = points
	p.StartDate = startDate
	p.UpdatedAt = time.Now().UTC()
	r.plans[userID] = p
	return &p, nil
}

func (r *MemoryRepository) DeductPoints(ctx context.Context, userID string, cost int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[userID]
	if !ok {
		return 0, ErrNotFound
	}
	if p.PointsLeft < cost {
		return p.PointsLeft, ErrInsufficientCredits
	}
	p.PointsLeft -= cost
	r.plans[userID] = p
	return p.PointsLeft, nil
}

func (r *MemoryRepository) AddPoints(ctx context.Context, userID string, points int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[userID]
	if !ok {
		return 0, ErrNotFound
	}
	p.PointsLeft += points
	r.plans[userID] = p
	return p.PointsLeft, nil
}

func (r *MemoryRepository) GetDevice(ctx context.Context, deviceID string) (*models.DeviceCredit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) MarkDeviceUsed(ctx context.Context, deviceID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		d = models.DeviceCredit{DeviceID: deviceID, UserID: userID, CreatedAt: time.Now().UTC()}
	}
	d.HasUsedFreeCredits = true
	r.devices[deviceID] = d
	return nil
}

func (r *MemoryRepository) ApplyPayment(ctx context.Context, txn *models.Transaction, startDate time.Time) (*models.UserPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.references[txn.Reference]; ok {
		return nil, ErrDuplicatePayment
	}
	p, ok := r.plans[txn.UserID]
	if !ok {
		p = models.UserPlan{UserID: txn.UserID, CreatedAt: startDate}
	}
	p.Plan = txn.Plan
	p.PointsLeft = txn.Points
	p.StartDate = startDate
	p.UpdatedAt = startDate
	r.plans[txn.UserID] = p
	r.references[txn.Reference] = *txn
	return &p, nil
}

func (r *MemoryRepository) InsertGeneration(ctx context.Context, record *models.GenerationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations = append(r.generations, *record)
	return nil
}

func (r *MemoryRepository) ListGenerations(ctx context.Context, userID string, limit int) ([]models.GenerationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.GenerationRecord
	for _, g := range r.generations {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) TransferAccount(ctx context.Context, fromUserID, toUserID string) (*models.UserPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	from, ok := r.plans[fromUserID]
	if !ok {
		return nil, ErrNotFound
	}
	if _, ok := r.plans[toUserID]; ok {
		return nil, ErrAlreadyHasPlan
	}
	delete(r.plans, fromUserID)
	from.UserID = toUserID
	from.IsAnonymous = false
	from.UpdatedAt = time.Now().UTC()
	r.plans[toUserID] = from

	for i := range r.generations {
		if r.generations[i].UserID == fromUserID {
			r.generations[i].UserID = toUserID
		}
	}
	for id, d := range r.devices {
		if d.UserID == fromUserID {
			d.UserID = toUserID
			r.devices[id] = d
		}
	}
	return &from, nil
}
