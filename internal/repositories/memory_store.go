package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stockroom/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Transactions are serialised and run
// against a copy of the state, which replaces the live state only when fn
// succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	categories map[uuid.UUID]models.Category
	skus       map[uuid.UUID]models.SKU
	instances  map[uuid.UUID]models.Instance
	tags       map[uuid.UUID]*models.Tag
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		categories: map[uuid.UUID]models.Category{},
		skus:       map[uuid.UUID]models.SKU{},
		instances:  map[uuid.UUID]models.Instance{},
		tags:       map[uuid.UUID]*models.Tag{},
	}}
}

func (s memState) clone() memState {
	c := memState{
		categories: make(map[uuid.UUID]models.Category, len(s.categories)),
		skus:       make(map[uuid.UUID]models.SKU, len(s.skus)),
		instances:  make(map[uuid.UUID]models.Instance, len(s.instances)),
		tags:       make(map[uuid.UUID]*models.Tag, len(s.tags)),
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.skus {
		c.skus[k] = v
	}
	for k, v := range s.instances {
		c.instances[k] = v
	}
	for k, v := range s.tags {
		c.tags[k] = v.Clone()
	}
	return c
}

func (s *MemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// PutCategory seeds a category
func (s *MemoryStore) PutCategory(c models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.categories[c.ID] = c
}

// PutSKU seeds a catalog entry
func (s *MemoryStore) PutSKU(sku models.SKU) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.skus[sku.ID] = sku
}

// PutInstance seeds an instance as-is, owner included
func (s *MemoryStore) PutInstance(inst models.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now()
	}
	s.state.instances[inst.ID] = inst
}

// Instances returns a snapshot of every stored instance
func (s *MemoryStore) Instances() []models.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Instance, 0, len(s.state.instances))
	for _, inst := range s.state.instances {
		out = append(out, inst)
	}
	sortFIFO(out)
	return out
}

// Tags returns a snapshot of every stored tag
func (s *MemoryStore) Tags() []models.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Tag, 0, len(s.state.tags))
	for _, tag := range s.state.tags {
		out = append(out, *tag.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memTx struct {
	state memState
}

func (t *memTx) Instances() InstanceRepository { return &memInstances{state: &t.state} }
func (t *memTx) Tags() TagRepository           { return &memTags{state: &t.state} }
func (t *memTx) Catalog() CatalogRepository    { return &memCatalog{state: &t.state} }

func compareIDs(a, b uuid.UUID) int {
	return strings.Compare(a.String(), b.String())
}

func sortFIFO(instances []models.Instance) {
	sort.Slice(instances, func(i, j int) bool {
		a, b := instances[i], instances[j]
		if !a.AcquisitionDate.Equal(b.AcquisitionDate) {
			return a.AcquisitionDate.Before(b.AcquisitionDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return compareIDs(a.ID, b.ID) < 0
	})
}

type memInstances struct {
	state *memState
}

func (r *memInstances) Create(_ context.Context, instance *models.Instance) error {
	if instance.ID == uuid.Nil {
		instance.ID = uuid.New()
	}
	now := time.Now()
	instance.TagID = nil
	instance.Version = 1
	instance.CreatedAt = now
	instance.UpdatedAt = now
	r.state.instances[instance.ID] = *instance
	return nil
}

func (r *memInstances) GetByID(_ context.Context, id uuid.UUID) (*models.Instance, error) {
	inst, ok := r.state.instances[id]
	if !ok {
		return nil, notFound("instance", id)
	}
	return &inst, nil
}

func (r *memInstances) GetMany(_ context.Context, ids []uuid.UUID) ([]models.Instance, error) {
	var out []models.Instance
	for _, id := range ids {
		if inst, ok := r.state.instances[id]; ok {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return compareIDs(out[i].ID, out[j].ID) < 0 })
	return out, nil
}

func (r *memInstances) ListAvailable(_ context.Context, q AvailableQuery) ([]models.Instance, error) {
	excluded := make(map[uuid.UUID]bool, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = true
	}
	var out []models.Instance
	for _, inst := range r.state.instances {
		if inst.SkuID == q.SkuID && inst.TagID == nil && !excluded[inst.ID] {
			out = append(out, inst)
		}
	}
	sortFIFO(out)
	if q.NewestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memInstances) BindIfAvailable(_ context.Context, id, tagID uuid.UUID) (bool, error) {
	inst, ok := r.state.instances[id]
	if !ok || inst.TagID != nil {
		return false, nil
	}
	owner := tagID
	inst.TagID = &owner
	r.touch(&inst)
	return true, nil
}

func (r *memInstances) touch(inst *models.Instance) {
	inst.Version++
	inst.UpdatedAt = time.Now()
	r.state.instances[inst.ID] = *inst
}

func (r *memInstances) ownedBy(ids []uuid.UUID, tagID *uuid.UUID) error {
	for _, id := range ids {
		inst, ok := r.state.instances[id]
		if !ok {
			return notFound("instance", id)
		}
		switch {
		case tagID == nil && inst.TagID != nil,
			tagID != nil && (inst.TagID == nil || *inst.TagID != *tagID):
			return ErrOwnershipConflict
		}
	}
	return nil
}

func (r *memInstances) Unbind(ctx context.Context, ids []uuid.UUID, tagID uuid.UUID) error {
	return r.Rebind(ctx, ids, tagID, uuid.Nil)
}

func (r *memInstances) Rebind(_ context.Context, ids []uuid.UUID, fromTagID, toTagID uuid.UUID) error {
	if err := r.ownedBy(ids, &fromTagID); err != nil {
		return err
	}
	for _, id := range ids {
		inst := r.state.instances[id]
		if toTagID == uuid.Nil {
			inst.TagID = nil
		} else {
			owner := toTagID
			inst.TagID = &owner
		}
		r.touch(&inst)
	}
	return nil
}

func (r *memInstances) DeleteOwned(_ context.Context, ids []uuid.UUID, tagID uuid.UUID) error {
	if err := r.ownedBy(ids, &tagID); err != nil {
		return err
	}
	for _, id := range ids {
		delete(r.state.instances, id)
	}
	return nil
}

func (r *memInstances) DeleteAvailable(_ context.Context, ids []uuid.UUID) error {
	if err := r.ownedBy(ids, nil); err != nil {
		return err
	}
	for _, id := range ids {
		delete(r.state.instances, id)
	}
	return nil
}

func (r *memInstances) ListOwnership(_ context.Context, skuID uuid.UUID) ([]models.InstanceOwnership, error) {
	var out []models.InstanceOwnership
	for _, inst := range r.state.instances {
		if inst.SkuID != skuID {
			continue
		}
		o := models.InstanceOwnership{
			InstanceID:      inst.ID,
			SkuID:           inst.SkuID,
			AcquisitionCost: inst.AcquisitionCost,
			TagID:           inst.TagID,
		}
		if inst.TagID != nil {
			if tag, ok := r.state.tags[*inst.TagID]; ok {
				tagType, status := tag.Type, tag.Status
				o.TagType = &tagType
				o.TagStatus = &status
			}
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *memInstances) ListSKUIDs(_ context.Context) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, inst := range r.state.instances {
		if !seen[inst.SkuID] {
			seen[inst.SkuID] = true
			out = append(out, inst.SkuID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return compareIDs(out[i], out[j]) < 0 })
	return out, nil
}

type memTags struct {
	state *memState
}

func (r *memTags) Create(_ context.Context, tag *models.Tag) error {
	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now()
	}
	if tag.Items == nil {
		tag.Items = []models.TagItem{}
	}
	tag.Version = 1
	tag.UpdatedAt = tag.CreatedAt
	r.state.tags[tag.ID] = tag.Clone()
	return nil
}

func (r *memTags) GetByID(_ context.Context, id uuid.UUID) (*models.Tag, error) {
	tag, ok := r.state.tags[id]
	if !ok {
		return nil, notFound("tag", id)
	}
	return tag.Clone(), nil
}

func (r *memTags) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	return r.GetByID(ctx, id)
}

func (r *memTags) Update(_ context.Context, tag *models.Tag) error {
	stored, ok := r.state.tags[tag.ID]
	if !ok {
		return notFound("tag", tag.ID)
	}
	if stored.Version != tag.Version {
		return ErrVersionConflict
	}
	tag.Version++
	tag.UpdatedAt = time.Now()
	r.state.tags[tag.ID] = tag.Clone()
	return nil
}

func (r *memTags) ListActive(_ context.Context, filter models.TagFilter) ([]models.Tag, error) {
	var out []models.Tag
	for _, tag := range r.state.tags {
		if tag.Status != models.TagStatusActive {
			continue
		}
		if filter.Type != nil && tag.Type != *filter.Type {
			continue
		}
		if filter.Purpose != nil && tag.Purpose != *filter.Purpose {
			continue
		}
		if filter.DueBefore != nil && (tag.DueDate == nil || !tag.DueDate.Before(*filter.DueBefore)) {
			continue
		}
		out = append(out, *tag.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memCatalog struct {
	state *memState
}

func (r *memCatalog) GetSKU(_ context.Context, id uuid.UUID) (*models.SKU, error) {
	sku, ok := r.state.skus[id]
	if !ok {
		return nil, notFound("sku", id)
	}
	sku.BundleItems = append([]models.BundleItem(nil), sku.BundleItems...)
	return &sku, nil
}

func (r *memCatalog) GetCategoryType(_ context.Context, categoryID uuid.UUID) (models.CategoryType, error) {
	c, ok := r.state.categories[categoryID]
	if !ok {
		return "", notFound("category", categoryID)
	}
	return c.Type, nil
}

func (r *memCatalog) ListBundles(_ context.Context) ([]models.SKU, error) {
	var out []models.SKU
	for _, sku := range r.state.skus {
		if !sku.IsBundle {
			continue
		}
		sku.BundleItems = append([]models.BundleItem(nil), sku.BundleItems...)
		out = append(out, sku)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
