package models

// Item is a to-do entry owned by exactly one user via OwnerID.
type Item struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Completed bool   `db:"completed" json:"completed"`
	OwnerID   int64  `db:"owner_id" json:"ownerId"`
}

// ItemPatch carries the mutable fields of an Item. Nil fields are left unchanged.
type ItemPatch struct {
	Name      *string `json:"name"`
	Completed *bool   `json:"completed"`
}

// Replacement returns a patch that overwrites both mutable fields, as a PUT
// of a full item does.
func Replacement(name string, completed bool) ItemPatch {
	return ItemPatch{Name: &name, Completed: &completed}
}

// Apply copies the set fields of p onto it.
func (p ItemPatch) Apply(it *Item) {
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Completed != nil {
		it.Completed = *p.Completed
	}
}
