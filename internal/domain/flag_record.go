package domain

import "time"

// Kind tells whether a record is a toggleable feature flag or a static
// environment value.
type Kind uint8

const (
	KindEnvironmentVariable Kind = iota + 1
	KindFeatureFlag
)

func (k Kind) String() string {
	switch k {
	case KindEnvironmentVariable:
		return "EnvironmentVariable"
	case KindFeatureFlag:
		return "FeatureFlag"
	default:
		return "Unknown"
	}
}

// SubKind refines KindFeatureFlag. It must be absent on environment variables.
type SubKind uint8

const (
	SubKindBoolean SubKind = iota + 1
	SubKindPercentageFilter
)

func (s SubKind) String() string {
	switch s {
	case SubKindBoolean:
		return "Boolean"
	case SubKindPercentageFilter:
		return "PercentageFilter"
	default:
		return "Unknown"
	}
}

// FlagRecord is the current state of a named flag. Name is the primary key and
// immutable once created. Histories, DeletedAt and ExpiresAt are maintained by
// the storage backends, not by callers.
type FlagRecord struct {
	Name        string     `gorm:"column:Name;primaryKey;size:255" bson:"name" json:"name"`
	Kind        Kind       `gorm:"column:Kind;not null" bson:"kind" json:"kind"`
	SubKind     *SubKind   `gorm:"column:SubKind" bson:"subKind,omitempty" json:"sub_kind,omitempty"`
	Enabled     bool       `gorm:"column:Enabled;not null" bson:"enabled" json:"enabled"`
	Value       string     `gorm:"column:Value;size:100" bson:"value,omitempty" json:"value,omitempty"`
	Description string     `gorm:"column:Description;size:512" bson:"description,omitempty" json:"description,omitempty"`
	Extras      string     `gorm:"column:Extras;size:512" bson:"extras,omitempty" json:"extras,omitempty"`
	// Mutation timestamps are owned by the backends, so gorm's automatic
	// create/update tracking is switched off.
	CreatedAt time.Time  `gorm:"column:CreatedAt;not null;autoCreateTime:false" bson:"createdAt" json:"created_at"`
	UpdatedAt *time.Time `gorm:"column:UpdatedAt;autoUpdateTime:false" bson:"updatedAt,omitempty" json:"updated_at,omitempty"`
	DeletedAt *time.Time `gorm:"column:DeletedAt" bson:"deletedAt,omitempty" json:"deleted_at,omitempty"`
	ExpiresAt *time.Time `gorm:"-" bson:"expiresAt,omitempty" json:"expires_at,omitempty"`

	Histories []HistorySnapshot `gorm:"-" bson:"histories" json:"histories,omitempty"`
}

func (FlagRecord) TableName() string { return "thoth.FeatureManager" }

// HistorySnapshot is an immutable copy of a record's state during
// [PeriodStart, PeriodEnd). ExpiresAt, when set, schedules the snapshot for
// physical purging on backends that keep history embedded.
type HistorySnapshot struct {
	Name        string     `gorm:"column:Name" bson:"name" json:"name"`
	Kind        Kind       `gorm:"column:Kind" bson:"kind" json:"kind"`
	SubKind     *SubKind   `gorm:"column:SubKind" bson:"subKind,omitempty" json:"sub_kind,omitempty"`
	Enabled     bool       `gorm:"column:Enabled" bson:"enabled" json:"enabled"`
	Value       string     `gorm:"column:Value" bson:"value,omitempty" json:"value,omitempty"`
	Description string     `gorm:"column:Description" bson:"description,omitempty" json:"description,omitempty"`
	Extras      string     `gorm:"column:Extras" bson:"extras,omitempty" json:"extras,omitempty"`
	CreatedAt   time.Time  `gorm:"column:CreatedAt" bson:"createdAt" json:"created_at"`
	UpdatedAt   *time.Time `gorm:"column:UpdatedAt" bson:"updatedAt,omitempty" json:"updated_at,omitempty"`
	DeletedAt   *time.Time `gorm:"column:DeletedAt" bson:"deletedAt,omitempty" json:"deleted_at,omitempty"`
	ExpiresAt   *time.Time `gorm:"-" bson:"expiresAt,omitempty" json:"expires_at,omitempty"`
	PeriodStart time.Time  `gorm:"column:PeriodStart" bson:"periodStart" json:"period_start"`
	PeriodEnd   time.Time  `gorm:"column:PeriodEnd" bson:"periodEnd" json:"period_end"`
}

// NewHistorySnapshot captures rec as it stood before a mutation applied at
// periodEnd. The snapshot's validity starts at the record's last mutation, or
// its creation when it was never updated.
func NewHistorySnapshot(rec *FlagRecord, periodEnd time.Time) HistorySnapshot {
	start := rec.CreatedAt
	if rec.UpdatedAt != nil {
		start = *rec.UpdatedAt
	}
	return HistorySnapshot{
		Name:        rec.Name,
		Kind:        rec.Kind,
		SubKind:     rec.SubKind,
		Enabled:     rec.Enabled,
		Value:       rec.Value,
		Description: rec.Description,
		Extras:      rec.Extras,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		DeletedAt:   rec.DeletedAt,
		PeriodStart: start,
		PeriodEnd:   periodEnd,
	}
}

// Clone returns a deep copy, so cached records can be handed out without
// aliasing backend-owned state.
func (r *FlagRecord) Clone() *FlagRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.SubKind = cloneTimePtrLike(r.SubKind)
	out.UpdatedAt = cloneTime(r.UpdatedAt)
	out.DeletedAt = cloneTime(r.DeletedAt)
	out.ExpiresAt = cloneTime(r.ExpiresAt)
	out.Histories = append([]HistorySnapshot(nil), r.Histories...)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneTimePtrLike(s *SubKind) *SubKind {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
