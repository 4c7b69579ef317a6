package model

import "time"

// EscrowShadow is a local copy of a ledger escrow entry. The ledger owns the
// real record; this row exists so the timeout scheduler can keep retrying the
// deferred finish after the request that created the escrow has returned.
type EscrowShadow struct {
	ID                   uint64    `gorm:"primaryKey;autoIncrement"`
	PurchaseID           uint64    `gorm:"column:purchase_id;index;not null"`
	OwnerPrincipal       string    `gorm:"column:owner_principal;size:64;not null"`
	DestinationPrincipal string    `gorm:"column:destination_principal;size:64;not null"`
	AmountDrops          int64     `gorm:"column:amount_drops;not null"`
	Sequence             uint32    `gorm:"column:sequence;uniqueIndex;not null"`
	FinishAfter          time.Time `gorm:"column:finish_after;not null"`
	CancelAfter          time.Time `gorm:"column:cancel_after;not null"`
	AcceptanceObserved   bool      `gorm:"column:acceptance_observed;not null;default:false"`
	CreatedAt            time.Time `gorm:"autoCreateTime"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`
}

func (EscrowShadow) TableName() string {
	return "escrow_shadows"
}
