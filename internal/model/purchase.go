package model

import "time"

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusCancelled PurchaseStatus = "cancelled"
)

type Purchase struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement"`
	ProductID       uint64         `gorm:"column:product_id;index;not null"`
	BuyerPrincipal  string         `gorm:"column:buyer_principal;size:64;index;not null"`
	SellerPrincipal string         `gorm:"column:seller_principal;size:64;index;not null"`
	Status          PurchaseStatus `gorm:"column:status;size:16;not null"`
	EscrowSequence  *uint32        `gorm:"column:escrow_sequence"`
	TxHash          *string        `gorm:"column:tx_hash;size:128"`
	CompletedAt     *time.Time     `gorm:"column:completed_at"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
}

func (Purchase) TableName() string {
	return "purchases"
}
