package model

import "time"

type Rating struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	ProductID      uint64    `gorm:"column:product_id;uniqueIndex:idx_ratings_product_buyer;not null"`
	BuyerPrincipal string    `gorm:"column:buyer_principal;size:64;uniqueIndex:idx_ratings_product_buyer;not null"`
	Score          int       `gorm:"column:score;not null"`
	TokenID        string    `gorm:"column:token_id;size:128;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (Rating) TableName() string {
	return "ratings"
}
