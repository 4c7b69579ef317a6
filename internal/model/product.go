package model

import "time"

type Product struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement"`
	Name            string    `gorm:"size:120;not null"`
	Description     string    `gorm:"type:text;not null"`
	ContentLocator  string    `gorm:"column:content_locator;size:512;not null"`
	PriceDrops      int64     `gorm:"column:price_drops;not null"`
	SellerPrincipal string    `gorm:"column:seller_principal;size:64;index;not null"`
	AssetID         *string   `gorm:"column:asset_id;size:128"`
	CredentialID    *string   `gorm:"column:credential_id;size:128"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
	Ratings         []Rating  `gorm:"foreignKey:ProductID"`
}

func (Product) TableName() string {
	return "products"
}
