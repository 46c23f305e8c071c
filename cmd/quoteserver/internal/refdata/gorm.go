package refdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/quote"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

// TradingSettingPO maps the spread columns of trading_settings. The table is
// owned by the catalog service; only the columns read here are declared.
type TradingSettingPO struct {
	ID        uint                `gorm:"primaryKey;column:id"`
	Code      string              `gorm:"column:code;type:varchar(20);uniqueIndex"`
	BidSpread decimal.NullDecimal `gorm:"column:bidSpread;type:decimal(10,2)"`
	AskSpread decimal.NullDecimal `gorm:"column:askSpread;type:decimal(10,2)"`
}

func (TradingSettingPO) TableName() string { return "trading_settings" }

func (po *TradingSettingPO) ToDomain() *models.SpreadSetting {
	s := &models.SpreadSetting{Symbol: po.Code, BidSpread: decimal.Zero, AskSpread: decimal.Zero}
	if po.BidSpread.Valid {
		s.BidSpread = po.BidSpread.Decimal
	}
	if po.AskSpread.Valid {
		s.AskSpread = po.AskSpread.Decimal
	}
	return s
}

// GormProvider reads spreads from the catalog database.
type GormProvider struct {
	db *gorm.DB
}

func NewGormProvider(db *gorm.DB) *GormProvider {
	return &GormProvider{db: db}
}

func (p *GormProvider) GetBySymbol(ctx context.Context, symbol string) (*models.SpreadSetting, error) {
	var po TradingSettingPO
	err := p.db.WithContext(ctx).
		Select("id", "code", "bidSpread", "askSpread").
		Where("code = ?", symbol).
		First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, quote.ErrSpreadNotFound
		}
		return nil, fmt.Errorf("query trading_settings for %s: %w", symbol, err)
	}
	return po.ToDomain(), nil
}
