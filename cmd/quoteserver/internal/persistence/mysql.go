package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shubham-shewale/quote-relay/pkg/models"
)

// TickPO maps stock_realtime_price.
type TickPO struct {
	ID        uint            `gorm:"primaryKey;column:id"`
	Code      string          `gorm:"column:code;type:varchar(20);not null;index:idx_tick_code_created"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(18,6);not null"`
	Volume    int64           `gorm:"column:volume;type:bigint;default:0"`
	Turnover  decimal.Decimal `gorm:"column:turnover;type:decimal(20,2);default:0"`
	TickTime  time.Time       `gorm:"column:tick_time;type:timestamp"`
	CreatedAt time.Time       `gorm:"column:createdAt;index:idx_tick_code_created;index"`
	UpdatedAt time.Time       `gorm:"column:updatedAt"`
}

func (TickPO) TableName() string { return "stock_realtime_price" }

func FromTickRecord(rec models.TickRecord) *TickPO {
	return &TickPO{
		Code:     rec.Symbol,
		Price:    rec.Price,
		Volume:   rec.Volume,
		Turnover: rec.Turnover,
		TickTime: rec.TickTime,
	}
}

// PriceChangePO maps stock_price_change.
type PriceChangePO struct {
	ID          uint            `gorm:"primaryKey;column:id"`
	Code        string          `gorm:"column:code;type:varchar(20);not null;index:idx_change_code_created"`
	OldPrice    decimal.Decimal `gorm:"column:old_price;type:decimal(18,6)"`
	NewPrice    decimal.Decimal `gorm:"column:new_price;type:decimal(18,6)"`
	PriceChange decimal.Decimal `gorm:"column:price_change;type:decimal(18,6)"`
	ChangeRate  decimal.Decimal `gorm:"column:change_rate;type:decimal(10,6)"`
	Volume      int64           `gorm:"column:volume;type:bigint;default:0"`
	TickTime    time.Time       `gorm:"column:tick_time;type:timestamp"`
	CreatedAt   time.Time       `gorm:"column:createdAt;index:idx_change_code_created;index"`
}

func (PriceChangePO) TableName() string { return "stock_price_change" }

func FromPriceChangeRecord(rec models.PriceChangeRecord) *PriceChangePO {
	return &PriceChangePO{
		Code:        rec.Symbol,
		OldPrice:    rec.OldPrice,
		NewPrice:    rec.NewPrice,
		PriceChange: rec.PriceChange,
		ChangeRate:  rec.ChangeRate,
		Volume:      rec.Volume,
		TickTime:    rec.TickTime,
	}
}

// OpenMySQL connects with gorm. Query logging stays silent; the pipeline
// reports write failures itself.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

type MySQLWriter struct {
	db *gorm.DB
}

// NewMySQLWriter migrates the record tables and returns a writer over db.
func NewMySQLWriter(db *gorm.DB) (*MySQLWriter, error) {
	if err := db.AutoMigrate(&TickPO{}, &PriceChangePO{}); err != nil {
		return nil, fmt.Errorf("migrate record tables: %w", err)
	}
	return &MySQLWriter{db: db}, nil
}

func (w *MySQLWriter) WriteTick(ctx context.Context, rec models.TickRecord) error {
	return w.db.WithContext(ctx).Create(FromTickRecord(rec)).Error
}

func (w *MySQLWriter) WritePriceChange(ctx context.Context, rec models.PriceChangeRecord) error {
	return w.db.WithContext(ctx).Create(FromPriceChangeRecord(rec)).Error
}

func (w *MySQLWriter) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
