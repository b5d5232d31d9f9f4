package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dineflow/restaurant-ordering/internal/auth"
	checkoutmodel "github.com/dineflow/restaurant-ordering/internal/core/datamodel/checkout"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample orders for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlDB.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open gorm: %v", err)
		}

		if clearData {
			if err := db.Exec("DELETE FROM orders").Error; err != nil {
				log.Fatalf("failed to clear orders: %v", err)
			}
			if err := db.Exec("DELETE FROM payment_sessions").Error; err != nil {
				log.Fatalf("failed to clear payment sessions: %v", err)
			}
			fmt.Println("Cleared existing orders and payment sessions")
		}

		samples := []struct {
			Customer string
			Phone    string
			Type     string
			Table    string
			Items    []checkoutmodel.DraftItem
			Subtotal string
			Status   string
		}{
			{
				Customer: "Asha Rao",
				Phone:    "9876543210",
				Type:     checkoutmodel.OrderTypeDineIn,
				Table:    "T4",
				Items: []checkoutmodel.DraftItem{
					{MenuItemID: 1, Name: "Masala Dosa", Quantity: 2, UnitPrice: dec("120.00")},
					{MenuItemID: 7, Name: "Filter Coffee", Quantity: 2, UnitPrice: dec("40.00")},
				},
				Subtotal: "320.00",
				Status:   "placed",
			},
			{
				Customer: "Vikram Shetty",
				Phone:    "9123456780",
				Type:     checkoutmodel.OrderTypeTakeaway,
				Items: []checkoutmodel.DraftItem{
					{MenuItemID: 3, Name: "Paneer Tikka", Quantity: 1, UnitPrice: dec("240.00")},
				},
				Subtotal: "240.00",
				Status:   "preparing",
			},
		}

		for i, sample := range samples {
			sessionID := uuid.NewString()
			items, err := json.Marshal(sample.Items)
			if err != nil {
				log.Fatalf("failed to marshal sample items: %v", err)
			}

			var tableNumber interface{}
			if sample.Table != "" {
				tableNumber = sample.Table
			}

			reference := fmt.Sprintf("seed-utr-%04d", i+1)
			if err := db.Exec(
				`INSERT INTO payment_sessions
					(id, gateway_order_id, gateway_session_id, amount, currency, status, retry_count,
					 verification_attempts, finalized, order_creation_attempted, outcome, payment_reference, draft, created_at, updated_at)
				 VALUES (?, ?, ?, ?, 'INR', 'SUCCESS', 0, 1, true, true, 'confirmed', ?, ?, now(), now())`,
				sessionID, "ord_"+uuid.NewString(), "sess_"+uuid.NewString(), sample.Subtotal, reference, items,
			).Error; err != nil {
				log.Fatalf("failed to seed payment session: %v", err)
			}

			orderNumber := fmt.Sprintf("DF-%s-%04d", time.Now().Format("20060102"), 9000+i)
			if err := db.Exec(
				`INSERT INTO orders
					(order_number, session_id, customer_name, customer_phone, order_type, table_number,
					 items, subtotal, payment_status, payment_reference, status, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'paid', ?, ?, now(), now())`,
				orderNumber, sessionID, sample.Customer, sample.Phone, sample.Type, tableNumber,
				items, sample.Subtotal, reference, sample.Status,
			).Error; err != nil {
				log.Fatalf("failed to seed order: %v", err)
			}

			fmt.Printf("Seeded order %s for %s\n", orderNumber, sample.Customer)
		}

		if cfg.Security.StaffTokenSecret != "" {
			verifier := auth.NewTokenVerifier(cfg.Security.StaffTokenSecret)
			token, err := verifier.GenerateToken("staff-1", "Dev Kitchen", "kitchen", 24*time.Hour)
			if err != nil {
				log.Fatalf("failed to generate staff token: %v", err)
			}
			fmt.Println("Staff token for local testing:")
			fmt.Println(token)
		}

		fmt.Println("Sample data seeded successfully")
	},
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}
