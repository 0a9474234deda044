package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/offszn/marketplace/internal"
	productDatamodel "github.com/offszn/marketplace/internal/core/datamodel/product"
	userDatamodel "github.com/offszn/marketplace/internal/core/datamodel/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample users and products for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configDir)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gdb, err := initGorm(db, cfg.Env)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			for _, table := range []string{"notifications", "order_items", "orders", "reconciliation_jobs", "products", "users"} {
				if err := gdb.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		users := []userDatamodel.User{
			{Email: "admin@offszn.com", Username: "offszn", Role: internal.RoleAdmin, IsActive: true},
			{Email: "producer@offszn.com", Username: "producer", Role: "seller", IsActive: true},
			{Email: "buyer@offszn.com", Username: "buyer", Role: "buyer", IsActive: true},
		}

		for i := range users {
			if err := seedUser(gdb, &users[i]); err != nil {
				log.Fatalf("failed to seed user %s: %v", users[i].Email, err)
			}
			fmt.Printf("Seeded user: %s (%s) id=%s\n", users[i].Email, users[i].Role, users[i].ID)
		}

		producer := users[1]
		products := []productDatamodel.Product{
			{OwnerID: producer.ID, Title: "Dark Trap Drum Kit", Kind: "drumkit", Price: 19.99},
			{OwnerID: producer.ID, Title: "Night Drive", Kind: "beat", Price: 29.99},
			{OwnerID: producer.ID, Title: "Analog Presets Vol. 1", Kind: "preset", Price: 9.99},
		}

		for i := range products {
			p := products[i]
			if err := gdb.Where(productDatamodel.Product{OwnerID: p.OwnerID, Title: p.Title}).FirstOrCreate(&p).Error; err != nil {
				log.Fatalf("failed to seed product %s: %v", p.Title, err)
			}
			fmt.Printf("Seeded product: %s id=%s\n", p.Title, p.ID)
		}

		fmt.Println("Seed completed")
	},
}

func seedUser(db *gorm.DB, u *userDatamodel.User) error {
	return db.Where(userDatamodel.User{Email: u.Email}).
		Attrs(userDatamodel.User{Username: u.Username, Role: u.Role, IsActive: u.IsActive}).
		FirstOrCreate(u).Error
}
