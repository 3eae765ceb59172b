package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Conn *pgxpool.Pool

// Init connects to Postgres
func Init() {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
	)

	var err error
	Conn, err = pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}

	if err = Conn.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}

	log.Println("Connected to Postgres successfully")

	EnsureSchema(Conn)
}

// EnsureSchema creates the tables the workflow needs if they are
// missing. Idempotent, runs on every boot.
func EnsureSchema(pool *pgxpool.Pool) {
	ensureUsersTable(pool)
	ensureTemplatesTable(pool)
	ensurePackagesTable(pool)
	ensureOrdersTable(pool)
	ensureNotificationsTable(pool)
}

func ensureUsersTable(pool *pgxpool.Pool) {
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'buyer' CHECK (role IN ('buyer','creator','admin')),
            is_active BOOLEAN DEFAULT TRUE,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
    `)
	if err != nil {
		log.Printf("failed to create users table: %v", err)
	}
}

func ensureTemplatesTable(pool *pgxpool.Pool) {
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS templates (
            id UUID PRIMARY KEY,
            creator_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            title TEXT NOT NULL,
            is_published BOOLEAN DEFAULT TRUE,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
    `)
	if err != nil {
		log.Printf("failed to create templates table: %v", err)
	}
}

func ensurePackagesTable(pool *pgxpool.Pool) {
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS service_packages (
            id UUID PRIMARY KEY,
            creator_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            template_id UUID NULL REFERENCES templates(id) ON DELETE SET NULL,
            name TEXT NOT NULL,
            description TEXT NULL,
            price DOUBLE PRECISION NOT NULL CHECK (price >= 0),
            delivery_days INTEGER NOT NULL CHECK (delivery_days >= 1),
            revisions INTEGER NOT NULL DEFAULT 0 CHECK (revisions >= 0),
            features JSONB NOT NULL DEFAULT '[]',
            is_active BOOLEAN DEFAULT TRUE,
            stats_orders INTEGER NOT NULL DEFAULT 0,
            stats_completed INTEGER NOT NULL DEFAULT 0,
            stats_revenue DOUBLE PRECISION NOT NULL DEFAULT 0,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_packages_creator ON service_packages(creator_id);
        CREATE INDEX IF NOT EXISTS idx_packages_active ON service_packages(is_active);
    `)
	if err != nil {
		log.Printf("failed to create service_packages table: %v", err)
	}
}

func ensureOrdersTable(pool *pgxpool.Pool) {
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS service_orders (
            id UUID PRIMARY KEY,
            order_number TEXT NOT NULL UNIQUE,
            buyer_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            creator_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            assigned_creator_id UUID NULL REFERENCES users(id) ON DELETE SET NULL,
            package_id UUID NULL REFERENCES service_packages(id) ON DELETE SET NULL,
            is_generic_request BOOLEAN NOT NULL DEFAULT FALSE,
            package_name TEXT NOT NULL,
            price DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (price >= 0),
            delivery_days INTEGER NOT NULL,
            revisions INTEGER NOT NULL DEFAULT 0,
            revisions_used INTEGER NOT NULL DEFAULT 0,
            platform_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
            creator_payout DOUBLE PRECISION NOT NULL DEFAULT 0,
            requirements TEXT NOT NULL,
            attachments JSONB NOT NULL DEFAULT '[]',
            delivery_files JSONB NOT NULL DEFAULT '[]',
            delivery_note TEXT NULL,
            delivered_at TIMESTAMP WITH TIME ZONE NULL,
            due_date TIMESTAMP WITH TIME ZONE NOT NULL,
            accepted_at TIMESTAMP WITH TIME ZONE NULL,
            completed_at TIMESTAMP WITH TIME ZONE NULL,
            is_paid BOOLEAN NOT NULL DEFAULT FALSE,
            paid_at TIMESTAMP WITH TIME ZONE NULL,
            payment_released BOOLEAN NOT NULL DEFAULT FALSE,
            dispute JSONB NULL,
            activity_log JSONB NOT NULL DEFAULT '[]',
            messages JSONB NOT NULL DEFAULT '[]',
            status TEXT NOT NULL CHECK (status IN (
                'requested', 'accepted', 'rejected', 'in_progress', 'delivered',
                'revision_requested', 'completed', 'cancelled', 'disputed'
            )),
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_orders_buyer ON service_orders(buyer_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_orders_creator ON service_orders(creator_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_orders_assigned ON service_orders(assigned_creator_id) WHERE assigned_creator_id IS NOT NULL;
        CREATE INDEX IF NOT EXISTS idx_orders_status ON service_orders(status);
    `)
	if err != nil {
		log.Printf("failed to create service_orders table: %v", err)
	}
}

func ensureNotificationsTable(pool *pgxpool.Pool) {
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT,
            reference UUID NULL,
            metadata JSONB NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            read_at TIMESTAMP WITH TIME ZONE NULL
        );
        CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE read_at IS NULL;
    `)
	if err != nil {
		log.Printf("failed to create notifications table: %v", err)
	}
}
