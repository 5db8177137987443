package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kjannette/cryptostats-backend/internal/db"
)

// SetupPool creates a pgxpool.Pool for integration tests, creating the schema
// if needed. Connection details come from TEST_DATABASE_URL or the DB_* vars;
// the test is skipped when neither is configured.
func SetupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../../.env")

	dsn, ok := PostgresDSN()
	if !ok {
		t.Skip("TEST_DATABASE_URL / DB_USER not set, skipping")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return pool
}

// SetupMongo connects to TEST_MONGO_URI and returns the client plus a
// database name unique to this test run, dropped on cleanup. The test is
// skipped when the variable is unset.
func SetupMongo(t *testing.T) (*mongo.Client, string) {
	t.Helper()

	_ = godotenv.Load("../../.env")

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}

	dbName := "cryptostats_test_" + time.Now().Format("20060102150405")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Database(dbName).Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return client, dbName
}

// PostgresDSN returns TEST_DATABASE_URL, or a DSN assembled from DB_* with
// local defaults when DB_USER is set. ok is false when neither is available.
func PostgresDSN() (dsn string, ok bool) {
	if dsn = os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn, true
	}
	user := os.Getenv("DB_USER")
	if user == "" {
		return "", false
	}
	host := EnvOr("DB_HOST", "localhost")
	port := EnvOr("DB_PORT", "5432")
	name := EnvOr("DB_NAME", "cryptostats")
	pass := EnvOr("DB_PASSWORD", "")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable", true
}

func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
