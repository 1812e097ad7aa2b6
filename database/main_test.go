package database

import (
	"context"
	"log"
	"testing"

	"github.com/siherrmann/briefings/helper"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

// testDim keeps the test vectors readable. All tests in the package share it
// since the chunks table is created with a fixed dimension.
const testDim = 3

var dbPort string

func TestMain(m *testing.M) {
	var teardown func(ctx context.Context, opts ...testcontainers.TerminateOption) error
	var err error
	teardown, dbPort, err = helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

// initDB connects to the test container and drops the tables of earlier tests.
func initDB(t *testing.T) *helper.Database {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")
	database := helper.NewTestDatabase(dbConfig)
	t.Cleanup(func() { database.Close() })

	_, err = database.Instance.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`)
	require.NoError(t, err)
	_, err = database.Instance.Exec(`DROP TABLE IF EXISTS chunks; DROP TABLE IF EXISTS documents;`)
	require.NoError(t, err)

	return database
}
