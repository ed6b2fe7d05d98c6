package migrate

import (
	"testing"

	"ahjosync/internal/db"
)

func TestMigrateFreshStoreAndRerun(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Re-running against an up-to-date store is a no-op.
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var version int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("schema_version: %v", err)
	}
	if version < 1 {
		t.Fatalf("version = %d", version)
	}
	if _, err := conn.Exec(`INSERT INTO queue_tasks(id,queue,payload) VALUES ('m-1','primary','{}')`); err != nil {
		t.Fatalf("queue_tasks missing after migrate: %v", err)
	}
}
