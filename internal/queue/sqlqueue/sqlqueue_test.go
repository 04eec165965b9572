package sqlqueue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rezkam/chronoqueue/internal/queue/qtest"
	"github.com/rezkam/chronoqueue/queue"
)

func TestSqlqueueCompliance(t *testing.T) {
	qtest.Run(t, func() (queue.Backend, func()) {
		dir, err := os.MkdirTemp("", "sqlqueue-*")
		if err != nil {
			t.Fatal(err)
		}
		dsn := SQLiteDSN(filepath.Join(dir, "chronoqueue.db"))
		db, err := Open(context.Background(), AdapterSQLite, dsn, PoolConfig{})
		if err != nil {
			os.RemoveAll(dir)
			t.Fatal(err)
		}
		b := NewBackend(db, AdapterSQLite)
		return b, func() {
			b.Close()
			os.RemoveAll(dir)
		}
	})
}

func TestBindRewritesPlaceholdersForPostgres(t *testing.T) {
	b := &Backend{adapter: AdapterPgSQL}
	got := b.bind(`SELECT * FROM jobs WHERE queue = ? AND id = ?`)
	want := `SELECT * FROM jobs WHERE queue = $1 AND id = $2`
	if got != want {
		t.Fatalf("bind() = %q, want %q", got, want)
	}
}

func TestBindLeavesSqliteAndMysqlUnchanged(t *testing.T) {
	for _, adapter := range []Adapter{AdapterSQLite, AdapterMySQL} {
		b := &Backend{adapter: adapter}
		query := `SELECT * FROM jobs WHERE queue = ?`
		if got := b.bind(query); got != query {
			t.Fatalf("bind() for %s = %q, want unchanged %q", adapter, got, query)
		}
	}
}
