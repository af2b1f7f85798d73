package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newSQLite(t *testing.T, clock *fakeClock) Client {
	t.Helper()
	c, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.sqlite"), clock.option())
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteClient(t *testing.T) {
	clientContract(t, newSQLite)
	expiryContract(t, newSQLite)
}

func TestSQLiteClient_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.sqlite")

	c, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := c.HashSet(ctx, "entity_type_map", "foo", []byte(`{}`)); err != nil {
		t.Fatalf("HashSet() error: %v", err)
	}
	c.Close()

	c, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer c.Close()

	if v, _ := c.Get(ctx, "k"); string(v) != "v" {
		t.Errorf("Get() after reopen = %q", v)
	}
	if v, _ := c.HashGet(ctx, "entity_type_map", "foo"); string(v) != `{}` {
		t.Errorf("HashGet() after reopen = %q", v)
	}
}

func TestSQLiteClient_QueryErrorIsWrapped(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer conn.Close()

	boom := errors.New("disk I/O error")
	mock.ExpectQuery("SELECT value, expires_at FROM kv_store").
		WithArgs("k").
		WillReturnError(boom)

	c := NewSQLiteClient(conn)
	_, err = c.Get(context.Background(), "k")
	if !errors.Is(err, boom) {
		t.Fatalf("Get() error = %v, want wrapped %v", err, boom)
	}
	if IsConnectivity(err) {
		t.Error("a query error should not count as connectivity loss")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLiteClient_DeleteBuildsInClause(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer conn.Close()

	mock.ExpectExec(`DELETE FROM kv_store WHERE key IN \(\?,\?,\?\)`).
		WithArgs("a", "b", "c").
		WillReturnResult(sqlmock.NewResult(0, 2))

	c := NewSQLiteClient(conn)
	n, err := c.Delete(context.Background(), "a", "b", "c")
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Delete() = %d, want 2", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
