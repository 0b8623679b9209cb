// Package vec owns the sqlite database that backs the semantic stores
// (chat memories and the farming knowledge base). The sqlite-vec extension
// provides vec_distance_cosine for nearest-neighbor queries.
package vec

import (
	"database/sql"
	"fmt"
	"sync"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

var register sync.Once

type DB struct {
	*sql.DB
}

// Open opens (or creates) the vector database at path. Callers treat a nil
// *DB as "vector store unavailable", so a failed Open is not fatal to the
// process.
func Open(path string) (*DB, error) {
	register.Do(sqlitevec.Auto)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("vec: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vec: ping: %w", err)
	}
	// Single writer keeps the vec extension happy under concurrent turns.
	db.SetMaxOpenConns(1)
	return &DB{DB: db}, nil
}

// SerializeFloat32 encodes an embedding in the blob format the extension
// expects.
func SerializeFloat32(v []float32) ([]byte, error) {
	return sqlitevec.SerializeFloat32(v)
}
