package db

import (
	"log"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var (
	once sync.Once
	gdb  *gorm.DB
)

// Connect opens the MySQL connection on first call and returns the same
// handle on every call after that.
func Connect(dsn string) *gorm.DB {
	once.Do(func() {
		var err error
		gdb, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
	})
	return gdb
}
