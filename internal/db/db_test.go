package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/intake/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		host     string
		port     int
		database string
		want     []string
	}{
		{
			name:     "default local",
			user:     "root",
			host:     "127.0.0.1",
			port:     3306,
			database: "intake",
			want:     []string{"root@tcp(127.0.0.1:3306)/intake?", "parseTime=true", "charset=utf8mb4"},
		},
		{
			name:     "custom host and port",
			user:     "intake",
			host:     "db.vpc.internal",
			port:     3307,
			database: "intake_prod",
			want:     []string{"intake@tcp(db.vpc.internal:3307)/intake_prod?", "parseTime=true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.host, tt.port, tt.database)
			for _, part := range tt.want {
				if !strings.Contains(got, part) {
					t.Errorf("DSN() = %q, want to contain %q", got, part)
				}
			}
			if err := ValidateDSN(DriverMySQL, got); err != nil {
				t.Errorf("ValidateDSN(DSN()) = %v", err)
			}
		})
	}
}

func TestValidateDSN(t *testing.T) {
	tests := []struct {
		driver  string
		dsn     string
		wantErr bool
	}{
		{DriverMySQL, "root@tcp(localhost:3306)/intake?parseTime=true", false},
		{DriverMySQL, "root@tcp(localhost:3306)/intake", true},
		{DriverMySQL, "not a dsn", true},
		{DriverSQLite, "intake.db", false},
		{DriverSQLite, "", true},
		{DriverMemory, "", false},
		{"oracle", "x", true},
	}
	for _, tt := range tests {
		err := ValidateDSN(tt.driver, tt.dsn)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateDSN(%q, %q) error = %v, wantErr %v", tt.driver, tt.dsn, err, tt.wantErr)
		}
	}
}

func TestConnect_UnknownDriver(t *testing.T) {
	_, err := Connect("postgres", "")
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if !strings.Contains(err.Error(), "postgres") {
		t.Errorf("error = %q, want driver name", err)
	}
}

func TestConnect_SQLiteAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intake.db")
	gdb, err := Connect(DriverSQLite, path)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}

	s := models.IntakeSession{Handle: "h1", Source: "cli"}
	if err := gdb.Create(&s).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	if s.Status != models.StatusActive {
		t.Errorf("Status default = %q, want active", s.Status)
	}
}

func TestConnect_Memory(t *testing.T) {
	gdb, err := Connect(DriverMemory, "ignored")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
}
