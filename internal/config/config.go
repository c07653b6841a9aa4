package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/drstein77/priceallocator/internal/models"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Options struct {
	runAddr        string
	logLevel       string
	dataBaseDSN    string
	migrationsPath string
	maxTotal       decimalValue
	maxPerItem     decimalValue
	minPrice       decimalValue
}

func NewOptions() *Options {
	return new(Options)
}

// ParseFlags handles command line arguments
// and stores their values in the corresponding variables.
func (o *Options) ParseFlags() {
	// Load environment variables from the .env file
	loadEnvFile()

	if err := o.parse(flag.CommandLine, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func (o *Options) parse(fs *flag.FlagSet, args []string) error {
	defaults := models.DefaultLimits()

	fs.StringVar(&o.runAddr, "a", getEnvOrDefault("RUN_ADDRESS", ":8080"), "address and port to run server")
	fs.StringVar(&o.logLevel, "l", getEnvOrDefault("LOG_LEVEL", "debug"), "log level")
	fs.StringVar(&o.dataBaseDSN, "d", getEnvOrDefault("DATABASE_URI", ""), "database connection string")
	fs.StringVar(&o.migrationsPath, "g", getEnvOrDefault("MIGRATIONS_PATH", "migrations"), "directory with database migrations")

	for _, v := range []struct {
		target *decimalValue
		name   string
		env    string
		def    decimal.Decimal
		usage  string
	}{
		{&o.maxTotal, "t", "MAX_TOTAL", defaults.MaxTotal, "ceiling on the declared order total"},
		{&o.maxPerItem, "p", "MAX_PER_ITEM", defaults.MaxPerItem, "ceiling on any declared unit price"},
		{&o.minPrice, "m", "MIN_PRICE", defaults.MinPrice, "price applied to zero-priced items"},
	} {
		value, err := decimalFromEnv(v.env, v.def)
		if err != nil {
			return err
		}
		*v.target = decimalValue(value)
		fs.Var(v.target, v.name, v.usage)
	}

	// parse the arguments passed to the server into registered variables
	return fs.Parse(args)
}

func (o *Options) RunAddr() string {
	return o.runAddr
}

func (o *Options) LogLevel() string {
	return o.logLevel
}

func (o *Options) DataBaseDSN() string {
	return o.dataBaseDSN
}

func (o *Options) MigrationsPath() string {
	return o.migrationsPath
}

func (o *Options) Limits() models.Limits {
	return models.Limits{
		MaxTotal:   decimal.Decimal(o.maxTotal),
		MaxPerItem: decimal.Decimal(o.maxPerItem),
		MinPrice:   decimal.Decimal(o.minPrice),
	}
}

// decimalValue adapts decimal.Decimal to flag.Value.
type decimalValue decimal.Decimal

func (v *decimalValue) String() string {
	return decimal.Decimal(*v).String()
}

func (v *decimalValue) Set(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*v = decimalValue(d)
	return nil
}

func decimalFromEnv(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	raw := getEnvOrDefault(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

// getEnvOrDefault reads an environment variable or returns a default value if the variable is not set or is empty.
func getEnvOrDefault(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// loadEnvFile loads environment variables from a .env file in the working
// directory, falling back to the repository root when run from cmd/.
func loadEnvFile() {
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	for _, envPath := range []string{
		filepath.Join(cwd, ".env"),
		filepath.Join(cwd, "..", "..", ".env"),
	} {
		if err := godotenv.Load(envPath); err == nil {
			log.Printf(".env file loaded from %s", envPath)
			return
		}
	}
	log.Printf("No .env file found, proceeding without it")
}
